// Package kdf derives the 32-byte bulk data key from content-derived
// keying material via HKDF-SHA256, and publishes the per-version
// descriptors that parameterize the rest of the engine.
//
// The expand step is grounded on the same hkdf.New(hash, secret, salt,
// info) shape used to stretch a shared secret into a block cipher key in
// other content-pipeline tools; here the "secret" is never a password —
// it is either the SHA-256 of all compressed blocks (two-pass mode) or
// the SHA-256 of the input's first head_bytes (single-pass mode).
package kdf

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyLen is the length in bytes of the derived data key.
const KeyLen = 32

// SaltLen is the length in bytes of the random per-container salt.
const SaltLen = 16

// Derive stretches ikm (input keying material) into a KeyLen-byte key
// using HKDF-SHA256 with the given salt and version-specific info label.
func Derive(ikm, salt, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, ikm, salt, info)
	key := make([]byte, KeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// NewTwoPassIKM returns a running hash to stream compressed blocks into,
// in index order, as stage A of the two-pass pack pipeline completes them.
func NewTwoPassIKM() *RunningHash {
	return &RunningHash{h: sha256.New()}
}

// RunningHash accumulates bytes fed to it in order and produces a final
// digest. It is not safe for concurrent Write calls — the caller (the
// packer's stage-A barrier) is responsible for in-order feeding.
type RunningHash struct {
	h interface {
		io.Writer
		Sum([]byte) []byte
	}
}

// Write feeds the next chunk of compressed bytes into the running hash.
func (r *RunningHash) Write(p []byte) (int, error) {
	return r.h.Write(p)
}

// Sum returns the final SHA-256 digest of everything written so far.
func (r *RunningHash) Sum() []byte {
	return r.h.Sum(nil)
}

// SinglePassIKM computes the input keying material for single_pass_firstN
// mode: the SHA-256 of the first headBytes of the raw input. headBytes
// exceeding the available input is clamped to what was actually read.
func SinglePassIKM(firstN []byte) []byte {
	sum := sha256.Sum256(firstN)
	return sum[:]
}
