// Package sealer implements the AEAD sealing stage (C3) of the Qeltrix
// pipeline: seal a PermutedBlock into a SealedBlock, and open it back.
//
// Adapted from the teacher's cryptocore.OptimizedBackend: the cipher.AEAD
// construction and pooled-buffer shape survive, generalized from a single
// fixed AES-GCM backend to the two algorithms the container format
// permits (chacha20poly1305 and AES-256-GCM). The teacher's SIMD-path
// dispatch and batch processor are dropped — see DESIGN.md — since
// internal/scheduler already owns block-level parallelism; keeping both
// would mean two independent strategies batching the same work.
package sealer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm names stored in container metadata.
const (
	ChaCha20 = "chacha20"
	AES256   = "aes256"
)

// NonceLen is the AEAD nonce length used throughout the format: 12 bytes,
// freshly random per block (spec §4.3).
const NonceLen = 12

// TagLen is the AEAD authentication tag length.
const TagLen = 16

// ErrAuth reports an AEAD tag verification failure. Sealer.Open never
// returns partial plaintext alongside this error.
type ErrAuth struct{ Reason string }

func (e *ErrAuth) Error() string { return "sealer: authentication failed: " + e.Reason }

// Sealer seals and opens single blocks with a fixed AEAD algorithm and
// key, and recycles ciphertext buffers across calls.
type Sealer struct {
	aead cipher.AEAD
	algo string
	pool sync.Pool
}

// New constructs a Sealer for algo ("chacha20" or "aes256") using key,
// which must be exactly 32 bytes.
func New(algo string, key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("sealer: key must be 32 bytes, got %d", len(key))
	}
	var aead cipher.AEAD
	switch algo {
	case ChaCha20:
		a, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("sealer: chacha20poly1305 init: %w", err)
		}
		aead = a
	case AES256:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("sealer: aes init: %w", err)
		}
		a, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("sealer: gcm init: %w", err)
		}
		aead = a
	default:
		return nil, fmt.Errorf("sealer: unknown algo %q", algo)
	}
	s := &Sealer{aead: aead, algo: algo}
	s.pool.New = func() interface{} { return make([]byte, 0, 64*1024) }
	return s, nil
}

// Algo returns the algorithm name this Sealer was constructed with.
func (s *Sealer) Algo() string { return s.algo }

// NonceLen returns the AEAD's nonce size (always NonceLen for both
// supported algorithms).
func (s *Sealer) NonceLen() int { return s.aead.NonceSize() }

// RandomNonce returns a freshly generated random 96-bit nonce, per
// spec §4.3's random_96_bits() requirement.
func RandomNonce() ([]byte, error) {
	nonce := make([]byte, NonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("sealer: failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// getBuffer returns a pooled buffer, reused across Seal/Open calls to cut
// allocator churn in the hot per-block path.
func (s *Sealer) getBuffer() []byte {
	return s.pool.Get().([]byte)[:0]
}

func (s *Sealer) putBuffer(buf []byte) {
	s.pool.Put(buf) //nolint:staticcheck // intentionally pooling variable-length slices
}

// Seal encrypts and authenticates plaintext under nonce and ad
// (associated data), returning ciphertext||tag.
func (s *Sealer) Seal(nonce, plaintext, ad []byte) []byte {
	if len(nonce) != s.aead.NonceSize() {
		panic(fmt.Sprintf("sealer: wrong nonce length: got %d want %d", len(nonce), s.aead.NonceSize()))
	}
	dst := s.getBuffer()
	out := s.aead.Seal(dst, nonce, plaintext, ad)
	sealed := make([]byte, len(out))
	copy(sealed, out)
	s.putBuffer(dst)
	return sealed
}

// Open verifies and decrypts ciphertextWithTag under nonce and ad. It
// never returns a partial plaintext alongside a non-nil error.
func (s *Sealer) Open(nonce, ciphertextWithTag, ad []byte) ([]byte, error) {
	if len(nonce) != s.aead.NonceSize() {
		return nil, &ErrAuth{Reason: fmt.Sprintf("wrong nonce length: %d", len(nonce))}
	}
	dst := s.getBuffer()
	plaintext, err := s.aead.Open(dst, nonce, ciphertextWithTag, ad)
	if err != nil {
		s.putBuffer(dst)
		return nil, &ErrAuth{Reason: err.Error()}
	}
	out := make([]byte, len(plaintext))
	copy(out, plaintext)
	s.putBuffer(dst)
	return out, nil
}

// Overhead returns the per-block ciphertext overhead (tag length) added
// by Seal beyond the plaintext length.
func (s *Sealer) Overhead() int { return s.aead.Overhead() }
