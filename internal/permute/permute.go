// Package permute implements the deterministic, reversible byte
// shuffle (C2) applied to each compressed block before sealing; it
// returns a shuffled copy and leaves its input unchanged.
//
// Per spec §4.2 this provides obfuscation only — no additional
// cryptographic strength beyond the AEAD that follows it — and is
// disabled entirely when a container's permute flag is false. Nothing in
// the retrieved example pack implements a reversible content shuffle, so
// this is built directly from the spec's algorithm description: seed a
// named PRNG from SHA-256(data_key ‖ "PERM" ‖ blockIndex) and drive a
// standard Fisher-Yates shuffle from it. This implementation documents
// its PRNG choice, as spec §4.2 requires: the source returned by
// math/rand.NewSource, seeded per-block, reproduced identically by both
// Permute and Unpermute.
package permute

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
)

// Seed derives the 64-bit per-block permutation seed from the data key
// and block index: first 8 bytes of SHA-256(dataKey ‖ "PERM" ‖ beU64(i)).
func Seed(dataKey []byte, blockIndex uint64) uint64 {
	h := sha256.New()
	h.Write(dataKey)
	h.Write([]byte("PERM"))
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], blockIndex)
	h.Write(idx[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// permutation returns π: {0,...,n-1} -> {0,...,n-1} as produced by a
// Fisher-Yates shuffle of the identity sequence, driven by a
// math/rand.Rand seeded from seed. Both Permute and Unpermute recompute
// the same π from (dataKey, blockIndex) — it is never stored on disk.
func permutation(n int, seed uint64) []int {
	pi := make([]int, n)
	for i := range pi {
		pi[i] = i
	}
	r := rand.New(rand.NewSource(int64(seed)))
	for i := n - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		pi[i], pi[j] = pi[j], pi[i]
	}
	return pi
}

// Permute places b[k] at position π(k) for the permutation keyed by
// (dataKey, blockIndex), returning a new slice the same length as b.
func Permute(b []byte, dataKey []byte, blockIndex uint64) []byte {
	if len(b) == 0 {
		return b
	}
	pi := permutation(len(b), Seed(dataKey, blockIndex))
	out := make([]byte, len(b))
	for k, v := range pi {
		out[v] = b[k]
	}
	return out
}

// Unpermute is the inverse of Permute: Unpermute(Permute(b, k, i), k, i) == b.
func Unpermute(b []byte, dataKey []byte, blockIndex uint64) []byte {
	if len(b) == 0 {
		return b
	}
	pi := permutation(len(b), Seed(dataKey, blockIndex))
	out := make([]byte, len(b))
	for k, v := range pi {
		out[k] = b[v]
	}
	return out
}
