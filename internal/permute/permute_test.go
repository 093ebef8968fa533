package permute

import (
	"bytes"
	"testing"
)

func TestPermuteUnpermuteInverse(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	for _, n := range []int{0, 1, 2, 16, 4096, 4097} {
		b := make([]byte, n)
		for i := range b {
			b[i] = byte(i)
		}
		for _, idx := range []uint64{0, 1, 999} {
			p := Permute(b, key, idx)
			got := Unpermute(p, key, idx)
			if !bytes.Equal(got, b) {
				t.Fatalf("n=%d idx=%d: unpermute(permute(b)) != b", n, idx)
			}
		}
	}
}

func TestPermuteIsDeterministic(t *testing.T) {
	key := []byte("key-material")
	b := []byte("hello qeltrix block contents!!!")
	p1 := Permute(b, key, 5)
	p2 := Permute(b, key, 5)
	if !bytes.Equal(p1, p2) {
		t.Fatal("permutation must be deterministic for identical (key, index)")
	}
}

func TestPermuteDiffersByIndex(t *testing.T) {
	key := []byte("key-material")
	b := []byte("hello qeltrix block contents!!!")
	p1 := Permute(b, key, 0)
	p2 := Permute(b, key, 1)
	if bytes.Equal(p1, p2) {
		t.Fatal("different block indices should (almost certainly) permute differently")
	}
}

func TestPermuteActuallyShuffles(t *testing.T) {
	key := []byte("key-material")
	b := bytes.Repeat([]byte{0, 1, 2, 3, 4, 5, 6, 7}, 64)
	p := Permute(b, key, 42)
	if bytes.Equal(p, b) {
		t.Fatal("permutation of a 512-byte block should not be the identity")
	}
}
