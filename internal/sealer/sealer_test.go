package sealer

import (
	"bytes"
	"testing"
)

func key32(b byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = b
	}
	return k
}

func TestSealOpenRoundTrip(t *testing.T) {
	for _, algo := range []string{ChaCha20, AES256} {
		t.Run(algo, func(t *testing.T) {
			s, err := New(algo, key32(0x11))
			if err != nil {
				t.Fatal(err)
			}
			nonce, err := RandomNonce()
			if err != nil {
				t.Fatal(err)
			}
			ad := []byte("associated-data")
			pt := []byte("hello, qeltrix block")
			ct := s.Seal(nonce, pt, ad)
			if len(ct) != len(pt)+s.Overhead() {
				t.Fatalf("unexpected ciphertext length: %d", len(ct))
			}
			got, err := s.Open(nonce, ct, ad)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, pt) {
				t.Fatal("round trip mismatch")
			}
		})
	}
}

func TestOpenFailsOnTamperedAD(t *testing.T) {
	s, _ := New(ChaCha20, key32(0x22))
	nonce, _ := RandomNonce()
	ct := s.Seal(nonce, []byte("plaintext"), []byte("original-ad"))
	if _, err := s.Open(nonce, ct, []byte("tampered-ad")); err == nil {
		t.Fatal("expected AuthError for mismatched associated data")
	}
}

func TestOpenFailsOnTamperedCiphertext(t *testing.T) {
	s, _ := New(AES256, key32(0x33))
	nonce, _ := RandomNonce()
	ct := s.Seal(nonce, []byte("plaintext"), []byte("ad"))
	ct[0] ^= 0xff
	if _, err := s.Open(nonce, ct, []byte("ad")); err == nil {
		t.Fatal("expected AuthError for tampered ciphertext")
	}
}

func TestNonceUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		n, err := RandomNonce()
		if err != nil {
			t.Fatal(err)
		}
		if seen[string(n)] {
			t.Fatal("nonce collision across 1000 samples")
		}
		seen[string(n)] = true
	}
}

func TestRejectsWrongKeyLength(t *testing.T) {
	if _, err := New(ChaCha20, make([]byte, 16)); err == nil {
		t.Fatal("expected error for short key")
	}
}
