package keytransport

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func TestContentDerivedWrapIsNil(t *testing.T) {
	var ct ContentDerived
	wrapped, err := ct.Wrap([]byte("anything"))
	if err != nil {
		t.Fatal(err)
	}
	if wrapped != nil {
		t.Fatal("ContentDerived.Wrap should return nil")
	}
	if _, err := ct.Unwrap(nil); err == nil {
		t.Fatal("ContentDerived.Unwrap should always error")
	}
}

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestRSAOAEPRoundTrip(t *testing.T) {
	priv := genKey(t)
	dek, err := GenerateDEK()
	if err != nil {
		t.Fatal(err)
	}

	wrapper := RSAOAEP{PublicKey: &priv.PublicKey}
	wrapped, err := wrapper.Wrap(dek)
	if err != nil {
		t.Fatal(err)
	}

	unwrapper := RSAOAEP{PrivateKey: priv}
	got, err := unwrapper.Unwrap(wrapped)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, dek) {
		t.Fatal("unwrapped DEK does not match original")
	}
}

func TestRSAOAEPWrongKeyFails(t *testing.T) {
	priv1 := genKey(t)
	priv2 := genKey(t)

	dek, _ := GenerateDEK()
	wrapped, err := (RSAOAEP{PublicKey: &priv1.PublicKey}).Wrap(dek)
	if err != nil {
		t.Fatal(err)
	}

	_, err = (RSAOAEP{PrivateKey: priv2}).Unwrap(wrapped)
	if err == nil {
		t.Fatal("unwrapping with the wrong private key must fail")
	}
}

func TestMetadataSignatureRoundTrip(t *testing.T) {
	priv := genKey(t)
	metadata := []byte(`{"version":3,"algo":"chacha20"}`)

	sig, err := SignMetadata(priv, metadata)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyMetadata(&priv.PublicKey, metadata, sig); err != nil {
		t.Fatalf("valid signature should verify: %v", err)
	}

	tampered := append([]byte(nil), metadata...)
	tampered[0] ^= 0xff
	if err := VerifyMetadata(&priv.PublicKey, tampered, sig); err == nil {
		t.Fatal("signature should not verify over tampered metadata")
	}
}
