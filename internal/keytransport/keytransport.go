// Package keytransport provides the pluggable mechanism by which the bulk
// data encryption key reaches the unpacker: either content-derived
// (nothing is wrapped; the unpacker does not re-derive the key and takes
// it from UnpackConfig.DataKey instead) or wrapped for a specific
// recipient using RSA-OAEP.
//
// Parsing of key files (PEM, OpenSSH, etc.) is an external concern per the
// format's scope — this package only operates on already-parsed
// *rsa.PublicKey / *rsa.PrivateKey values, matching the cb-mpc demo's
// rsa.EncryptOAEP/rsa.DecryptOAEP call shape for wrapping a short secret.
package keytransport

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// oaepLabel binds wrapped DEKs to this format so a wrapped blob from one
// protocol can't be replayed as if it belonged to another.
var oaepLabel = []byte("qeltrix-dek-v1")

// Transport derives or wraps the 32-byte data encryption key.
type Transport interface {
	// Wrap returns the wrapped DEK bytes to store in metadata, or nil if
	// this transport is content-derived (no wrapping needed).
	Wrap(dek []byte) ([]byte, error)
	// Unwrap recovers the DEK from wrapped bytes. Unused by ContentDerived.
	Unwrap(wrapped []byte) ([]byte, error)
}

// ContentDerived is the pass-through transport: the bulk key is a
// function of the content itself, so there is nothing to wrap. The
// unpacker never calls Unwrap for it and does not re-derive the key
// either: Pack returns the key, and the unpacker takes it from
// UnpackConfig.DataKey.
type ContentDerived struct{}

// Wrap always returns nil for ContentDerived: no key material is carried
// in the container.
func (ContentDerived) Wrap(dek []byte) ([]byte, error) { return nil, nil }

// Unwrap is never meaningful for ContentDerived and always errors.
func (ContentDerived) Unwrap(wrapped []byte) ([]byte, error) {
	return nil, fmt.Errorf("keytransport: content-derived mode has no wrapped key to unwrap")
}

// RSAOAEP wraps a random data encryption key under a recipient's RSA
// public key (pack side) or unwraps it with the matching private key
// (unpack side). Exactly one of PublicKey/PrivateKey is normally set.
type RSAOAEP struct {
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey
}

// Wrap encrypts dek under PublicKey using RSA-OAEP-SHA256.
func (t RSAOAEP) Wrap(dek []byte) ([]byte, error) {
	if t.PublicKey == nil {
		return nil, fmt.Errorf("keytransport: RSAOAEP.Wrap requires a public key")
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, t.PublicKey, dek, oaepLabel)
	if err != nil {
		return nil, fmt.Errorf("keytransport: RSA-OAEP wrap failed: %w", err)
	}
	return ct, nil
}

// Unwrap decrypts wrapped with PrivateKey using RSA-OAEP-SHA256.
func (t RSAOAEP) Unwrap(wrapped []byte) ([]byte, error) {
	if t.PrivateKey == nil {
		return nil, fmt.Errorf("keytransport: RSAOAEP.Unwrap requires a private key")
	}
	dek, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, t.PrivateKey, wrapped, oaepLabel)
	if err != nil {
		return nil, fmt.Errorf("keytransport: RSA-OAEP unwrap failed: %w", err)
	}
	return dek, nil
}

// GenerateDEK returns a fresh random 32-byte data encryption key, used by
// V3 asymmetric mode in place of a content-derived key.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, 32)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("keytransport: failed to generate DEK: %w", err)
	}
	return dek, nil
}

// SignMetadata produces an RSA-PSS-SHA256 signature over metadata bytes,
// for the optional V3 sender-authentication feature.
func SignMetadata(priv *rsa.PrivateKey, metadata []byte) ([]byte, error) {
	digest := sha256.Sum256(metadata)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], nil)
	if err != nil {
		return nil, fmt.Errorf("keytransport: metadata signing failed: %w", err)
	}
	return sig, nil
}

// VerifyMetadata checks an RSA-PSS-SHA256 signature over metadata bytes.
func VerifyMetadata(pub *rsa.PublicKey, metadata, sig []byte) error {
	digest := sha256.Sum256(metadata)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, nil); err != nil {
		return fmt.Errorf("keytransport: metadata signature verification failed: %w", err)
	}
	return nil
}
