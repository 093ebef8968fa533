// Package engine orchestrates the format, kdf, keytransport, codec,
// permute, sealer, scheduler, and orderedio packages into the three
// operations a Qeltrix container supports: Pack, Unpack, and Seek.
//
// Grounded on the teacher's contentenc.ContentEnc: one struct owning the
// crypto primitives plus per-direction Encrypt*/Decrypt* methods backed
// by pooled buffers and a parallel-crypto helper played here by
// internal/scheduler. ContentEnc's fixed 4096-byte FUSE block is
// generalized to a configurable block size with a compress-then-permute
// stage ahead of sealing, and "mounted filesystem" is replaced by
// "one-shot pack/unpack/seek over a single byte stream".
package engine

import (
	"crypto/rsa"

	"github.com/Qeltrix/Qeltrix/internal/keytransport"
	"github.com/Qeltrix/Qeltrix/internal/prefetch"
)

// Config configures a Pack run.
type Config struct {
	// Version selects the format version (1-4), which constrains the
	// remaining fields via kdf.Descriptor.
	Version int
	// BlockSize is the plaintext block size in bytes.
	BlockSize int
	// Mode is format.ModeTwoPass or format.ModeSinglePassFirstN.
	Mode string
	// HeadBytes is the number of leading raw bytes the key is derived
	// from in single-pass mode. Ignored for two-pass.
	HeadBytes int
	// Compression selects the BlockCodec: codec.LZ4, codec.Zstd, or
	// codec.None.
	Compression string
	// Algo selects the AEAD: sealer.ChaCha20 or sealer.AES256.
	Algo string
	// Permute enables the per-block obfuscating shuffle.
	Permute bool
	// Workers is the scheduler worker count; 0 selects
	// scheduler.DefaultWorkers().
	Workers int
	// TempDir is the scratch directory for two-pass compressed blocks.
	// Empty selects the OS default temp location.
	TempDir string
	// Transport is the key transport. nil selects
	// keytransport.ContentDerived{}. Set to a keytransport.RSAOAEP with
	// PublicKey populated to pack in V3 asymmetric mode.
	Transport keytransport.Transport
	// SignKey, if set, signs the metadata bytes (marshaled without the
	// metadata_signature field) with RSA-PSS-SHA256 and stores the
	// signature in metadata_signature (V3 optional).
	SignKey *rsa.PrivateKey
}

// UnpackConfig configures an Unpack or Seek run.
type UnpackConfig struct {
	// Workers is the scheduler worker count; 0 selects
	// scheduler.DefaultWorkers().
	Workers int
	// NoVerify disables the global ciphertext hash check. Per-block AEAD
	// verification is never skippable.
	NoVerify bool
	// Transport recovers the DEK for asymmetric containers. Set to a
	// keytransport.RSAOAEP with PrivateKey populated to unwrap. Leave nil
	// for content-derived containers.
	Transport keytransport.Transport
	// VerifyKey, if set and metadata carries a signature, must verify it
	// before any block is opened.
	VerifyKey *rsa.PublicKey
	// DataKey supplies the bulk AEAD key directly for content-derived
	// containers. A content-derived key cannot be re-derived from
	// ciphertext alone (for two_pass it is a hash of the compressed
	// plaintext; for single_pass_firstN it is a hash of the first raw
	// bytes) — whoever unpacks such a container must already hold the
	// key, typically retained from Pack's return value or re-derived from
	// their own copy of the original content. Ignored when the container
	// carries a wrapped_dek (asymmetric mode uses Transport instead).
	DataKey []byte
	// Prefetch, if set, lets Seek widen its decrypted block range beyond
	// [first, last] when recent seeks on the same *Prefetcher look
	// sequential, amortizing per-block overhead for scanning readers. It
	// never changes which bytes a call returns. Share one *Prefetcher
	// across repeated Seek calls on the same container to get any benefit
	// from it; nil disables the behavior entirely.
	Prefetch *prefetch.Prefetcher
}
