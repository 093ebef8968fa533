// Package codec implements the per-block compression stage (C1) of the
// Qeltrix pipeline: compress a RawBlock before permutation and sealing,
// decompress after opening and unpermuting.
//
// Grounded on couchbase-tools-common/cbcrypto's compressData dispatch: a
// switch over a compression tag selecting one io.WriteCloser-shaped
// implementation per algorithm. Qeltrix operates on whole in-memory
// blocks rather than a streaming io.Writer, since block size is bounded
// and fixed per container.
package codec

import "fmt"

// Names for the compression tag stored in container metadata.
const (
	LZ4  = "lz4"
	Zstd = "zstd"
	None = "none"
)

// ErrCodec reports a compression or decompression failure — spec's
// CodecError: decompression output exceeding the expected raw length, or
// malformed compressed input.
type ErrCodec struct {
	Op      string
	Message string
}

func (e *ErrCodec) Error() string {
	return fmt.Sprintf("codec: %s: %s", e.Op, e.Message)
}

// BlockCodec compresses and decompresses single blocks.
type BlockCodec interface {
	// Compress returns the codec-specific encoding of raw.
	Compress(raw []byte) ([]byte, error)
	// Decompress returns the original bytes, erroring if the result would
	// exceed maxRawLen (the configured block_size) or the input is
	// malformed.
	Decompress(compressed []byte, maxRawLen int) ([]byte, error)
}

// New returns the BlockCodec for the given compression tag.
func New(name string) (BlockCodec, error) {
	switch name {
	case LZ4:
		return lz4Codec{}, nil
	case Zstd:
		return zstdCodec{}, nil
	case None:
		return noneCodec{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown compression %q", name)
	}
}

// noneCodec is the identity codec: decompress verifies length only, per
// spec §4.1.
type noneCodec struct{}

func (noneCodec) Compress(raw []byte) ([]byte, error) {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (noneCodec) Decompress(compressed []byte, maxRawLen int) ([]byte, error) {
	if len(compressed) > maxRawLen {
		return nil, &ErrCodec{Op: "decompress(none)", Message: "block exceeds block_size"}
	}
	out := make([]byte, len(compressed))
	copy(out, compressed)
	return out, nil
}
