package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// zstdCodec uses the default Zstandard level with no dictionary, per
// spec §4.1. Grounded on couchbase-tools-common/cbcrypto's
// zstd.NewWriter(dst) usage.
type zstdCodec struct{}

func (zstdCodec) Compress(raw []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, &ErrCodec{Op: "compress(zstd)", Message: err.Error()}
	}
	defer w.Close()
	return w.EncodeAll(raw, nil), nil
}

func (zstdCodec) Decompress(compressed []byte, maxRawLen int) ([]byte, error) {
	d, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, &ErrCodec{Op: "decompress(zstd)", Message: err.Error()}
	}
	defer d.Close()
	// Bound the read itself, the same way lz4Codec does, rather than
	// decompressing everything and only checking the length afterward —
	// a hostile block claiming a huge raw size should not make us
	// allocate past block_size before we notice.
	limited := io.LimitReader(d, int64(maxRawLen)+1)
	out, err := io.ReadAll(limited)
	if err != nil {
		return nil, &ErrCodec{Op: "decompress(zstd)", Message: fmt.Sprintf("malformed stream: %v", err)}
	}
	if len(out) > maxRawLen {
		return nil, &ErrCodec{Op: "decompress(zstd)", Message: "block exceeds block_size"}
	}
	return out, nil
}
