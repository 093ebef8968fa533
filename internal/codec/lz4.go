package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// lz4Codec uses the LZ4 frame format at the library's default level,
// fixed per container (spec §4.1: "fixed choice per implementation").
type lz4Codec struct{}

func (lz4Codec) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, &ErrCodec{Op: "compress(lz4)", Message: err.Error()}
	}
	if err := w.Close(); err != nil {
		return nil, &ErrCodec{Op: "compress(lz4)", Message: err.Error()}
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(compressed []byte, maxRawLen int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	// Read at most maxRawLen+1 bytes so an oversized block is detected
	// without buffering unbounded attacker-controlled output.
	limited := io.LimitReader(r, int64(maxRawLen)+1)
	out, err := io.ReadAll(limited)
	if err != nil {
		return nil, &ErrCodec{Op: "decompress(lz4)", Message: fmt.Sprintf("malformed stream: %v", err)}
	}
	if len(out) > maxRawLen {
		return nil, &ErrCodec{Op: "decompress(lz4)", Message: "block exceeds block_size"}
	}
	return out, nil
}
