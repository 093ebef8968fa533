package engine

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/Qeltrix/Qeltrix/format"
	"github.com/Qeltrix/Qeltrix/internal/codec"
	"github.com/Qeltrix/Qeltrix/internal/exitcodes"
	"github.com/Qeltrix/Qeltrix/internal/hardening"
	"github.com/Qeltrix/Qeltrix/internal/kdf"
	"github.com/Qeltrix/Qeltrix/internal/keytransport"
	"github.com/Qeltrix/Qeltrix/internal/memguard"
	"github.com/Qeltrix/Qeltrix/internal/orderedio"
	"github.com/Qeltrix/Qeltrix/internal/permute"
	"github.com/Qeltrix/Qeltrix/internal/scheduler"
	"github.com/Qeltrix/Qeltrix/internal/sealer"
)

// opened bundles everything Unpack and Seek both need after parsing a
// container's header and footer: the decoded metadata, the resolved
// bulk key, and the byte range the sealed blocks occupy.
type opened struct {
	meta        format.Metadata
	metaBytes   []byte // exact on-disk metadata bytes, reused verbatim as AD
	footer      format.Footer
	blocksStart int64
	dataKey     []byte
	keyOwned    bool // true if dataKey was allocated here (RSA-unwrapped DEK), not supplied by the caller
	guard       *memguard.MemoryProtection
	codec       codec.BlockCodec
	seal        *sealer.Sealer
}

// release lets go of the lock openContainer placed on dataKey. A
// caller-supplied UnpackConfig.DataKey is only unlocked, since the
// caller may reuse it across further Unpack/Seek calls on the same
// container; a key this package unwrapped itself (an asymmetric
// container's DEK) is wiped outright, since nothing else references it
// once this call returns.
func (o *opened) release() {
	if o.keyOwned {
		o.guard.SecureWipe(o.dataKey)
		return
	}
	o.guard.UnlockMemory(o.dataKey)
}

// openContainer reads and validates a container's header and footer,
// resolves the bulk key via cfg.Transport/cfg.DataKey, and verifies the
// metadata signature if one is present and cfg.VerifyKey is set. It
// does not touch any sealed block.
func openContainer(f *os.File, cfg UnpackConfig) (*opened, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, exitcodes.New(exitcodes.KindIO, "stat container", err)
	}

	version, metaJSON, err := format.ReadHeader(f)
	if err != nil {
		return nil, err
	}
	desc, err := kdf.Descriptor(version)
	if err != nil {
		return nil, exitcodes.New(exitcodes.KindFormat, fmt.Sprintf("unknown version %d", version), err)
	}

	footer, blocksEnd, err := format.LocateFooter(f, info.Size())
	if err != nil {
		return nil, err
	}
	blocksStart := int64(format.HeaderFixedLen) + int64(len(metaJSON))
	if err := format.ValidateBlockIndex(footer.Blocks, uint64(blocksStart)); err != nil {
		return nil, err
	}
	if last := len(footer.Blocks); last > 0 {
		end := footer.Blocks[last-1].Offset + footer.Blocks[last-1].Length
		if int64(end) != blocksEnd {
			return nil, exitcodes.New(exitcodes.KindFormat, "block index does not reach the footer delimiter", nil)
		}
	} else if blocksEnd != blocksStart {
		return nil, exitcodes.New(exitcodes.KindFormat, "non-empty ciphertext region but zero blocks indexed", nil)
	}

	meta, err := format.UnmarshalMetadata(metaJSON)
	if err != nil {
		return nil, err
	}
	if meta.Version != version {
		return nil, exitcodes.New(exitcodes.KindFormat, "header version does not match metadata version", nil)
	}
	if !desc.AllowsAlgo(meta.Algo) {
		return nil, exitcodes.New(exitcodes.KindFormat, fmt.Sprintf("version %d does not permit algo %q", version, meta.Algo), nil)
	}
	if !desc.AllowsCompression(meta.Compression) {
		return nil, exitcodes.New(exitcodes.KindFormat, fmt.Sprintf("version %d does not permit compression %q", version, meta.Compression), nil)
	}

	if meta.MetadataSignature != "" && cfg.VerifyKey != nil {
		sig, err := base64.StdEncoding.DecodeString(meta.MetadataSignature)
		if err != nil {
			return nil, exitcodes.New(exitcodes.KindFormat, "malformed metadata signature", err)
		}
		unsigned := meta
		unsigned.MetadataSignature = ""
		unsignedBytes, err := format.MarshalMetadata(unsigned)
		if err != nil {
			return nil, err
		}
		if err := keytransport.VerifyMetadata(cfg.VerifyKey, unsignedBytes, sig); err != nil {
			return nil, exitcodes.New(exitcodes.KindAuth, "metadata signature verification failed", err)
		}
	}

	dataKey, owned, err := resolveDataKey(meta, cfg)
	if err != nil {
		return nil, err
	}
	guard := memguard.New()
	guard.LockMemory(dataKey)

	cc, err := codec.New(meta.Compression)
	if err != nil {
		return nil, exitcodes.New(exitcodes.KindFormat, "unknown compression", err)
	}
	s, err := sealer.New(meta.Algo, dataKey)
	if err != nil {
		return nil, exitcodes.New(exitcodes.KindCrypto, "init sealer", err)
	}

	return &opened{
		meta:        meta,
		metaBytes:   metaJSON,
		footer:      footer,
		blocksStart: blocksStart,
		dataKey:     dataKey,
		keyOwned:    owned,
		guard:       guard,
		codec:       cc,
		seal:        s,
	}, nil
}

// resolveDataKey recovers the bulk AEAD key for an already-parsed
// container: unwraps it via Transport for asymmetric containers, or
// uses the caller-supplied DataKey for content-derived ones. A
// content-derived key cannot be reconstructed from the container file
// alone (see UnpackConfig.DataKey), so its absence is a CryptoError,
// not a FormatError. The returned bool reports whether the key was
// freshly allocated here (safe to wipe once the caller is done with it)
// as opposed to being the caller's own UnpackConfig.DataKey slice.
func resolveDataKey(meta format.Metadata, cfg UnpackConfig) ([]byte, bool, error) {
	if meta.WrappedDEK != "" {
		wrapped, err := base64.StdEncoding.DecodeString(meta.WrappedDEK)
		if err != nil {
			return nil, false, exitcodes.New(exitcodes.KindFormat, "malformed wrapped_dek", err)
		}
		transport, ok := cfg.Transport.(keytransport.RSAOAEP)
		if !ok {
			return nil, false, exitcodes.New(exitcodes.KindCrypto, "container requires an RSAOAEP transport with a private key", nil)
		}
		dek, err := transport.Unwrap(wrapped)
		if err != nil {
			return nil, false, exitcodes.New(exitcodes.KindCrypto, "unwrap data encryption key", err)
		}
		return dek, true, nil
	}
	if len(cfg.DataKey) == 0 {
		return nil, false, exitcodes.New(exitcodes.KindCrypto, "content-derived container requires UnpackConfig.DataKey", nil)
	}
	return cfg.DataKey, false, nil
}

// openBlock is the unit of work shared by Unpack and Seek: open one
// sealed block, unpermute, and decompress it.
func (o *opened) openBlock(f *os.File, idx int64) ([]byte, error) {
	entry := o.footer.Blocks[idx]
	raw := make([]byte, entry.Length)
	if _, err := f.ReadAt(raw, int64(entry.Offset)); err != nil {
		return nil, exitcodes.New(exitcodes.KindIO, "read sealed block", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(entry.Nonce)
	if err != nil {
		return nil, exitcodes.New(exitcodes.KindFormat, "malformed nonce", err)
	}
	plaintext, err := o.seal.Open(nonce, raw, o.metaBytes)
	if err != nil {
		return nil, exitcodes.New(exitcodes.KindAuth, fmt.Sprintf("block %d failed authentication", idx), err)
	}
	if o.meta.Permute {
		plaintext = permute.Unpermute(plaintext, o.dataKey, uint64(idx))
	}
	out, err := o.codec.Decompress(plaintext, o.meta.BlockSize)
	if err != nil {
		return nil, exitcodes.New(exitcodes.KindCodec, fmt.Sprintf("block %d decompress", idx), err)
	}
	return out, nil
}

// Unpack reads the container at inPath and writes the restored bytes to
// w, per spec §4.8. Unless cfg.NoVerify is set, it recomputes the
// global ciphertext hash while streaming sealed blocks and fails with
// an IntegrityError on mismatch.
func Unpack(ctx context.Context, inPath string, w io.Writer, cfg UnpackConfig) error {
	hardening.New().HardenProcess()

	f, err := os.Open(inPath)
	if err != nil {
		return exitcodes.New(exitcodes.KindIO, "open container", err)
	}
	defer f.Close()

	o, err := openContainer(f, cfg)
	if err != nil {
		return err
	}
	defer o.release()

	if !cfg.NoVerify {
		if err := verifyGlobalHash(f, o); err != nil {
			return err
		}
	}

	total := int64(len(o.footer.Blocks))
	pool := scheduler.New(cfg.Workers)
	jobs := pool.Queue()
	writer := orderedio.NewWriter(func(index int64, payload []byte) error {
		if _, err := w.Write(payload); err != nil {
			return exitcodes.New(exitcodes.KindIO, "write decrypted output", err)
		}
		return nil
	})

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- pool.Run(jobCtx, jobs) }()

submitLoop:
	for i := int64(0); i < total; i++ {
		idx := i
		job := scheduler.Job{Index: idx, Run: func(ctx context.Context) error {
			out, err := o.openBlock(f, idx)
			if err != nil {
				cancel()
				return err
			}
			if err := writer.Submit(idx, out); err != nil {
				cancel()
				return err
			}
			return nil
		}}
		select {
		case jobs <- job:
		case <-jobCtx.Done():
			break submitLoop
		}
	}
	close(jobs)
	if err := <-runErr; err != nil {
		return exitcodes.New(exitcodes.KindCrypto, "unpack worker failed", err)
	}
	return nil
}

// verifyGlobalHash recomputes the SHA-256 over every sealed block's
// ciphertext bytes, in order, and compares it against the footer's
// recorded global_ciphertext_sha256.
func verifyGlobalHash(f *os.File, o *opened) error {
	h := sha256.New()
	buf := make([]byte, 64*1024)
	for _, entry := range o.footer.Blocks {
		remaining := int64(entry.Length)
		off := int64(entry.Offset)
		for remaining > 0 {
			n := int64(len(buf))
			if remaining < n {
				n = remaining
			}
			if _, err := f.ReadAt(buf[:n], off); err != nil {
				return exitcodes.New(exitcodes.KindIO, "read block for hash verification", err)
			}
			h.Write(buf[:n])
			off += n
			remaining -= n
		}
	}
	got := fmt.Sprintf("%x", h.Sum(nil))
	if got != o.footer.GlobalCiphertextSHA256 {
		return exitcodes.New(exitcodes.KindIntegrity, "global ciphertext hash mismatch", nil)
	}
	return nil
}
