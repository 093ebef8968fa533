package engine

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Qeltrix/Qeltrix/format"
	"github.com/Qeltrix/Qeltrix/internal/codec"
	"github.com/Qeltrix/Qeltrix/internal/cpudetection"
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

// packState carries everything stage B's per-block jobs need, set up
// once the data key is known.
type packState struct {
	dataKey   []byte
	ad        []byte
	permute   bool
	seal      *sealer.Sealer
	blocksEnd int64 // running end offset, protected by orderedio's flush ordering
	hash      interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
	entries []format.BlockEntry
	w       io.Writer
}

func (ps *packState) flush(index int64, payload []byte) error {
	nonce := payload[:sealer.NonceLen]
	ciphertext := payload[sealer.NonceLen:]
	if _, err := ps.w.Write(ciphertext); err != nil {
		return exitcodes.New(exitcodes.KindIO, "write sealed block", err)
	}
	ps.hash.Write(ciphertext)
	entry := format.BlockEntry{
		Offset: uint64(ps.blocksEnd),
		Nonce:  base64.StdEncoding.EncodeToString(nonce),
		Length: uint64(len(ciphertext)),
	}
	ps.entries = append(ps.entries, entry)
	ps.blocksEnd += int64(len(ciphertext))
	return nil
}

// defaultAlgo picks a sealing algorithm for callers who leave cfg.Algo
// unset, favoring whichever the detected CPU accelerates in hardware
// among the algos the format version actually permits.
func defaultAlgo(allowed []string) string {
	preferred := sealer.ChaCha20
	if cpudetection.New().IsOptimalForAES() {
		preferred = sealer.AES256
	}
	for _, a := range allowed {
		if a == preferred {
			return preferred
		}
	}
	if len(allowed) > 0 {
		return allowed[0]
	}
	return preferred
}

// validateConfig checks cfg against the format version's VersionDescriptor.
func validateConfig(cfg Config) (kdf.VersionDescriptor, error) {
	desc, err := kdf.Descriptor(cfg.Version)
	if err != nil {
		return desc, exitcodes.New(exitcodes.KindUsage, "bad version", err)
	}
	if !desc.AllowsAlgo(cfg.Algo) {
		return desc, exitcodes.New(exitcodes.KindUsage, fmt.Sprintf("version %d does not permit algo %q", cfg.Version, cfg.Algo), nil)
	}
	if !desc.AllowsCompression(cfg.Compression) {
		return desc, exitcodes.New(exitcodes.KindUsage, fmt.Sprintf("version %d does not permit compression %q", cfg.Version, cfg.Compression), nil)
	}
	if cfg.Mode == format.ModeSinglePassFirstN && !desc.AllowsSinglePass {
		return desc, exitcodes.New(exitcodes.KindUsage, fmt.Sprintf("version %d does not permit single-pass mode", cfg.Version), nil)
	}
	if cfg.BlockSize <= 0 {
		return desc, exitcodes.New(exitcodes.KindUsage, "block_size must be positive", nil)
	}
	return desc, nil
}

func isAsymmetric(t keytransport.Transport) bool {
	_, ok := t.(keytransport.RSAOAEP)
	return ok
}

// Pack reads input in full and writes a Qeltrix container to outPath,
// per spec §4.7. On any failure it removes the partially written output
// (and, for two-pass, its temp directory) before returning. It returns
// the footer and the bulk data key actually used to seal every block.
//
// For content-derived containers that key cannot be recovered from the
// container file alone — see UnpackConfig.DataKey — so callers that
// need to unpack later must retain it (or re-derive it themselves from
// their own copy of the original content).
func Pack(ctx context.Context, input io.Reader, outPath string, cfg Config) (*format.Footer, []byte, error) {
	hardening.New().HardenProcess()

	if cfg.Algo == "" {
		versionDesc, err := kdf.Descriptor(cfg.Version)
		if err != nil {
			return nil, nil, exitcodes.New(exitcodes.KindUsage, "bad version", err)
		}
		cfg.Algo = defaultAlgo(versionDesc.AllowedAlgos)
	}
	desc, err := validateConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	transport := cfg.Transport
	if transport == nil {
		transport = keytransport.ContentDerived{}
	}
	asymmetric := isAsymmetric(transport)
	if asymmetric && !desc.AllowsAsymmetric {
		return nil, nil, exitcodes.New(exitcodes.KindUsage, fmt.Sprintf("version %d does not permit asymmetric key transport", cfg.Version), nil)
	}

	cc, err := codec.New(cfg.Compression)
	if err != nil {
		return nil, nil, exitcodes.New(exitcodes.KindUsage, "unknown compression", err)
	}

	salt := make([]byte, kdf.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, exitcodes.New(exitcodes.KindCrypto, "generate salt", err)
	}

	var dataKey, wrappedDEK []byte
	effectiveInput := input
	actualHeadBytes := 0

	if asymmetric {
		dek, err := keytransport.GenerateDEK()
		if err != nil {
			return nil, nil, exitcodes.New(exitcodes.KindCrypto, "generate DEK", err)
		}
		dataKey = dek
		wrappedDEK, err = transport.Wrap(dek)
		if err != nil {
			return nil, nil, exitcodes.New(exitcodes.KindCrypto, "wrap DEK", err)
		}
	} else if cfg.Mode == format.ModeSinglePassFirstN {
		buf := make([]byte, cfg.HeadBytes)
		n, rerr := io.ReadFull(input, buf)
		switch {
		case rerr == nil:
			actualHeadBytes = cfg.HeadBytes
		case rerr == io.ErrUnexpectedEOF || rerr == io.EOF:
			actualHeadBytes = n
			buf = buf[:n]
		default:
			return nil, nil, exitcodes.New(exitcodes.KindIO, "read head bytes", rerr)
		}
		ikm := kdf.SinglePassIKM(buf)
		dataKey, err = kdf.Derive(ikm, salt, desc.InfoLabel)
		if err != nil {
			return nil, nil, exitcodes.New(exitcodes.KindCrypto, "derive key", err)
		}
		// ikm is a one-shot digest over the head bytes, not referenced
		// again once dataKey is derived from it; wipe it rather than
		// leave it sitting in memory for the rest of Pack's lifetime.
		memguard.New().SecureWipe(ikm)
		effectiveInput = io.MultiReader(bytes.NewReader(buf), input)
	}
	// Two-pass derives dataKey below, after stage A completes.

	metadata := format.Metadata{
		Version:     cfg.Version,
		Salt:        base64.StdEncoding.EncodeToString(salt),
		BlockSize:   cfg.BlockSize,
		Mode:        cfg.Mode,
		HeadBytes:   actualHeadBytes,
		Compression: cfg.Compression,
		Algo:        cfg.Algo,
		Permute:     cfg.Permute,
	}
	if asymmetric {
		metadata.WrappedDEK = base64.StdEncoding.EncodeToString(wrappedDEK)
	}
	if cfg.SignKey != nil {
		unsigned := metadata
		unsignedBytes, err := format.MarshalMetadata(unsigned)
		if err != nil {
			return nil, nil, err
		}
		sig, err := keytransport.SignMetadata(cfg.SignKey, unsignedBytes)
		if err != nil {
			return nil, nil, exitcodes.New(exitcodes.KindCrypto, "sign metadata", err)
		}
		metadata.MetadataSignature = base64.StdEncoding.EncodeToString(sig)
	}
	metaBytes, err := format.MarshalMetadata(metadata)
	if err != nil {
		return nil, nil, err
	}

	outFile, err := os.Create(outPath)
	if err != nil {
		return nil, nil, exitcodes.New(exitcodes.KindIO, "create output", err)
	}
	success := false
	defer func() {
		outFile.Close()
		if !success {
			os.Remove(outPath)
		}
	}()

	if err := format.WriteHeader(outFile, cfg.Version, metaBytes); err != nil {
		return nil, nil, err
	}
	blocksStart := int64(format.HeaderFixedLen) + int64(len(metaBytes))

	ps := &packState{
		dataKey:   dataKey,
		ad:        metaBytes,
		permute:   cfg.Permute,
		blocksEnd: blocksStart,
		hash:      sha256.New(),
		w:         outFile,
	}
	// Two-pass mode derives dataKey only after stage A completes, so its
	// Sealer is constructed inside packTwoPass instead of here.
	if dataKey != nil {
		s, err := sealer.New(cfg.Algo, dataKey)
		if err != nil {
			return nil, nil, exitcodes.New(exitcodes.KindCrypto, "init sealer", err)
		}
		ps.seal = s
	}

	var totalBlocks int64
	if cfg.Mode == format.ModeTwoPass {
		totalBlocks, err = packTwoPass(ctx, effectiveInput, cc, cfg, desc, salt, ps)
	} else {
		totalBlocks, err = packStreamed(ctx, effectiveInput, cc, cfg, ps)
	}
	if err != nil {
		return nil, nil, err
	}

	footer := format.Footer{
		Blocks:                 ps.entries,
		GlobalCiphertextSHA256: fmt.Sprintf("%x", ps.hash.Sum(nil)),
	}
	if err := format.ValidateBlockIndex(footer.Blocks, uint64(blocksStart)); err != nil {
		return nil, nil, err
	}
	if err := format.WriteFooter(outFile, footer); err != nil {
		return nil, nil, err
	}
	_ = totalBlocks
	success = true
	memguard.New().LockMemory(ps.dataKey)
	return &footer, ps.dataKey, nil
}

// packStreamed implements the single-pass pipeline: read each block
// once from input, fan out compress/permute/seal across workers, and
// write sealed blocks to ps.w strictly in index order.
func packStreamed(ctx context.Context, input io.Reader, cc codec.BlockCodec, cfg Config, ps *packState) (int64, error) {
	pool := scheduler.New(cfg.Workers)
	jobs := pool.Queue()
	writer := orderedio.NewWriter(ps.flush)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- pool.Run(jobCtx, jobs) }()

	var n int64
	var readErr error
readLoop:
	for {
		data, eof, err := readBlock(input, cfg.BlockSize)
		if err != nil {
			readErr = exitcodes.New(exitcodes.KindIO, "read block", err)
			break readLoop
		}
		if data == nil {
			break
		}
		idx := n
		n++
		raw := data
		job := scheduler.Job{Index: idx, Run: func(ctx context.Context) error {
			if err := sealBlock(idx, raw, cc, ps, writer); err != nil {
				cancel()
				return err
			}
			return nil
		}}
		select {
		case jobs <- job:
		case <-jobCtx.Done():
			break readLoop
		}
		if eof {
			break
		}
	}
	close(jobs)
	if err := <-runErr; err != nil {
		return 0, exitcodes.New(exitcodes.KindCrypto, "pack worker failed", err)
	}
	if readErr != nil {
		return 0, readErr
	}
	return n, nil
}

// packTwoPass implements the two-pass pipeline: stage A reads, compresses,
// and persists every block to temp files while hashing compressed bytes
// in order; stage B derives the key from the finished hash, then fans
// sealing out across workers exactly like packStreamed.
func packTwoPass(ctx context.Context, input io.Reader, cc codec.BlockCodec, cfg Config, desc kdf.VersionDescriptor, salt []byte, ps *packState) (int64, error) {
	tempDir, err := os.MkdirTemp(cfg.TempDir, "qltx-pack-*")
	if err != nil {
		return 0, exitcodes.New(exitcodes.KindIO, "create temp dir", err)
	}
	defer os.RemoveAll(tempDir)

	running := kdf.NewTwoPassIKM()
	var n int64
	for {
		data, eof, err := readBlock(input, cfg.BlockSize)
		if err != nil {
			return 0, exitcodes.New(exitcodes.KindIO, "read block", err)
		}
		if data == nil {
			break
		}
		compressed, err := cc.Compress(data)
		if err != nil {
			return 0, exitcodes.New(exitcodes.KindCodec, "compress block", err)
		}
		path := tempBlockPath(tempDir, n)
		if err := os.WriteFile(path, compressed, 0o600); err != nil {
			return 0, exitcodes.New(exitcodes.KindIO, "write temp block", err)
		}
		running.Write(compressed)
		n++
		if eof {
			break
		}
	}

	if ps.dataKey == nil {
		ikm := running.Sum()
		key, err := kdf.Derive(ikm, salt, desc.InfoLabel)
		if err != nil {
			return 0, exitcodes.New(exitcodes.KindCrypto, "derive key", err)
		}
		// Stage A's running hash over every compressed block is the
		// content-derived key's sole input; once the bulk key is
		// derived from it, the digest itself has no further use.
		memguard.New().SecureWipe(ikm)
		ps.dataKey = key
		s, err := sealer.New(cfg.Algo, key)
		if err != nil {
			return 0, exitcodes.New(exitcodes.KindCrypto, "init sealer", err)
		}
		ps.seal = s
	}

	pool := scheduler.New(cfg.Workers)
	jobs := pool.Queue()
	writer := orderedio.NewWriter(ps.flush)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- pool.Run(jobCtx, jobs) }()

submitLoop:
	for i := int64(0); i < n; i++ {
		idx := i
		job := scheduler.Job{Index: idx, Run: func(ctx context.Context) error {
			compressed, err := os.ReadFile(tempBlockPath(tempDir, idx))
			if err != nil {
				cancel()
				return exitcodes.New(exitcodes.KindIO, "read temp block", err)
			}
			if err := sealBlock(idx, compressed, nil, ps, writer); err != nil {
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
		return 0, exitcodes.New(exitcodes.KindCrypto, "pack worker failed", err)
	}
	return n, nil
}

// sealBlock runs the shared compress(optional)/permute/seal stage for
// one block and submits the result to writer in (nonce||ciphertext) form.
func sealBlock(idx int64, raw []byte, cc codec.BlockCodec, ps *packState, writer *orderedio.Writer) error {
	payload := raw
	if cc != nil {
		compressed, err := cc.Compress(raw)
		if err != nil {
			return exitcodes.New(exitcodes.KindCodec, "compress block", err)
		}
		payload = compressed
	}
	if ps.permute {
		payload = permute.Permute(payload, ps.dataKey, uint64(idx))
	}
	nonce, err := sealer.RandomNonce()
	if err != nil {
		return exitcodes.New(exitcodes.KindCrypto, "generate nonce", err)
	}
	ciphertext := ps.seal.Seal(nonce, payload, ps.ad)
	combined := make([]byte, 0, len(nonce)+len(ciphertext))
	combined = append(combined, nonce...)
	combined = append(combined, ciphertext...)
	return writer.Submit(idx, combined)
}

func tempBlockPath(dir string, index int64) string {
	return filepath.Join(dir, fmt.Sprintf("block-%d", index))
}
