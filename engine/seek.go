package engine

import (
	"context"
	"os"

	"github.com/Qeltrix/Qeltrix/internal/exitcodes"
	"github.com/Qeltrix/Qeltrix/internal/hardening"
	"github.com/Qeltrix/Qeltrix/internal/orderedio"
	"github.com/Qeltrix/Qeltrix/internal/scheduler"
)

// Seek returns the length bytes of the original input starting at
// offset, decrypting only the blocks that cover that range, per
// spec §4.9. A request wholly beyond the end of the stream fails with
// a RangeError; a request that partially overruns returns the
// available suffix instead of failing.
func Seek(ctx context.Context, inPath string, offset, length int64, cfg UnpackConfig) ([]byte, error) {
	hardening.New().HardenProcess()

	if offset < 0 || length < 0 {
		return nil, exitcodes.New(exitcodes.KindUsage, "offset and length must be non-negative", nil)
	}

	f, err := os.Open(inPath)
	if err != nil {
		return nil, exitcodes.New(exitcodes.KindIO, "open container", err)
	}
	defer f.Close()

	o, err := openContainer(f, cfg)
	if err != nil {
		return nil, err
	}
	defer o.release()

	blockSize := int64(o.meta.BlockSize)
	totalBlocks := int64(len(o.footer.Blocks))

	var lastBlockStart int64
	if totalBlocks > 0 {
		lastBlockStart = (totalBlocks - 1) * blockSize
	}

	// Every block before the last is exactly blockSize, so an offset
	// strictly before the last block is always within the stream. Only
	// once offset reaches the last block do we need its real (possibly
	// short) decompressed length to know the true
	// end of stream — the last block is frequently shorter than
	// blockSize, so blockSize*totalBlocks is not a reliable EOF bound.
	if offset >= lastBlockStart {
		var streamLen int64
		if totalBlocks > 0 {
			lastPlain, err := o.openBlock(f, totalBlocks-1)
			if err != nil {
				return nil, err
			}
			streamLen = lastBlockStart + int64(len(lastPlain))
		}
		if length == 0 {
			if offset > streamLen {
				return nil, exitcodes.New(exitcodes.KindRange, "seek offset beyond end of stream", nil)
			}
			return []byte{}, nil
		}
		if offset >= streamLen {
			return nil, exitcodes.New(exitcodes.KindRange, "seek offset beyond end of stream", nil)
		}
	} else if length == 0 {
		return []byte{}, nil
	}

	first := offset / blockSize
	last := (offset + length - 1) / blockSize
	if last >= totalBlocks {
		last = totalBlocks - 1
	}
	requested := last

	if cfg.Prefetch != nil {
		cfg.Prefetch.RecordSeek(first)
		last += int64(cfg.Prefetch.Window())
		if last >= totalBlocks {
			last = totalBlocks - 1
		}
	}

	blocks, err := decryptRange(ctx, f, o, first, last, cfg.Workers)
	if err != nil {
		return nil, err
	}

	// Only the caller's own [first, requested] blocks feed the returned
	// window; anything beyond requested was decrypted speculatively to
	// warm the next sequential seek and is discarded here.
	var window []byte
	for i, b := range blocks {
		if first+int64(i) > requested {
			break
		}
		window = append(window, b...)
	}

	start := offset - first*blockSize
	if start > int64(len(window)) {
		start = int64(len(window))
	}
	end := start + length
	if end > int64(len(window)) {
		end = int64(len(window))
	}
	return window[start:end], nil
}

// decryptRange opens blocks [first, last] (inclusive) in parallel and
// returns their decompressed plaintext in strict index order.
func decryptRange(ctx context.Context, f *os.File, o *opened, first, last int64, workers int) ([][]byte, error) {
	count := last - first + 1
	results := make([][]byte, count)

	pool := scheduler.New(workers)
	jobs := pool.Queue()
	writer := orderedio.NewWriter(func(index int64, payload []byte) error {
		results[index] = payload
		return nil
	})

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- pool.Run(jobCtx, jobs) }()

submitLoop:
	for i := first; i <= last; i++ {
		idx := i
		job := scheduler.Job{Index: idx - first, Run: func(ctx context.Context) error {
			out, err := o.openBlock(f, idx)
			if err != nil {
				cancel()
				return err
			}
			if err := writer.Submit(idx-first, out); err != nil {
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
		return nil, exitcodes.New(exitcodes.KindCrypto, "seek worker failed", err)
	}
	return results, nil
}
