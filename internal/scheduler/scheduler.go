// Package scheduler runs the per-block pack/unpack pipeline (C7/C8)
// across a bounded pool of workers; each job feeds its completed block
// to an orderedio.Writer so output stays in strict index order
// regardless of which worker finished it.
//
// Adapted from the teacher's parallelcrypto.ParallelCrypto: the
// CPU-aware worker-count sizing survives as DefaultWorkers, but
// the index-range-splitting WaitGroup dispatch is replaced with a
// bounded job queue on top of golang.org/x/sync/errgroup, the same
// dependency the pack lists in go.mod for first-error-wins
// cancellation — one job per block rather than one goroutine per
// contiguous range, since pack/unpack jobs have non-uniform cost
// (compression ratio varies per block) and a shared queue balances that
// where range-splitting cannot.
package scheduler

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers returns the worker count used when a caller does not
// override it: the number of logical CPUs, at least 1.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// Job is one unit of scheduled work: process the block at Index and
// report any error. Implementations are responsible for delivering
// their result to an orderedio.Writer themselves; the scheduler only
// guarantees each Job runs and any error aborts the remaining queue.
type Job struct {
	Index int64
	Run   func(ctx context.Context) error
}

// Pool runs a stream of Jobs across a bounded number of workers, with a
// queue depth of 2×workers so producers can stay ahead of workers
// without buffering the entire job list in memory at once.
type Pool struct {
	workers int
}

// New constructs a Pool with the given worker count. A workers value
// less than 1 is treated as DefaultWorkers().
func New(workers int) *Pool {
	if workers < 1 {
		workers = DefaultWorkers()
	}
	return &Pool{workers: workers}
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return p.workers }

// Run consumes jobs from the jobs channel until it closes or ctx is
// cancelled, running up to p.workers concurrently. The first job error
// cancels the shared context and is returned once every worker has
// stopped; all other in-flight errors are discarded in favor of the
// first.
func (p *Pool) Run(ctx context.Context, jobs <-chan Job) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for {
		select {
		case <-gctx.Done():
			return g.Wait()
		case job, ok := <-jobs:
			if !ok {
				return g.Wait()
			}
			run := job.Run
			g.Go(func() error {
				return run(gctx)
			})
		}
	}
}

// Queue builds a buffered job channel sized 2×workers. The caller
// closes it once it has submitted every job.
func (p *Pool) Queue() chan Job {
	return make(chan Job, 2*p.workers)
}
