package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func submitAll(p *Pool, ctx context.Context, n int, run func(i int64) func(context.Context) error) error {
	jobs := p.Queue()
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run(ctx, jobs)
	}()
	for i := int64(0); i < int64(n); i++ {
		jobs <- Job{Index: i, Run: run(i)}
	}
	close(jobs)
	return <-errCh
}

func TestAllJobsRun(t *testing.T) {
	p := New(4)
	var count int64
	err := submitAll(p, context.Background(), 50, func(i int64) func(context.Context) error {
		return func(context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 50 {
		t.Fatalf("expected 50 jobs to run, got %d", count)
	}
}

func TestFirstErrorWins(t *testing.T) {
	p := New(4)
	boom := errors.New("block corrupt")
	var ran int64
	err := submitAll(p, context.Background(), 100, func(i int64) func(context.Context) error {
		return func(ctx context.Context) error {
			if i == 7 {
				return boom
			}
			atomic.AddInt64(&ran, 1)
			return ctx.Err()
		}
	})
	if err == nil {
		t.Fatal("expected an error from the job that failed")
	}
}

func TestDefaultWorkersAtLeastOne(t *testing.T) {
	if DefaultWorkers() < 1 {
		t.Fatal("DefaultWorkers must return at least 1")
	}
}

func TestNewClampsNonPositiveWorkers(t *testing.T) {
	p := New(0)
	if p.Workers() < 1 {
		t.Fatalf("expected New(0) to fall back to a positive worker count, got %d", p.Workers())
	}
}

func TestConcurrencyRespectsWorkerLimit(t *testing.T) {
	p := New(2)
	var active, maxActive int64
	var mu sync.Mutex
	err := submitAll(p, context.Background(), 20, func(i int64) func(context.Context) error {
		return func(context.Context) error {
			n := atomic.AddInt64(&active, 1)
			mu.Lock()
			if n > maxActive {
				maxActive = n
			}
			mu.Unlock()
			atomic.AddInt64(&active, -1)
			return nil
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if maxActive > 2 {
		t.Fatalf("expected at most 2 concurrent jobs, observed %d", maxActive)
	}
}
