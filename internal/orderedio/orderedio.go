// Package orderedio restores strict block order on the output side of
// the parallel pipeline (C7/C8): the scheduler seals or opens blocks out
// of order across workers, and this reorder buffer holds each result
// until every lower-indexed block has already been flushed, then emits
// them to the underlying writer strictly in index order.
//
// Adapted from the teacher's writecoalescing.WriteBuffer: the
// mutex-guarded buffer-then-flush-callback shape survives, retargeted
// from "coalesce small writes by size/timeout" to "hold out-of-order
// arrivals until their turn comes". The size/timeout coalescing
// thresholds have no equivalent here — ordering, not batching, is the
// property this buffer exists to guarantee.
package orderedio

import (
	"fmt"
	"sync"
)

// Writer buffers out-of-order (index, payload) arrivals from a worker
// pool and flushes them to FlushCallback strictly in ascending index
// order, starting at 0.
type Writer struct {
	mu            sync.Mutex
	pending       map[int64][]byte
	next          int64
	FlushCallback func(index int64, payload []byte) error
	err           error
}

// NewWriter constructs a Writer that begins flushing at index 0 and
// calls flush for each block in order as it becomes available.
func NewWriter(flush func(index int64, payload []byte) error) *Writer {
	return &Writer{
		pending:       make(map[int64][]byte),
		FlushCallback: flush,
	}
}

// Submit delivers a completed block at the given index. If index is the
// next block awaited, it (and any now-contiguous buffered successors)
// is flushed immediately; otherwise it is held until its turn comes.
// Submit is safe to call concurrently from multiple scheduler workers.
func (w *Writer) Submit(index int64, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	if index < w.next {
		return fmt.Errorf("orderedio: block %d already flushed (next=%d)", index, w.next)
	}

	w.pending[index] = payload
	for {
		next, ok := w.pending[w.next]
		if !ok {
			break
		}
		if err := w.FlushCallback(w.next, next); err != nil {
			w.err = err
			return err
		}
		delete(w.pending, w.next)
		w.next++
	}
	return nil
}

// Pending returns the number of blocks currently held awaiting earlier
// arrivals.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Done reports whether every block up to (not including) total has been
// flushed, i.e. the pipeline can close its output.
func (w *Writer) Done(total int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.next >= total
}
