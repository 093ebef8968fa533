package orderedio

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func TestInOrderSubmitFlushesImmediately(t *testing.T) {
	var got []int64
	w := NewWriter(func(index int64, payload []byte) error {
		got = append(got, index)
		return nil
	})
	for i := int64(0); i < 5; i++ {
		if err := w.Submit(i, []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	for i, v := range got {
		if v != int64(i) {
			t.Fatalf("expected in-order flush, got %v", got)
		}
	}
}

func TestOutOfOrderSubmitHoldsUntilContiguous(t *testing.T) {
	var got []int64
	w := NewWriter(func(index int64, payload []byte) error {
		got = append(got, index)
		return nil
	})
	w.Submit(2, []byte("c"))
	if len(got) != 0 {
		t.Fatal("block 2 should be held until 0 and 1 arrive")
	}
	w.Submit(1, []byte("b"))
	if len(got) != 0 {
		t.Fatal("block 1 should be held until block 0 arrives")
	}
	if p := w.Pending(); p != 2 {
		t.Fatalf("expected 2 pending blocks, got %d", p)
	}
	w.Submit(0, []byte("a"))
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("expected flush of 0,1,2 in order, got %v", got)
	}
	if p := w.Pending(); p != 0 {
		t.Fatalf("expected 0 pending after full flush, got %d", p)
	}
}

func TestPayloadPreservedAcrossReorder(t *testing.T) {
	var results [][]byte
	w := NewWriter(func(index int64, payload []byte) error {
		results = append(results, payload)
		return nil
	})
	w.Submit(1, []byte("second"))
	w.Submit(0, []byte("first"))
	if !bytes.Equal(results[0], []byte("first")) || !bytes.Equal(results[1], []byte("second")) {
		t.Fatalf("unexpected payload order: %v", results)
	}
}

func TestFlushErrorIsSticky(t *testing.T) {
	boom := errors.New("disk full")
	w := NewWriter(func(index int64, payload []byte) error {
		return boom
	})
	if err := w.Submit(0, []byte("x")); err != boom {
		t.Fatalf("expected flush error, got %v", err)
	}
	if err := w.Submit(1, []byte("y")); err != boom {
		t.Fatalf("expected sticky flush error on later submit, got %v", err)
	}
}

func TestRejectsReplayOfFlushedIndex(t *testing.T) {
	w := NewWriter(func(index int64, payload []byte) error { return nil })
	w.Submit(0, []byte("x"))
	if err := w.Submit(0, []byte("x-again")); err == nil {
		t.Fatal("expected error resubmitting an already-flushed index")
	}
}

func TestDoneReportsCompletion(t *testing.T) {
	w := NewWriter(func(index int64, payload []byte) error { return nil })
	if w.Done(3) {
		t.Fatal("should not be done before any submissions")
	}
	w.Submit(0, nil)
	w.Submit(1, nil)
	w.Submit(2, nil)
	if !w.Done(3) {
		t.Fatal("expected Done(3) after flushing blocks 0,1,2")
	}
}

func TestConcurrentSubmitPreservesOrder(t *testing.T) {
	const n = 500
	var got []int64
	var mu sync.Mutex
	w := NewWriter(func(index int64, payload []byte) error {
		mu.Lock()
		got = append(got, index)
		mu.Unlock()
		return nil
	})
	var wg sync.WaitGroup
	for i := int64(0); i < n; i++ {
		wg.Add(1)
		go func(idx int64) {
			defer wg.Done()
			w.Submit(idx, nil)
		}(i)
	}
	wg.Wait()
	if len(got) != n {
		t.Fatalf("expected %d flushes, got %d", n, len(got))
	}
	for i, v := range got {
		if v != int64(i) {
			t.Fatalf("order broken at position %d: %v", i, got)
		}
	}
}
