package prefetch

import "testing"

func TestDefaultWindowIsZero(t *testing.T) {
	p := New()
	if w := p.Window(); w != DefaultWindow {
		t.Fatalf("expected default window %d, got %d", DefaultWindow, w)
	}
}

func TestDisabledNeverGrows(t *testing.T) {
	p := New()
	p.Enable(false)
	for i := int64(0); i < 100; i++ {
		p.RecordSeek(i)
	}
	if w := p.Window(); w != 0 {
		t.Fatalf("disabled prefetcher should stay at window 0, got %d", w)
	}
}

func TestWindowStaysWithinBounds(t *testing.T) {
	p := New()
	for i := int64(0); i < 10000; i++ {
		p.RecordSeek(i)
	}
	w := p.Window()
	if w < MinWindow || w > MaxWindow {
		t.Fatalf("window %d out of bounds [%d,%d]", w, MinWindow, MaxWindow)
	}
}
