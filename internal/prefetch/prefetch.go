// Package prefetch provides adaptive prefetch-window sizing for the
// Seeker (C9): when recent seek requests look sequential and frequent,
// widen the scheduled block range beyond [first, last] so a scanning
// reader amortizes per-block AEAD/compression overhead across fewer
// round trips. It never changes which bytes a seek returns — only how
// many extra blocks get decrypted speculatively alongside them.
//
// Adapted from the teacher's cryptocore.AdaptivePrefetcher, which sized
// an RNG lookahead buffer from request throughput measured over a
// rolling window; the periodic-profiling/atomic-size shape survives here
// (profiling runs inline in RecordSeek rather than in a worker),
// retargeted from "how many random bytes to keep ready" to "how many
// extra blocks to schedule on the next seek".
package prefetch

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultWindow is the default number of extra blocks prefetched
	// beyond a seek's own [first, last] range.
	DefaultWindow = 0
	// MinWindow is the minimum prefetch window.
	MinWindow = 0
	// MaxWindow is the maximum prefetch window.
	MaxWindow = 32
	// ProfilingPeriod is how often the window is reconsidered.
	ProfilingPeriod = 2 * time.Second
	// SequentialThreshold is the minimum run of consecutive sequential
	// seeks (each at the same first block as the previous one or the
	// next) that grows the window at a profiling check.
	SequentialThreshold = 4
)

// Prefetcher tracks recent seek activity and recommends how many extra
// blocks beyond the requested range the Seeker should schedule.
type Prefetcher struct {
	window      int32
	seekCount   int64
	lastOffset  int64
	sequential  int64
	lastProfile time.Time
	mu          sync.Mutex
	enabled     bool
}

// New returns an enabled Prefetcher whose window starts at DefaultWindow
// (0 extra blocks) and grows only once RecordSeek observes enough
// sequential activity. Seek uses no Prefetcher unless the caller sets
// UnpackConfig.Prefetch — see SPEC_FULL.md: this is a performance
// supplement, never a correctness requirement, so containers behave
// identically without it.
func New() *Prefetcher {
	return &Prefetcher{
		window:      DefaultWindow,
		lastProfile: time.Time{},
		enabled:     true,
	}
}

// Enable turns adaptive prefetching on or off.
func (p *Prefetcher) Enable(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = on
	if !on {
		atomic.StoreInt32(&p.window, 0)
	}
}

// RecordSeek reports a seek at the given first-block index so the
// prefetcher can judge whether access looks sequential.
func (p *Prefetcher) RecordSeek(firstBlock int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	atomic.AddInt64(&p.seekCount, 1)
	if firstBlock == p.lastOffset+1 || firstBlock == p.lastOffset {
		p.sequential++
	} else {
		p.sequential = 0
	}
	p.lastOffset = firstBlock

	if p.lastProfile.IsZero() {
		p.lastProfile = time.Now()
		return
	}
	if time.Since(p.lastProfile) >= ProfilingPeriod {
		p.adjust()
		p.lastProfile = time.Now()
		p.seekCount = 0
	}
}

// adjust grows or shrinks the prefetch window based on how much of the
// recent activity looked sequential. Caller holds p.mu.
func (p *Prefetcher) adjust() {
	current := int(atomic.LoadInt32(&p.window))
	next := current
	if p.sequential >= SequentialThreshold {
		next = current*2 + 1
		if next > MaxWindow {
			next = MaxWindow
		}
	} else {
		next = current / 2
		if next < MinWindow {
			next = MinWindow
		}
	}
	if next != current {
		atomic.StoreInt32(&p.window, int32(next))
	}
}

// Window returns the current recommended number of extra blocks to
// schedule beyond a seek's own range.
func (p *Prefetcher) Window() int {
	return int(atomic.LoadInt32(&p.window))
}
