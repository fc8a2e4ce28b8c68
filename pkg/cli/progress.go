package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ScanProgress reports progress of a walk over distributors.
type ScanProgress interface {
	// Start resets the counters. A total of zero means unknown.
	Start(total int64)
	// Step records one distributor; upgraded marks it as moved (or, in a
	// dry run, as movable).
	Step(upgraded bool)
	Finish()
	Error(err error)
}

// LineProgress rewrites a single status line on every step.
// It is safe for concurrent use.
type LineProgress struct {
	mu       sync.Mutex
	total    int64
	checked  int64
	upgraded int64
	started  time.Time
	writer   io.Writer
}

// NewScanProgress creates a progress reporter writing to w, or os.Stderr
// when w is nil.
func NewScanProgress(w io.Writer) ScanProgress {
	if w == nil {
		w = os.Stderr
	}
	return &LineProgress{writer: w}
}

// Start implements ScanProgress.
func (p *LineProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.checked = 0
	p.upgraded = 0
	p.started = time.Now()
	p.render()
}

// Step implements ScanProgress.
func (p *LineProgress) Step(upgraded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.checked++
	if upgraded {
		p.upgraded++
	}
	p.render()
}

// Finish implements ScanProgress.
func (p *LineProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.render()
	fmt.Fprintln(p.writer)
}

// Error implements ScanProgress.
func (p *LineProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\nstopped after %d distributors: %v\n", p.checked, err)
}

func (p *LineProgress) render() {
	rate := 0.0
	if elapsed := time.Since(p.started).Seconds(); elapsed > 0 {
		rate = float64(p.checked) / elapsed
	}
	if p.total > 0 {
		fmt.Fprintf(p.writer, "\rchecked %d/%d, upgraded %d (%.1f/s)", p.checked, p.total, p.upgraded, rate)
		return
	}
	fmt.Fprintf(p.writer, "\rchecked %d, upgraded %d (%.1f/s)", p.checked, p.upgraded, rate)
}
