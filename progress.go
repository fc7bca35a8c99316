package imgclass

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const progressInterval = 500 * time.Millisecond

// progressTracker counts finished downloads and, when given a writer,
// redraws a single progress line on it periodically.
type progressTracker struct {
	mu        sync.Mutex
	w         io.Writer
	total     int
	done      int
	failed    int
	skipped   int
	ticker    *time.Ticker
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func newProgressTracker(w io.Writer, total int) *progressTracker {
	p := &progressTracker{w: w, total: total}
	if w == nil {
		return p
	}
	fmt.Fprintf(w, "Downloading %d images\n", total)
	p.ticker = time.NewTicker(progressInterval)
	p.stopCh = make(chan struct{})
	p.stoppedCh = make(chan struct{})
	go p.display()
	return p
}

func (p *progressTracker) display() {
	defer close(p.stoppedCh)
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.mu.Lock()
			p.render()
			p.mu.Unlock()
		}
	}
}

// render writes the progress line; p.mu must be held.
func (p *progressTracker) render() {
	if p.failed > 0 {
		fmt.Fprintf(p.w, "\rProgress: %d/%d (Errors: %d)", p.done, p.total, p.failed)
	} else {
		fmt.Fprintf(p.w, "\rProgress: %d/%d", p.done, p.total)
	}
}

// record counts one finished download.
func (p *progressTracker) record(err error, skipped bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	switch {
	case err != nil:
		p.failed++
	case skipped:
		p.skipped++
	}
}

// stop ends the display and prints the final counts.
func (p *progressTracker) stop() {
	if p.w == nil {
		return
	}
	p.ticker.Stop()
	close(p.stopCh)
	<-p.stoppedCh

	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintln(p.w)
}
