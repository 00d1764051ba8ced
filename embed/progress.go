package embed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Tracker reports embedding progress to a writer, typically os.Stderr.
type Tracker struct {
	writer         io.Writer
	total          int
	current        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewTracker creates a progress tracker reporting every reportInterval
// chunks.
func NewTracker(writer io.Writer, total, reportInterval int) *Tracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &Tracker{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start begins tracking.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = time.Now()
	t.started = true
	t.current = 0
	t.lastReported = 0
}

// Update sets the cumulative progress.
func (t *Tracker) Update(current int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return
	}
	if current > t.total {
		current = t.total
	}
	t.current = current

	if t.current-t.lastReported >= t.reportInterval {
		t.report()
		t.lastReported = t.current
	}
}

// Finish prints the final progress line.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return
	}
	t.current = t.total
	t.report()
	fmt.Fprintln(t.writer)
}

// Elapsed returns the time since Start.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return 0
	}
	return time.Since(t.startTime)
}

// Func adapts the tracker to EmbedAll's progress callback.
func (t *Tracker) Func() ProgressFunc {
	return func(done, _ int) {
		t.Update(done)
	}
}

// report prints the current progress. Must be called with lock held.
func (t *Tracker) report() {
	elapsed := time.Since(t.startTime)
	rate := float64(t.current) / elapsed.Seconds()

	percentage := 0.0
	if t.total > 0 {
		percentage = float64(t.current) / float64(t.total) * 100.0
	}

	fmt.Fprintf(t.writer, "\rEmbedding: %d/%d chunks (%.1f%%) - %.1f chunks/s",
		t.current, t.total, percentage, rate)
}
