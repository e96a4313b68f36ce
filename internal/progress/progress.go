// Package progress counts successful persists for one run and samples the
// count to log throughput.
package progress

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
)

// Counter is the number of successful persists in a run.
type Counter struct {
	n atomic.Uint64
}

// NewCounter returns a counter starting at zero.
func NewCounter() *Counter {
	return &Counter{}
}

// Inc adds one and returns the new value.
func (c *Counter) Inc() uint64 {
	return c.n.Add(1)
}

// Load returns the current value.
func (c *Counter) Load() uint64 {
	return c.n.Load()
}

// Reporter logs the persist rate whenever the counter reaches a positive
// multiple of its interval. Sampling is best effort: a multiple may be
// skipped when concurrent increments race past it.
type Reporter struct {
	counter  *Counter
	interval uint64
	clock    quartz.Clock
	start    time.Time
	logger   *slog.Logger

	lastReported atomic.Uint64
}

// NewReporter starts the run clock now. interval below 1 is treated as 1.
func NewReporter(counter *Counter, interval int, clock quartz.Clock, logger *slog.Logger) *Reporter {
	if interval < 1 {
		interval = 1
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		counter:  counter,
		interval: uint64(interval),
		clock:    clock,
		start:    clock.Now(),
		logger:   logger,
	}
}

// Observe samples the counter after a task completes. It returns true when
// it emitted a progress line.
func (r *Reporter) Observe() bool {
	n := r.counter.Load()
	if n == 0 || n%r.interval != 0 {
		return false
	}
	last := r.lastReported.Load()
	if n <= last || !r.lastReported.CompareAndSwap(last, n) {
		return false
	}
	r.logger.Info("progress", "processed", n, "rate", round2(r.rate(n)))
	return true
}

// Elapsed is the wall time since the reporter was created.
func (r *Reporter) Elapsed() time.Duration {
	return r.clock.Since(r.start)
}

// Rate is the current persists per second.
func (r *Reporter) Rate() float64 {
	return r.rate(r.counter.Load())
}

func (r *Reporter) rate(n uint64) float64 {
	secs := r.Elapsed().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(n) / secs
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
