// Package scheduler fans a contiguous fid range out over a bounded worker
// pool.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/arkiv/arkiv-platform-reference/internal/progress"
	"github.com/arkiv/arkiv-platform-reference/internal/telemetry"
)

// Processor handles one fid. *fetch.Fetcher satisfies it.
type Processor interface {
	FetchAndStore(ctx context.Context, fid uint64, counter *progress.Counter) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, fid uint64, counter *progress.Counter) error

func (f ProcessorFunc) FetchAndStore(ctx context.Context, fid uint64, counter *progress.Counter) error {
	return f(ctx, fid, counter)
}

// Options configures a Scheduler.
type Options struct {
	// Workers bounds how many fids are processed at once.
	Workers int
	// ProgressInterval is how many persists pass between progress lines.
	ProgressInterval int
	// Clock defaults to the real clock.
	Clock quartz.Clock
}

// Summary describes a finished run.
type Summary struct {
	Dispatched uint64
	Persisted  uint64
	TaskErrors uint64
	Elapsed    time.Duration
	Rate       float64
}

// Scheduler dispatches one task per fid. It keeps no state between runs.
type Scheduler struct {
	proc     Processor
	workers  int
	interval int
	clock    quartz.Clock
	logger   *slog.Logger
}

func New(proc Processor, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Scheduler{
		proc:     proc,
		workers:  workers,
		interval: opts.ProgressInterval,
		clock:    clock,
		logger:   logger,
	}
}

// Run processes every fid in [start, end]. At most Workers tasks run at
// once; dispatch blocks while the pool is full. A failing or panicking task
// is logged with its fid and never stops its siblings. Run returns only
// after every task has finished.
func (s *Scheduler) Run(ctx context.Context, start, end uint64) (Summary, error) {
	if end < start {
		return Summary{}, errors.New("end fid must not be below start fid")
	}

	counter := progress.NewCounter()
	reporter := progress.NewReporter(counter, s.interval, s.clock, s.logger)
	s.logger.Info("run started", "start_fid", start, "end_fid", end, "workers", s.workers)

	var dispatched, taskErrors atomic.Uint64
	p := pool.New().WithMaxGoroutines(s.workers)
	for fid := start; ; fid++ {
		p.Go(func() {
			telemetry.Inflight.Inc()
			defer telemetry.Inflight.Dec()

			if err := s.runTask(ctx, fid, counter); err != nil {
				taskErrors.Add(1)
				telemetry.TaskErrors.Inc()
			}
			reporter.Observe()
		})
		dispatched.Add(1)
		if fid == end {
			break
		}
	}
	p.Wait()

	sum := Summary{
		Dispatched: dispatched.Load(),
		Persisted:  counter.Load(),
		TaskErrors: taskErrors.Load(),
		Elapsed:    reporter.Elapsed(),
		Rate:       reporter.Rate(),
	}
	s.logger.Info("run finished",
		"dispatched", sum.Dispatched,
		"persisted", sum.Persisted,
		"task_errors", sum.TaskErrors,
		"elapsed", sum.Elapsed.String(),
		"rate", sum.Rate,
	)
	return sum, nil
}

// runTask recovers panics so one bad fid cannot take down the batch.
func (s *Scheduler) runTask(ctx context.Context, fid uint64, counter *progress.Counter) error {
	var err error
	var pc panics.Catcher
	pc.Try(func() {
		err = s.proc.FetchAndStore(ctx, fid, counter)
	})
	if r := pc.Recovered(); r != nil {
		s.logger.Error("unexpected error processing fid", "fid", fid, "err", r.AsError(), "stack", string(r.Stack))
		return r.AsError()
	}
	if err != nil {
		s.logger.Error("unexpected error processing fid", "fid", fid, "err", err)
	}
	return err
}
