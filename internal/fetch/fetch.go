// Package fetch retrieves one fid's proof from the hub and persists it.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/arkiv/arkiv-platform-reference/internal/progress"
	"github.com/arkiv/arkiv-platform-reference/internal/proof"
	"github.com/arkiv/arkiv-platform-reference/internal/store"
	"github.com/arkiv/arkiv-platform-reference/internal/telemetry"
)

// Handles selects the HTTP client for a fid. *transport.Pool satisfies it.
type Handles interface {
	HandleFor(fid uint64) *http.Client
}

// Options configures a Fetcher.
type Options struct {
	// MaxAttempts is the total number of attempts per fid, first included.
	MaxAttempts int
	// RetryBackoff is the base delay between attempts. Zero retries
	// immediately.
	RetryBackoff time.Duration
}

// Fetcher is the fetch-retry unit: request, classify, retry, persist.
type Fetcher struct {
	client      *proof.Client
	handles     Handles
	store       store.Store
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
}

func New(client *proof.Client, handles Handles, st store.Store, opts Options, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Fetcher{
		client:      client,
		handles:     handles,
		store:       st,
		maxAttempts: attempts,
		retryDelay:  opts.RetryBackoff,
		logger:      logger,
	}
}

// NewBackOff returns the delay policy between attempts. The policy only
// decides how long to wait; the attempt cap is enforced by the caller.
func NewBackOff(base time.Duration) backoff.BackOff {
	if base <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = 10 * base
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// FetchAndStore runs up to MaxAttempts attempts for fid. Exhausted retries,
// empty results and store failures are logged and return nil. A non-nil
// error means the task failed in a way retries cannot fix.
func (f *Fetcher) FetchAndStore(ctx context.Context, fid uint64, counter *progress.Counter) error {
	h := f.handles.HandleFor(fid)
	b := NewBackOff(f.retryDelay)

	var last proof.Outcome
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		start := time.Now()
		out := f.client.Fetch(ctx, h, fid)
		telemetry.FetchDuration.WithLabelValues(telemetry.StatusLabel(out.Status)).Observe(time.Since(start).Seconds())
		telemetry.FetchAttempts.WithLabelValues(out.Kind.String()).Inc()

		switch out.Kind {
		case proof.KindFound:
			f.persist(ctx, fid, out.Record, counter)
			return nil
		case proof.KindEmpty:
			return nil
		case proof.KindInvalid:
			return fmt.Errorf("fid %d: %w", fid, out.Err)
		}

		last = out
		if attempt == f.maxAttempts {
			break
		}
		f.logger.Debug("fetch attempt failed", "fid", fid, "attempt", attempt, "status", out.Status, "err", out.Err)
		if err := wait(ctx, b.NextBackOff()); err != nil {
			return err
		}
	}

	telemetry.Exhausted.Inc()
	f.logger.Warn("fetch exhausted", "fid", fid, "attempts", f.maxAttempts, "err", last.Err)
	return nil
}

// persist writes r and counts it. A failed write drops the record.
func (f *Fetcher) persist(ctx context.Context, fid uint64, r proof.AddressRecord, counter *progress.Counter) {
	if err := f.store.Upsert(ctx, r); err != nil {
		telemetry.StoreErrors.Inc()
		f.logger.Error("store write failed", "fid", fid, "record_fid", r.FID, "err", err)
		return
	}
	telemetry.Persisted.Inc()
	if counter != nil {
		counter.Inc()
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
