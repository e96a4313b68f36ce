// Package store persists AddressRecords keyed by fid.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arkiv/arkiv-platform-reference/internal/proof"
)

// TableName is the table (or bucket) that holds address records.
const TableName = "farcaster_addresses"

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
	DriverMemory   = "memory"
)

// ErrUnknownDriver is returned by Open for an unrecognised driver.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Store is a durable table of AddressRecords with insert-or-replace
// semantics keyed on FID. Implementations are safe for concurrent use and
// each Upsert is atomic on its own.
type Store interface {
	// Initialize creates the backing table if absent. Idempotent.
	Initialize(ctx context.Context) error
	// Upsert inserts r or replaces the row with the same FID.
	Upsert(ctx context.Context, r proof.AddressRecord) error
	Close() error
}

// Config selects and locates a backend.
type Config struct {
	Driver string
	URI    string
}

// Open connects to the configured backend and initializes its schema.
// Failure here is a startup failure.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case DriverSQLite:
		s, err = NewSQLite(cfg.URI)
	case DriverPostgres:
		s, err = NewPostgres(ctx, cfg.URI)
	case DriverBolt:
		s, err = NewBolt(cfg.URI)
	case DriverMemory:
		s = NewMemory()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if err := s.Initialize(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("initialize %s store: %w", cfg.Driver, err)
	}
	logger.Info("store ready", "driver", cfg.Driver, "table", TableName)
	return s, nil
}
