// fid-proofs: walks a range of Farcaster fids, fetches each fid's username
// proof from a hub and upserts the first proof's name/owner into a store.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/coder/quartz"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/arkiv/arkiv-platform-reference/internal/fetch"
	"github.com/arkiv/arkiv-platform-reference/internal/proof"
	"github.com/arkiv/arkiv-platform-reference/internal/scheduler"
	"github.com/arkiv/arkiv-platform-reference/internal/store"
	"github.com/arkiv/arkiv-platform-reference/internal/transport"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand reads flags, FIDPROOFS_* env vars and config.yaml (in that order).
func newRootCommand(logOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "fid-proofs",
		Short:         "Fetch username proofs for a fid range and store them",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			_, err = run(cmd.Context(), cfg, setupLogger(cfg.Log, logOut))
			return err
		},
	}
	registerFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the record table if it does not exist, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			st, err := store.Open(cmd.Context(), storeConfig(cfg), setupLogger(cfg.Log, logOut))
			if err != nil {
				return err
			}
			return st.Close()
		},
	})
	return root
}

// idleConnsPerHandle keeps one idle connection for every worker that can
// share a handle.
func idleConnsPerHandle(workers, poolSize int) int {
	return (workers + poolSize - 1) / poolSize
}

func storeConfig(cfg Config) store.Config {
	return store.Config{Driver: cfg.Storage.Driver, URI: cfg.Storage.URI}
}

// run wires the pipeline and processes the configured range once.
func run(ctx context.Context, cfg Config, logger *slog.Logger) (scheduler.Summary, error) {
	logger = logger.With("run_id", ulid.Make().String())
	slog.SetDefault(logger)

	if cfg.Metrics.Addr != "" {
		ms, err := startMetricsServer(cfg.Metrics.Addr, logger)
		if err != nil {
			return scheduler.Summary{}, fmt.Errorf("start metrics server: %w", err)
		}
		defer ms.Shutdown()
	}

	st, err := store.Open(ctx, storeConfig(cfg), logger)
	if err != nil {
		return scheduler.Summary{}, err
	}
	defer st.Close()

	pool, err := transport.NewPool(transport.Options{
		Size:               cfg.Transport.PoolSize,
		Timeout:            cfg.Request.Timeout,
		IdleConnsPerHandle: idleConnsPerHandle(cfg.Workers, cfg.Transport.PoolSize),
	})
	if err != nil {
		return scheduler.Summary{}, err
	}
	defer pool.Close()

	client, err := proof.NewClient(cfg.HubURL())
	if err != nil {
		return scheduler.Summary{}, err
	}

	fetcher := fetch.New(client, pool, st, fetch.Options{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		RetryBackoff: cfg.Retry.Backoff,
	}, logger)
	sched := scheduler.New(fetcher, scheduler.Options{
		Workers:          cfg.Workers,
		ProgressInterval: cfg.Progress.Interval,
		Clock:            quartz.NewReal(),
	}, logger)

	logger.Info("starting",
		"hub", cfg.HubURL(),
		"storage", cfg.Storage.Driver,
		"pool_size", cfg.Transport.PoolSize,
		"max_attempts", cfg.Retry.MaxAttempts,
	)
	return sched.Run(ctx, cfg.Range.Start, cfg.Range.End)
}
