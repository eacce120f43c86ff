package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/edb/internal/config"
	"github.com/roach88/edb/internal/edb"
	"github.com/roach88/edb/internal/metrics"
	"github.com/roach88/edb/internal/model"
	"github.com/roach88/edb/internal/store"
)

// openDatabase opens the configured database. The returned metrics are
// also registered for --metrics-file.
func openDatabase(cmd *cobra.Command, opts *RootOptions) (*edb.Database, *metrics.Metrics, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, nil, err
	}

	m := metrics.New()
	storeOpts := []store.Option{
		store.WithBusyTimeout(cfg.Database.BusyTimeout),
		store.WithSynchronous(cfg.Database.Synchronous),
		store.WithChainCacheSize(cfg.Database.ChainCache),
	}
	db, err := edb.Open(cfg.Database.Path, storeOpts, databaseOptions(cfg, cmd, m)...)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	opts.gather = m.Registry
	return db, m, nil
}

func databaseOptions(cfg config.Config, cmd *cobra.Command, m *metrics.Metrics) []edb.Option {
	var clock edb.Clock = edb.WallClock{}
	if cfg.Clock.Mode == "logical" {
		clock = edb.NewLogicalClock(0)
	}
	return []edb.Option{
		edb.WithLogger(cfg.Logger(cmd.ErrOrStderr())),
		edb.WithMetrics(m),
		edb.WithClock(clock),
		edb.WithRevisionCheck(cfg.Commit.RevisionCheck),
	}
}

// loadModels loads the configured model directory, or returns nil when
// models.dir is unset.
func loadModels(opts *RootOptions) (*model.Registry, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, err
	}
	if cfg.Models.Dir == "" {
		return nil, nil
	}
	registry, errs := model.LoadDir(cfg.Models.Dir)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load models", errors.Join(errs...))
	}
	return registry, nil
}
