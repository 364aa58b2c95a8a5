package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/clipforge/internal/batch"
	"github.com/roach88/clipforge/internal/combo"
	"github.com/roach88/clipforge/internal/config"
	"github.com/roach88/clipforge/internal/logging"
	"github.com/roach88/clipforge/internal/media"
	"github.com/roach88/clipforge/internal/render"
	"github.com/roach88/clipforge/internal/store"
)

// runtime is the wired set of collaborators a command works with.
type runtime struct {
	cfg      config.Config
	log      *slog.Logger
	store    *store.Store
	metrics  *batch.Metrics
	preparer *media.Preparer
	orch     *batch.Orchestrator
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Checkpoint.DB = opts.Database
	}
	return cfg, nil
}

func newLogger(opts *RootOptions, cmd *cobra.Command, cfg config.Config) *slog.Logger {
	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	return logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format)
}

// orchestratorOptions translates config into orchestrator options.
func orchestratorOptions(cfg config.Config, log *slog.Logger) []batch.Option {
	opts := []batch.Option{
		batch.WithLogger(log),
		batch.WithCheckpointKey(cfg.Checkpoint.Key),
		batch.WithGuard(combo.NewGuard(cfg.Guard.MaxCombinations)),
		batch.WithEstimator(cfg.Estimator()),
		batch.WithTicker(batch.NewTicker, cfg.TickInterval()),
	}
	if cfg.Sampler.Seed != 0 {
		opts = append(opts, batch.WithSampler(combo.NewSampler(cfg.Sampler.Seed)))
	}
	return opts
}

// openRuntime loads config, opens the store and builds an orchestrator.
// The caller must call close.
func openRuntime(opts *RootOptions, cmd *cobra.Command, extra ...batch.Option) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log := newLogger(opts, cmd, cfg)

	log.Debug("opening database", "path", cfg.Checkpoint.DB)
	st, err := store.Open(cfg.Checkpoint.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	var objects media.ObjectStore
	if cfg.ObjectStore.URL != "" {
		objects = media.NewHTTPStore(cfg.ObjectStore.URL, cfg.ObjectStore.PublicURL, cfg.Render.Timeout)
	}

	m := batch.NewMetrics()
	prep := media.NewPreparer(objects, cfg.ObjectStore.Prefix)
	all := append(orchestratorOptions(cfg, log),
		batch.WithPreparer(prep),
		batch.WithMetrics(m),
	)
	all = append(all, extra...)

	client := render.NewClient(cfg.Render.URL, render.WithTimeout(cfg.Render.Timeout))
	return &runtime{
		cfg:      cfg,
		log:      log,
		store:    st,
		metrics:  m,
		preparer: prep,
		orch:     batch.New(st, client, all...),
	}, nil
}

func (r *runtime) close() {
	if err := r.store.Close(); err != nil {
		r.log.Error("error closing database", "error", err)
	}
}
