package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"jobseed/internal/checkpoint"
	"jobseed/internal/config"
	"jobseed/internal/datasource/httpds"
	"jobseed/internal/entity"
	"jobseed/internal/logging"
	"jobseed/internal/metrics"
	"jobseed/internal/metrics/datadog"
	"jobseed/internal/metrics/prompush"
	"jobseed/internal/pipeline"
	"jobseed/internal/storage"
)

// app is the per-command runtime: environment, logger and the
// collaborators built from them.
type app struct {
	env     config.Env
	log     zerolog.Logger
	http    *httpds.Client
	cleanup []func()

	cpMu sync.Mutex
	cp   checkpoint.Store
}

// newApp loads and validates the environment and configures logging
// and metrics. needDB is false for commands that never connect.
func newApp(cmd *cobra.Command, g *globals, needDB bool) (*app, error) {
	env, err := config.LoadEnv(g.envFile)
	if err != nil {
		return nil, err
	}
	if err := env.Validate(needDB); err != nil {
		return nil, err
	}
	a := &app{
		env:  env,
		log:  logging.Setup(cmd.ErrOrStderr(), env.LogFormat, env.LogLevel),
		http: httpds.NewClient(httpds.Config{}),
	}
	a.setupMetrics()
	return a, nil
}

// setupMetrics installs the backend named by METRICS_BACKEND. A backend
// that fails to initialize leaves metrics disabled.
func (a *app) setupMetrics() {
	switch a.env.MetricsBackend {
	case "pushgateway":
		url := a.env.PushgatewayURL
		if url == "" {
			url = "http://localhost:9091"
		}
		b, err := prompush.NewBackend("jobseed", url)
		if err != nil {
			a.log.Warn().Err(err).Msg("metrics: failed to init pushgateway backend; using nop")
			return
		}
		a.log.Debug().Str("url", url).Msg("metrics: pushgateway backend")
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{Addr: a.env.DogstatsdAddr, Namespace: "jobseed."})
		if err != nil {
			a.log.Warn().Err(err).Msg("metrics: failed to init datadog backend; using nop")
			return
		}
		a.log.Debug().Str("addr", a.env.DogstatsdAddr).Msg("metrics: datadog backend")
		metrics.SetBackend(b)
		a.cleanup = append(a.cleanup, func() { _ = b.Close() })
	case "", "none":
		return
	default:
		a.log.Warn().Str("backend", a.env.MetricsBackend).Msg("metrics: unknown backend; metrics disabled")
		return
	}
	a.cleanup = append(a.cleanup, func() {
		if err := metrics.Flush(); err != nil {
			a.log.Warn().Err(err).Msg("metrics: flush error")
		}
	})
}

// close runs cleanups in reverse order.
func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// opener connects to the configured database.
func (a *app) opener() pipeline.Opener {
	return func(ctx context.Context) (storage.Repository, error) {
		return storage.New(ctx, storage.Config{
			Kind:     a.env.StorageKind,
			DSN:      a.env.DatabaseURL,
			MaxConns: a.env.DBMaxConns,
		})
	}
}

// dryRunOpener connects to a scratch sqlite database with the full schema
// in a temporary directory removed by close.
func (a *app) dryRunOpener() (pipeline.Opener, error) {
	dir, err := os.MkdirTemp("", "jobseed-dry-run-")
	if err != nil {
		return nil, err
	}
	a.cleanup = append(a.cleanup, func() { _ = os.RemoveAll(dir) })
	dsn := filepath.Join(dir, "dry-run.db")
	a.log.Info().Str("dsn", dsn).Msg("dry run: loading into a scratch sqlite database")

	return func(ctx context.Context) (storage.Repository, error) {
		repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: dsn})
		if err != nil {
			return nil, err
		}
		if err := storage.EnsureSchema(ctx, repo); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	}, nil
}

// withRepo opens the database for a one-off command.
func (a *app) withRepo(ctx context.Context, fn func(storage.Repository) error) error {
	repo, err := a.opener()(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(repo)
}

// deps builds pipeline collaborators. A checkpoint store is opened only
// when one of cfgs resumes from checkpoints.
func (a *app) deps(ctx context.Context, progress bool, cfgs ...config.Pipeline) (pipeline.Deps, error) {
	d := pipeline.Deps{
		Log:         a.log,
		HTTP:        a.http,
		PhoneRegion: a.env.PhoneDefaultRegion,
		RejectDir:   a.env.SkippedDir,
	}
	if progress {
		d.Progress = os.Stderr
	}
	for _, c := range cfgs {
		if c.Runtime.Resume != config.ResumeCheckpoint {
			continue
		}
		store, err := a.checkpoints(ctx)
		if err != nil {
			return d, err
		}
		d.Checkpoints = store
		break
	}
	return d, nil
}

// checkpoints opens the checkpoint store once per process.
func (a *app) checkpoints(ctx context.Context) (checkpoint.Store, error) {
	a.cpMu.Lock()
	defer a.cpMu.Unlock()
	if a.cp != nil {
		return a.cp, nil
	}
	store, err := checkpoint.Open(ctx, a.env.RedisURL, a.env.CheckpointDir)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	a.cp = store
	a.cleanup = append(a.cleanup, func() { _ = store.Close() })
	return store, nil
}

// loadPipelines reads <dir>/<entity>.json for every entity in dependency
// order. Entities without a file are left out.
func loadPipelines(dir string, log zerolog.Logger) ([]config.Pipeline, error) {
	var out []config.Pipeline
	for _, e := range entity.Ordered() {
		path := filepath.Join(dir, e.Name+".json")
		p, err := config.Load(path)
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", path).Msg("config: no pipeline file; entity not scheduled")
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.Entity != e.Name {
			return nil, fmt.Errorf("%s: entity %q does not match file name", path, p.Entity)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no pipeline files in %s", dir)
	}
	return out, nil
}
