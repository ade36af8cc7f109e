// Package pipeline runs one entity import end to end: source reader,
// normalizer, referential filter, batch upserter with row-by-row
// fallback, reporter and post-pass reconciler.
//
// A run has two phases. Prepare opens the source and validates its
// header without touching the database; Execute loads it. Callers open
// the database between the two, so an unreadable file never costs a
// connection or a mutation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"jobseed/internal/checkpoint"
	"jobseed/internal/config"
	"jobseed/internal/datasource/httpds"
	"jobseed/internal/entity"
	"jobseed/internal/metrics"
	"jobseed/internal/reconcile"
	"jobseed/internal/rejects"
	"jobseed/internal/report"
	"jobseed/internal/storage"
	"jobseed/internal/transformer"
)

// ErrInvalidPipeline is returned by Prepare when the pipeline config has
// lint errors.
var ErrInvalidPipeline = errors.New("invalid pipeline config")

// Deps are the collaborators shared by runs.
type Deps struct {
	Log zerolog.Logger

	// HTTP fetches http(s) sources; nil uses a default client.
	HTTP *httpds.Client

	// Progress receives a byte progress bar while reading; nil disables.
	Progress io.Writer

	PhoneRegion string

	// RejectDir receives reject side files; empty discards rejects.
	RejectDir string

	// Checkpoints is required when a pipeline resumes from checkpoints.
	Checkpoints checkpoint.Store
}

// Result is the outcome of one run.
type Result struct {
	Summary   report.Summary    `json:"summary"`
	Reconcile *reconcile.Result `json:"reconcile,omitempty"`
}

// Opener connects to the database. It is called after every header has
// been validated.
type Opener func(ctx context.Context) (storage.Repository, error)

// Job is a prepared run: source open, header read, plan compiled.
type Job struct {
	cfg    config.Pipeline
	deps   Deps
	entity entity.Entity
	runID  string
	log    zerolog.Logger
	src    *source
	plan   *transformer.Plan
	cpKey  string
	start  time.Time
}

// Prepare lints cfg, opens its source and compiles the column plan.
func Prepare(ctx context.Context, cfg config.Pipeline, d Deps) (*Job, error) {
	if issues := config.ValidatePipeline(cfg); config.HasErrors(issues) {
		var msgs []string
		for _, iss := range issues {
			if iss.Severity == config.SeverityError {
				msgs = append(msgs, iss.Error())
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidPipeline, strings.Join(msgs, "; "))
	}
	e, err := entity.Lookup(cfg.Entity)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := d.Log.With().Str("job", cfg.Job).Str("entity", e.Name).Str("run_id", runID).Logger()
	start := time.Now()

	src, err := openSource(ctx, cfg, d)
	if err != nil {
		return nil, err
	}
	plan, err := transformer.Compile(e, src.reader.Header(), transformer.Options{PhoneRegion: d.PhoneRegion})
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	j := &Job{cfg: cfg, deps: d, entity: e, runID: runID, log: log, src: src, plan: plan, start: start}

	if cfg.Runtime.Resume == config.ResumeCheckpoint {
		if d.Checkpoints == nil {
			_ = src.Close()
			return nil, errors.New("resume=checkpoint needs a checkpoint store")
		}
		fp, err := fingerprint(ctx, src.location)
		if err != nil {
			_ = src.Close()
			return nil, fmt.Errorf("fingerprint source: %w", err)
		}
		j.cpKey = checkpoint.Key(cfg.Job, fp)
	}

	if len(plan.MissingRequired) > 0 {
		log.Warn().Strs("columns", plan.MissingRequired).
			Msg("source: required columns missing from header; every record will be skipped")
	}
	log.Info().
		Str("source", src.location).
		Str("encoding", src.stream.Encoding).
		Str("mode", cfg.Source.Mode).
		Strs("columns", plan.Columns).
		Msg("source: header read")
	return j, nil
}

// RunID identifies the run in logs and reject file names.
func (j *Job) RunID() string { return j.runID }

// Entity is the target entity name.
func (j *Job) Entity() string { return j.entity.Name }

// Close releases the source. Execute closes it too; calling both is safe.
func (j *Job) Close() error {
	if j.src == nil {
		return nil
	}
	err := j.src.Close()
	j.src = nil
	return err
}

// Execute loads the prepared source into repo and reconciles the table.
// The summary is filled even when the run fails.
func (j *Job) Execute(ctx context.Context, repo storage.Repository) (res Result, err error) {
	defer j.Close()

	sink := j.newSink()
	rep := report.New(j.log, report.Options{
		Job:           j.cfg.Job,
		Entity:        j.entity.Name,
		RunID:         j.runID,
		ProgressEvery: j.cfg.Runtime.ProgressEvery,
		MaxErrors:     j.cfg.Runtime.MaxErrors,
	})
	defer func() {
		sum := rep.Summary(err)
		if cerr := sink.Close(); cerr != nil {
			j.log.Warn().Err(cerr).Msg("rejects: close failed")
		}
		if f, ok := sink.(*rejects.File); ok && f.Count() > 0 {
			sum.RejectFile = f.Path()
		}
		rep.LogSummary(sum)
		sum.Publish()
		metrics.RecordStep(j.cfg.Job, "import", err, time.Since(j.start))
		res.Summary = sum
	}()

	checks, err := snapshotParents(ctx, repo, j.plan, j.cfg.Storage.PlaceholderParents, j.log)
	if err != nil {
		return res, err
	}

	var stale map[int64]struct{}
	if j.entity.Wholesale {
		if stale, err = repo.Keys(ctx, j.entity.Table, j.entity.Key); err != nil {
			return res, fmt.Errorf("snapshot %s: %w", j.entity.Table, err)
		}
	}

	rs, err := j.resumePoint(ctx, repo)
	if err != nil {
		return res, err
	}

	load := func(ctx context.Context) error { return j.load(ctx, repo, checks, rs, rep, sink, stale) }
	if j.cfg.Storage.RelaxForeignKeys {
		err = storage.WithForeignKeysRelaxed(ctx, repo, j.entity.Table, j.log, load)
	} else {
		err = load(ctx)
	}
	if err != nil {
		return res, err
	}

	if j.entity.Wholesale {
		if err := j.removeStale(ctx, repo, stale); err != nil {
			return res, err
		}
	}

	if j.cpKey != "" {
		if cerr := j.deps.Checkpoints.Clear(ctx, j.cpKey); cerr != nil {
			j.log.Warn().Err(cerr).Msg("checkpoint: clear failed")
		}
	}

	rec, err := reconcile.Run(ctx, repo, j.entity, j.log, reconcile.Options{
		Job:                j.cfg.Job,
		ReferentialSkipped: rep.Summary(nil).SkippedReferential,
	})
	if err != nil {
		return res, err
	}
	res.Reconcile = &rec
	return res, nil
}

// removeStale deletes the rows of a wholesale table the source no longer
// lists. Rows the source does list were upserted in place, so references
// to them survive the reload.
func (j *Job) removeStale(ctx context.Context, repo storage.Repository, stale map[int64]struct{}) error {
	if len(stale) == 0 {
		return nil
	}
	ids := slices.Sorted(maps.Keys(stale))
	n, err := repo.DeleteKeys(ctx, j.entity.Table, j.entity.Key, ids)
	if err != nil {
		return fmt.Errorf("remove stale %s: %w", j.entity.Table, err)
	}
	j.log.Info().Str("table", j.entity.Table).Int64("rows", n).Msg("loader: wholesale reload, stale rows removed")
	return nil
}

func (j *Job) newSink() rejects.Sink {
	if j.deps.RejectDir == "" {
		return rejects.Discard{}
	}
	return rejects.NewFile(j.deps.RejectDir, j.cfg.Job, j.runID)
}

// Run prepares cfg, opens the database and executes. The repository is
// closed before returning.
func Run(ctx context.Context, cfg config.Pipeline, d Deps, open Opener) (Result, error) {
	job, err := Prepare(ctx, cfg, d)
	if err != nil {
		return Result{}, err
	}
	repo, err := open(ctx)
	if err != nil {
		_ = job.Close()
		return Result{}, err
	}
	defer repo.Close()
	return job.Execute(ctx, repo)
}

// RunAll prepares every pipeline before opening the database, then runs
// them in order on one connection. It stops at the first failed run.
func RunAll(ctx context.Context, cfgs []config.Pipeline, d Deps, open Opener) ([]Result, error) {
	jobs := make([]*Job, 0, len(cfgs))
	closeAll := func() {
		for _, j := range jobs {
			_ = j.Close()
		}
	}
	for _, cfg := range cfgs {
		j, err := Prepare(ctx, cfg, d)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("prepare %s: %w", cfg.Job, err)
		}
		jobs = append(jobs, j)
	}

	repo, err := open(ctx)
	if err != nil {
		closeAll()
		return nil, err
	}
	defer repo.Close()

	results := make([]Result, 0, len(jobs))
	for i, j := range jobs {
		res, err := j.Execute(ctx, repo)
		results = append(results, res)
		if err != nil {
			for _, rest := range jobs[i+1:] {
				_ = rest.Close()
			}
			return results, fmt.Errorf("run %s: %w", j.cfg.Job, err)
		}
	}
	return results, nil
}
