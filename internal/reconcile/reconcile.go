// Package reconcile runs the post-load checks: sequence reset, row count,
// a small sample, and orphan counts for child tables. It also owns the
// full reseed that empties the reference tables.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"jobseed/internal/ddl"
	"jobseed/internal/entity"
	"jobseed/internal/metrics"
	"jobseed/internal/storage"
)

// DefaultSampleSize is the number of rows logged for verification.
const DefaultSampleSize = 3

// Options tunes Run.
type Options struct {
	Job        string
	SampleSize int

	// ReferentialSkipped is carried into the result so one log line
	// reports both the filter and the orphan count.
	ReferentialSkipped int64
}

// Orphans is the dangling-reference count for one parent column.
type Orphans struct {
	Column string `json:"column"`
	Parent string `json:"parent"`
	Count  int64  `json:"count"`
}

// Result is what reconciliation found.
type Result struct {
	Table              string           `json:"table"`
	NextID             int64            `json:"next_id"`
	Rows               int64            `json:"rows"`
	Sample             []map[string]any `json:"sample,omitempty"`
	Orphans            []Orphans        `json:"orphans,omitempty"`
	ReferentialSkipped int64            `json:"referential_skipped"`
}

// Run reconciles e's table.
func Run(ctx context.Context, repo storage.Repository, e entity.Entity, log zerolog.Logger, opt Options) (res Result, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep(opt.Job, "reconcile", err, time.Since(start)) }()

	if opt.SampleSize <= 0 {
		opt.SampleSize = DefaultSampleSize
	}
	res = Result{Table: e.Table, ReferentialSkipped: opt.ReferentialSkipped}

	res.NextID, err = nextID(ctx, repo, e, log)
	if err != nil {
		return res, err
	}

	res.Rows, err = repo.Count(ctx, e.Table)
	if err != nil {
		return res, fmt.Errorf("count %s: %w", e.Table, err)
	}

	cols := append([]string{e.Key}, e.Identifying...)
	res.Sample, err = repo.Sample(ctx, e.Table, e.Key, cols, opt.SampleSize)
	if err != nil {
		return res, fmt.Errorf("sample %s: %w", e.Table, err)
	}

	for _, p := range e.Parents {
		parent, lerr := entity.Lookup(p.Parent)
		if lerr != nil {
			return res, lerr
		}
		n, cerr := repo.CountOrphans(ctx, storage.OrphanQuery{
			Child: e.Table, Column: p.Column,
			Parent: parent.Table, ParentKey: parent.Key,
		})
		if cerr != nil {
			return res, fmt.Errorf("orphans %s.%s: %w", e.Table, p.Column, cerr)
		}
		res.Orphans = append(res.Orphans, Orphans{Column: p.Column, Parent: parent.Table, Count: n})
	}

	logResult(log, res)
	return res, nil
}

// nextID resets the key sequence. Tables without a sequence report
// MAX(key)+1, which is what the next generated key has to exceed anyway.
func nextID(ctx context.Context, repo storage.Repository, e entity.Entity, log zerolog.Logger) (int64, error) {
	next, err := repo.ResetSequence(ctx, e.Table, e.Key)
	if errors.Is(err, storage.ErrNoSequence) {
		log.Warn().Str("table", e.Table).Msg("reconcile: no sequence on key column, nothing to reset")
		maxID, merr := repo.MaxKey(ctx, e.Table, e.Key)
		if merr != nil {
			return 0, fmt.Errorf("max %s.%s: %w", e.Table, e.Key, merr)
		}
		return maxID + 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reset sequence %s: %w", e.Table, err)
	}
	return next, nil
}

func logResult(log zerolog.Logger, res Result) {
	log.Info().
		Str("table", res.Table).
		Int64("rows", res.Rows).
		Int64("next_id", res.NextID).
		Msg("reconcile: sequence reset")
	for i, row := range res.Sample {
		log.Info().Str("table", res.Table).Int("n", i+1).Fields(row).Msg("reconcile: sample")
	}
	for _, o := range res.Orphans {
		ev := log.Info()
		if o.Count > 0 {
			ev = log.Warn()
		}
		ev.Str("table", res.Table).
			Str("column", o.Column).
			Str("parent", o.Parent).
			Int64("orphans", o.Count).
			Int64("referential_skipped", res.ReferentialSkipped).
			Msg("reconcile: orphan check")
	}
}

// ReseedTables lists the tables a full reseed empties, children first.
func ReseedTables() []string {
	return []string{ddl.JobApplicationsTable, "vendors", "jobs", "companies", "categories"}
}

// Reseed empties every reference table, cascading to job_applications,
// and resets their sequences so the next load starts at id 1.
func Reseed(ctx context.Context, repo storage.Repository, log zerolog.Logger) error {
	tables := ReseedTables()
	if err := repo.Truncate(ctx, tables...); err != nil {
		return fmt.Errorf("reseed: %w", err)
	}
	log.Warn().Strs("tables", tables).Msg("reseed: tables truncated")

	for _, t := range tables {
		next, err := repo.ResetSequence(ctx, t, "id")
		if errors.Is(err, storage.ErrNoSequence) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reseed: reset %s: %w", t, err)
		}
		log.Debug().Str("table", t).Int64("next_id", next).Msg("reseed: sequence reset")
	}
	return nil
}
