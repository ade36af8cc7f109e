package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"jobseed/internal/checkpoint"
	"jobseed/internal/config"
	"jobseed/internal/datasource"
	"jobseed/internal/parser"
	"jobseed/internal/rejects"
	"jobseed/internal/report"
	"jobseed/internal/storage"
	"jobseed/internal/transformer"
)

// item is a record on its way to the loader with the placeholder parents
// it needs written first.
type item struct {
	rec   transformer.Record
	stubs []stub
}

// resume says which source rows an earlier run already handled.
type resume struct {
	maxID int64
	line  int
}

// skip reports whether a row was handled before. Under max_id a row
// without a source id was given one by the earlier run, so it is skipped
// as soon as the table holds rows.
func (r resume) skip(line int, id int64, hasID bool) bool {
	if r.line > 0 && line <= r.line {
		return true
	}
	return r.maxID > 0 && (!hasID || id <= r.maxID)
}

// resumePoint reads the resume position for the configured mode. Both
// modes raise the id allocator above the table's current max so
// generated ids never collide with rows written by earlier runs.
func (j *Job) resumePoint(ctx context.Context, repo storage.Repository) (resume, error) {
	var rs resume
	mode := j.cfg.Runtime.Resume
	if j.entity.Wholesale || (mode != config.ResumeMaxID && mode != config.ResumeCheckpoint) {
		return rs, nil
	}

	maxID, err := repo.MaxKey(ctx, j.entity.Table, j.entity.Key)
	if err != nil {
		return rs, fmt.Errorf("resume: max %s: %w", j.entity.Key, err)
	}
	if maxID > 0 {
		j.plan.IDs().Observe(maxID)
	}

	switch mode {
	case config.ResumeMaxID:
		rs.maxID = maxID
		j.log.Info().Int64("max_id", maxID).Msg("resume: skipping source ids at or below table max")
	case config.ResumeCheckpoint:
		st, ok, err := j.deps.Checkpoints.Load(ctx, j.cpKey)
		if err != nil {
			return rs, fmt.Errorf("resume: %w", err)
		}
		if ok {
			rs.line = st.Line
			j.log.Info().Int("line", st.Line).Str("previous_run", st.RunID).Msg("resume: continuing after checkpoint")
		}
	}
	return rs, nil
}

// load wires reader, normalizer, filter and loader. The loader is the
// only goroutine that talks to the database, and it flushes batches in
// source order. In stream mode rows without a source id are held until
// the end of the source, so every id in the file is reserved before one
// is generated. Keys in stale that get written are removed from it.
func (j *Job) load(ctx context.Context, repo storage.Repository, checks []*parentCheck, rs resume, rep *report.Reporter, sink rejects.Sink, stale map[int64]struct{}) error {
	buf := j.cfg.Runtime.ChannelBuffer
	keySource := j.entity.Key
	if f, ok := j.entity.Field(j.entity.Key); ok {
		keySource = f.SourceName()
	}

	onBad := func(e *parser.RowError) {
		rep.Malformed(e.Line, e.Err)
		j.reject(sink, rejects.ReasonMalformed, e.Line, "", e.Err.Error(), e.Raw)
	}

	var all []parser.Row
	readAll := datasource.Mode(j.cfg.Source.Mode) != datasource.ModeStream
	if readAll {
		rows, bad, err := parser.ReadAll(j.src.reader)
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		for _, b := range bad {
			onBad(b)
		}
		j.plan.ObserveIDs(rows)
		all = rows
		j.log.Info().Int("rows", len(rows)).Int("malformed", len(bad)).Msg("reader: source loaded")
	}

	policy := storage.Policy(j.cfg.Storage.Policy)
	if j.entity.Wholesale {
		policy = storage.PolicyUpdate
	}
	w := &writer{
		job:   j,
		repo:  repo,
		rep:   rep,
		sink:  sink,
		stale: stale,
		spec: storage.InsertSpec{
			Table:       j.entity.Table,
			Key:         j.entity.Key,
			Columns:     j.plan.Columns,
			Policy:      policy,
			TouchColumn: j.entity.TouchColumn,
		},
	}
	if perSec := j.cfg.Runtime.MaxBatchesPerSecond; perSec > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}

	rowsCh := make(chan parser.Row, buf)
	recCh := make(chan transformer.Record, buf)
	itemCh := make(chan item, buf)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rowsCh)
		send := func(row parser.Row) error {
			select {
			case rowsCh <- row:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		var held []parser.Row
		emit := func(row parser.Row) error {
			rep.Read()
			id, ok := transformer.SourceID(row.Fields[keySource])
			if rs.skip(row.Line, id, ok) {
				rep.Resumed()
				return nil
			}
			if !readAll && !ok {
				w.heldFrom.CompareAndSwap(0, int64(row.Line))
				held = append(held, row)
				return nil
			}
			return send(row)
		}
		if readAll {
			for _, row := range all {
				if err := emit(row); err != nil {
					return err
				}
			}
			return nil
		}
		if err := parser.Each(j.src.reader, emit, onBad); err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		if len(held) > 0 {
			j.log.Info().Int("rows", len(held)).Msg("reader: rows without source id loaded after end of source")
		}
		for _, row := range held {
			if err := send(row); err != nil {
				return err
			}
		}
		return nil
	})

	g.Go(func() error {
		defer close(recCh)
		return transformer.TransformLoop(gctx, j.plan, rowsCh, recCh, func(row parser.Row, err error) {
			rep.Invalid(row.Line, err)
			j.reject(sink, rejects.ReasonValidation, row.Line, "", err.Error(), row.Raw)
		})
	})

	g.Go(func() error {
		defer close(itemCh)
		for rec := range recCh {
			stubs, miss := checkParents(checks, &rec)
			if miss != nil {
				rep.Referential(rec.Line, miss.column, miss.id)
				j.reject(sink, rejects.ReasonMissingParent, rec.Line, strconv.FormatInt(rec.ID, 10), miss.Error(), rec.Raw)
				continue
			}
			select {
			case itemCh <- item{rec: rec, stubs: stubs}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		_, err := storage.LoadBatches(gctx, itemCh, j.cfg.Runtime.BatchSize, w.flush)
		return err
	})

	return g.Wait()
}

func (j *Job) reject(sink rejects.Sink, reason string, line int, id, detail string, raw []string) {
	err := sink.Add(rejects.Reject{Reason: reason, Line: line, ID: id, Detail: detail, Raw: rejects.JoinRaw(raw)})
	if err != nil {
		j.log.Warn().Err(err).Int("line", line).Msg("rejects: write failed")
	}
}

// writer flushes batches. One writer exists per run and it is only
// called from the loader goroutine.
type writer struct {
	job     *Job
	repo    storage.Repository
	rep     *report.Reporter
	sink    rejects.Sink
	spec    storage.InsertSpec
	limiter *rate.Limiter

	// stale holds the keys of a wholesale table not yet rewritten.
	stale map[int64]struct{}

	// heldFrom is the first line the reader held back, 0 when none.
	heldFrom atomic.Int64
}

func (w *writer) flush(ctx context.Context, seq int, batch []item) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	w.placeholders(ctx, seq, batch)

	rows := make([][]any, len(batch))
	for i, it := range batch {
		rows[i] = it.rec.Values
	}
	if n, err := w.repo.Insert(ctx, w.spec, rows); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logBatchError(seq, len(batch), err)
		w.rep.Fallback()
		if err := w.rowByRow(ctx, batch); err != nil {
			return err
		}
	} else {
		w.rep.Imported(len(batch))
		w.rep.Affected(n)
		for _, it := range batch {
			w.written(it.rec.ID)
		}
	}

	w.rep.Batch(seq, len(batch))
	return w.saveCheckpoint(ctx, seq, batch)
}

func (w *writer) logBatchError(seq, rows int, err error) {
	ev := w.job.log.Warn().Int("batch", seq).Int("rows", rows).Err(err)
	var se *storage.Error
	if errors.As(err, &se) {
		ev = ev.Str("code", se.Code).Str("detail", se.Detail).Str("constraint", se.Constraint)
	}
	ev.Msg("loader: batch failed, retrying row by row")
}

// rowByRow retries every row of a failed batch on its own. It returns
// report.ErrTooManyErrors once the breaker trips.
func (w *writer) rowByRow(ctx context.Context, batch []item) error {
	for _, it := range batch {
		n, err := w.repo.Insert(ctx, w.spec, [][]any{it.rec.Values})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			id := strconv.FormatInt(it.rec.ID, 10)
			w.job.reject(w.sink, rejects.ReasonInsertFailed, it.rec.Line, id, err.Error(), it.rec.Raw)
			if berr := w.rep.RowFailed(it.rec.Line, w.ident(it.rec), err); berr != nil {
				return berr
			}
			continue
		}
		w.rep.Imported(1)
		w.rep.Affected(n)
		w.written(it.rec.ID)
	}
	return nil
}

func (w *writer) written(id int64) {
	if w.stale != nil {
		delete(w.stale, id)
	}
}

// ident picks the identifying fields logged for a failed row.
func (w *writer) ident(rec transformer.Record) map[string]any {
	out := map[string]any{w.job.entity.Key: rec.ID}
	for _, c := range w.job.entity.Identifying {
		if v := w.job.plan.Value(rec, c); v != nil {
			out[c] = v
		}
	}
	return out
}

// placeholders writes the stand-in parents the batch needs. A failure is
// logged; the affected children then fail on their own foreign key.
func (w *writer) placeholders(ctx context.Context, seq int, batch []item) {
	var stubs []stub
	for _, it := range batch {
		stubs = append(stubs, it.stubs...)
	}
	if len(stubs) == 0 {
		return
	}
	specs, rows := placeholderRows(stubs)
	for i, spec := range specs {
		if _, err := w.repo.Insert(ctx, spec, rows[i]); err != nil {
			w.job.log.Error().Err(err).Int("batch", seq).Str("table", spec.Table).
				Msg("loader: placeholder parents failed")
			continue
		}
		for range rows[i] {
			w.rep.Placeholder()
		}
		w.job.log.Info().Int("batch", seq).Str("table", spec.Table).Int("rows", len(rows[i])).
			Msg("loader: placeholder parents written")
	}
}

func (w *writer) saveCheckpoint(ctx context.Context, seq int, batch []item) error {
	if w.job.cpKey == "" || len(batch) == 0 {
		return nil
	}
	line := batch[len(batch)-1].rec.Line
	if from := int(w.heldFrom.Load()); from > 0 && line >= from {
		line = from - 1
	}
	st := checkpoint.State{
		Line:      line,
		Batches:   seq,
		RunID:     w.job.runID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := w.job.deps.Checkpoints.Save(ctx, w.job.cpKey, st); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}
