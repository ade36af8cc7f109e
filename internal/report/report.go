// Package report keeps the run counters, emits progress lines, trips the
// error circuit breaker and renders the end-of-run summary.
//
// Counters are atomic: in streaming mode the reader goroutine counts
// malformed rows while the loader counts everything else.
package report

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"jobseed/internal/metrics"
)

// ErrTooManyErrors is returned once cumulative row errors exceed the
// configured maximum; the remaining run is abandoned.
var ErrTooManyErrors = errors.New("too many row errors")

// Summary is the end-of-run result.
type Summary struct {
	Job     string        `json:"job"`
	Entity  string        `json:"entity"`
	RunID   string        `json:"run_id"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`

	SourceRecords      int64 `json:"source_records"`
	Imported           int64 `json:"imported"`
	Affected           int64 `json:"affected"`
	SkippedValidation  int64 `json:"skipped_validation"`
	SkippedReferential int64 `json:"skipped_referential"`
	Errors             int64 `json:"errors"`
	Malformed          int64 `json:"malformed"`
	Resumed            int64 `json:"resumed"`
	Batches            int64 `json:"batches"`
	Fallbacks          int64 `json:"fallbacks"`
	Placeholders       int64 `json:"placeholders"`

	Aborted bool   `json:"aborted"`
	Error   string `json:"error,omitempty"`

	// RejectFile is the side file listing skipped and failed rows, empty
	// when every row was imported.
	RejectFile string `json:"reject_file,omitempty"`
}

// Skipped is the sum of validation and referential skips.
func (s Summary) Skipped() int64 { return s.SkippedValidation + s.SkippedReferential }

// SuccessRate is imported over source records, in percent. An empty
// source counts as fully successful.
func (s Summary) SuccessRate() float64 {
	if s.SourceRecords == 0 {
		return 100
	}
	return float64(s.Imported) / float64(s.SourceRecords) * 100
}

// Options configures a Reporter.
type Options struct {
	Job, Entity, RunID string

	// ProgressEvery logs a progress line every N batches; <=0 disables.
	ProgressEvery int

	// MaxErrors trips the breaker when errors exceed it; <=0 disables.
	MaxErrors int

	// SampleLimit bounds the distinct messages kept per error class.
	SampleLimit int
}

// Reporter accumulates counters for one run.
type Reporter struct {
	log   zerolog.Logger
	opt   Options
	clock func() time.Time
	start time.Time

	read, imported, affected, validation    atomic.Int64
	referential                             atomic.Int64
	errs, malformed, resumed                atomic.Int64
	batches, fallbacks, placeholders        atomic.Int64

	parseAgg, validateAgg, insertAgg *errAgg
}

// New starts the clock for a run.
func New(log zerolog.Logger, opt Options) *Reporter {
	if opt.SampleLimit <= 0 {
		opt.SampleLimit = 10
	}
	r := &Reporter{
		log:         log,
		opt:         opt,
		clock:       time.Now,
		parseAgg:    newErrAgg(opt.SampleLimit),
		validateAgg: newErrAgg(opt.SampleLimit),
		insertAgg:   newErrAgg(opt.SampleLimit),
	}
	r.start = r.clock()
	return r
}

// Read counts a well-formed source record.
func (r *Reporter) Read() { r.read.Add(1) }

// Malformed counts a record the parser could not shape into a row.
func (r *Reporter) Malformed(line int, err error) {
	r.malformed.Add(1)
	r.parseAgg.add(err.Error())
	r.log.Debug().Int("line", line).Err(err).Msg("reader: malformed row skipped")
}

// Invalid counts a record dropped by validation.
func (r *Reporter) Invalid(line int, err error) {
	r.validation.Add(1)
	r.validateAgg.add(err.Error())
	r.log.Debug().Int("line", line).Err(err).Msg("normalizer: record skipped")
}

// Referential counts a child record dropped because its parent is missing.
func (r *Reporter) Referential(line int, column string, parentID int64) {
	r.referential.Add(1)
	r.log.Debug().Int("line", line).Str("column", column).Int64("parent_id", parentID).
		Msg("filter: parent missing, record skipped")
}

// Resumed counts a record skipped because an earlier run processed it.
func (r *Reporter) Resumed() { r.resumed.Add(1) }

// Imported counts rows accepted by the database.
func (r *Reporter) Imported(n int) { r.imported.Add(int64(n)) }

// Affected adds the rows the database reports as inserted or changed.
// Under the skip policy it stays below Imported for rows already present.
func (r *Reporter) Affected(n int64) { r.affected.Add(n) }

// Placeholder counts a synthetic parent row.
func (r *Reporter) Placeholder() { r.placeholders.Add(1) }

// Fallback counts a batch retried row by row.
func (r *Reporter) Fallback() { r.fallbacks.Add(1) }

// RowFailed counts a row the database rejected. It returns
// ErrTooManyErrors once the total exceeds MaxErrors.
func (r *Reporter) RowFailed(line int, ident map[string]any, err error) error {
	n := r.errs.Add(1)
	r.insertAgg.add(err.Error())
	r.log.Error().Int("line", line).Fields(ident).Err(err).Msg("loader: row failed")
	if r.opt.MaxErrors > 0 && n > int64(r.opt.MaxErrors) {
		return fmt.Errorf("%w: %d > max_errors %d", ErrTooManyErrors, n, r.opt.MaxErrors)
	}
	return nil
}

// Batch counts a flushed batch and logs progress every ProgressEvery
// batches.
func (r *Reporter) Batch(seq, rows int) {
	n := r.batches.Add(1)
	if r.opt.ProgressEvery <= 0 || n%int64(r.opt.ProgressEvery) != 0 {
		return
	}
	elapsed := r.clock().Sub(r.start)
	total := r.imported.Load()
	rps := int64(0)
	if s := elapsed.Seconds(); s > 0 {
		rps = int64(float64(total) / s)
	}
	r.log.Info().
		Int("batch", seq).
		Int("rows", rows).
		Int64("total_imported", total).
		Int64("skipped", r.validation.Load()+r.referential.Load()).
		Int64("errors", r.errs.Load()).
		Int64("rps", rps).
		Dur("elapsed", elapsed.Truncate(time.Millisecond)).
		Msg("progress")
}

// Summary snapshots the counters. runErr marks the run as aborted.
func (r *Reporter) Summary(runErr error) Summary {
	s := Summary{
		Job:                r.opt.Job,
		Entity:             r.opt.Entity,
		RunID:              r.opt.RunID,
		Started:            r.start,
		Elapsed:            r.clock().Sub(r.start),
		SourceRecords:      r.read.Load() + r.malformed.Load(),
		Imported:           r.imported.Load(),
		Affected:           r.affected.Load(),
		SkippedValidation:  r.validation.Load(),
		SkippedReferential: r.referential.Load(),
		Errors:             r.errs.Load(),
		Malformed:          r.malformed.Load(),
		Resumed:            r.resumed.Load(),
		Batches:            r.batches.Load(),
		Fallbacks:          r.fallbacks.Load(),
		Placeholders:       r.placeholders.Load(),
	}
	if runErr != nil {
		s.Aborted = true
		s.Error = runErr.Error()
	}
	return s
}

// Publish pushes the summary counters to the metrics backend.
func (s Summary) Publish() {
	job := s.Job
	metrics.RecordRow(job, "source", s.SourceRecords)
	metrics.RecordRow(job, "imported", s.Imported)
	metrics.RecordRow(job, "affected", s.Affected)
	metrics.RecordRow(job, "skipped_validation", s.SkippedValidation)
	metrics.RecordRow(job, "skipped_referential", s.SkippedReferential)
	metrics.RecordRow(job, "error", s.Errors)
	metrics.RecordRow(job, "malformed", s.Malformed)
	metrics.RecordRow(job, "resumed", s.Resumed)
	metrics.RecordBatches(job, s.Batches)
}

// LogSummary writes the summary and the first distinct messages of each
// error class. Row accounting is checked only for completed runs.
func (r *Reporter) LogSummary(s Summary) {
	ev := r.log.Info()
	if s.Aborted {
		ev = r.log.Error().Str("error", s.Error)
	}
	ev.Int64("source_records", s.SourceRecords).
		Int64("imported", s.Imported).
		Int64("affected", s.Affected).
		Int64("skipped_validation", s.SkippedValidation).
		Int64("skipped_referential", s.SkippedReferential).
		Int64("errors", s.Errors).
		Int64("malformed", s.Malformed).
		Int64("resumed", s.Resumed).
		Int64("batches", s.Batches).
		Int64("fallbacks", s.Fallbacks).
		Int64("placeholders", s.Placeholders).
		Str("success_rate", fmt.Sprintf("%.2f%%", s.SuccessRate())).
		Dur("elapsed", s.Elapsed.Truncate(time.Millisecond)).
		Msg("summary")

	r.parseAgg.log(r.log, "parse errors")
	r.validateAgg.log(r.log, "validation rejects")
	r.insertAgg.log(r.log, "insert errors")

	if s.Aborted {
		return
	}
	accounted := s.Imported + s.Skipped() + s.Errors + s.Malformed + s.Resumed
	if accounted != s.SourceRecords {
		r.log.Warn().Int64("total", s.SourceRecords).Int64("accounted", accounted).
			Msg("row accounting mismatch")
	}
}

// errAgg keeps a count and the first distinct messages of one error class.
type errAgg struct {
	mu      sync.Mutex
	limit   int
	count   int
	first   []string
	buckets map[string]int
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit, buckets: make(map[string]int)}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buckets[msg] == 0 && len(a.first) < a.limit {
		a.first = append(a.first, msg)
	}
	a.buckets[msg]++
	a.count++
}

func (a *errAgg) log(l zerolog.Logger, what string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.count == 0 {
		return
	}
	l.Warn().Int("count", a.count).Int("distinct", len(a.buckets)).Msg(what)
	for i, m := range a.first {
		l.Warn().Int("n", i+1).Int("times", a.buckets[m]).Msg(m)
	}
}
