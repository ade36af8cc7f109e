package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"jobseed/internal/entity"
)

// IssueSeverity ranks a finding.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is one lint finding. Path is dotted into the file
// ("runtime.batch_size").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline lints p without mutating it. Call ApplyDefaults first
// when validating a hand-built value.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it names reject files and checkpoints")
	}
	ent, err := entity.Lookup(p.Entity)
	if err != nil {
		add(SeverityError, "entity", "%v", err)
	}

	switch p.Source.Kind {
	case "file":
		if strings.TrimSpace(p.Source.File.Path) == "" {
			add(SeverityError, "source.file.path", "file source requires a path")
		}
	case "http":
		if !strings.HasPrefix(p.Source.URL, "http://") && !strings.HasPrefix(p.Source.URL, "https://") {
			add(SeverityError, "source.url", "http source requires an http(s) url, got %q", p.Source.URL)
		}
	default:
		add(SeverityError, "source.kind", "unknown source kind %q; want file or http", p.Source.Kind)
	}
	switch p.Source.Mode {
	case "read_all", "stream":
	default:
		add(SeverityError, "source.mode", "unknown mode %q; want read_all or stream", p.Source.Mode)
	}

	switch p.Parser.Kind {
	case "csv":
		if c := p.Parser.Options.String("comma", ","); utf8.RuneCountInString(c) != 1 || c == "\"" || c == "\n" {
			add(SeverityError, "parser.options.comma", "comma must be a single character other than quote or newline, got %q", c)
		}
	case "xlsx":
		if p.Source.Mode == "stream" {
			add(SeverityWarning, "source.mode", "xlsx workbooks are read whole; stream mode only affects the row loop")
		}
	default:
		add(SeverityError, "parser.kind", "unknown parser kind %q; want csv or xlsx", p.Parser.Kind)
	}

	switch p.Storage.Policy {
	case PolicyUpdate, PolicySkip:
	default:
		add(SeverityError, "storage.policy", "unknown policy %q; want update or skip", p.Storage.Policy)
	}
	if err == nil {
		if p.Storage.PlaceholderParents && !entity.SupportsPlaceholders(ent) {
			add(SeverityWarning, "storage.placeholder_parents", "%s has no parent that can be stubbed; ignored", ent.Name)
		}
		if p.Storage.RelaxForeignKeys && len(ent.Parents) == 0 {
			add(SeverityWarning, "storage.relax_foreign_keys", "%s has no foreign keys to relax", ent.Name)
		}
		if ent.Wholesale && p.Runtime.Resume != ResumeNone {
			add(SeverityWarning, "runtime.resume", "%s is reloaded wholesale; resume is ignored", ent.Name)
		}
		if ent.Wholesale && p.Storage.Policy == PolicySkip {
			add(SeverityWarning, "storage.policy", "%s is reloaded wholesale; existing rows are always overwritten", ent.Name)
		}
		if !ent.Wholesale && p.Runtime.Resume == ResumeMaxID {
			add(SeverityWarning, "runtime.resume", "max_id also skips rows without a source id once %s holds rows", ent.Table)
		}
	}
	if p.Storage.RelaxForeignKeys {
		add(SeverityWarning, "storage.relax_foreign_keys", "foreign keys are dropped for the load; orphans are reported, not prevented")
	}

	r := p.Runtime
	if r.BatchSize < 1 || r.BatchSize > MaxBatchSize {
		add(SeverityError, "runtime.batch_size", "batch_size=%d out of range 1..%d", r.BatchSize, MaxBatchSize)
	} else if err == nil {
		if n := r.BatchSize * len(ent.Fields); n >= PostgresMaxParams {
			add(SeverityError, "runtime.batch_size", "batch_size=%d x %d columns = %d parameters; must stay below %d", r.BatchSize, len(ent.Fields), n, PostgresMaxParams)
		}
	}
	if r.ProgressEvery < 1 {
		add(SeverityError, "runtime.progress_every", "progress_every must be >= 1")
	}
	if r.MaxErrors < 1 {
		add(SeverityError, "runtime.max_errors", "max_errors must be >= 1")
	}
	if r.MaxBatchesPerSecond < 0 {
		add(SeverityError, "runtime.max_batches_per_second", "must not be negative")
	}
	if r.ChannelBuffer < 1 {
		add(SeverityError, "runtime.channel_buffer", "channel_buffer must be >= 1")
	}
	switch r.Resume {
	case ResumeNone, ResumeMaxID, ResumeCheckpoint:
	default:
		add(SeverityError, "runtime.resume", "unknown resume mode %q; want none, max_id or checkpoint", r.Resume)
	}

	return issues
}
