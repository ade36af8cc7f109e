// Package config holds the two configuration layers of the importer:
// the process environment (Env, see env.go) and per-entity pipeline
// files decoded into Pipeline.
//
// A pipeline file names what to load and how; it never carries
// credentials. Example:
//
//	{
//	  "job":     "companies-nightly",
//	  "entity":  "companies",
//	  "source":  { "kind": "file", "file": { "path": "data/companies.csv" }, "mode": "stream" },
//	  "parser":  { "kind": "csv", "options": { "comma": "," } },
//	  "storage": { "policy": "update" },
//	  "runtime": { "batch_size": 500, "progress_every": 10, "max_errors": 100 }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Limits and defaults for runtime settings.
const (
	DefaultBatchSize     = 500
	MaxBatchSize         = 5000
	DefaultProgressEvery = 10
	DefaultMaxErrors     = 100
	DefaultChannelBuffer = 1024

	// PostgresMaxParams is the bind-parameter limit of one statement.
	PostgresMaxParams = 65535
)

// Conflict policies.
const (
	PolicyUpdate = "update"
	PolicySkip   = "skip"
)

// Resume modes.
const (
	ResumeNone       = "none"
	ResumeMaxID      = "max_id"
	ResumeCheckpoint = "checkpoint"
)

// Pipeline is one entity import.
type Pipeline struct {
	// Job names the run in logs, metrics, reject files and checkpoints.
	Job    string `json:"job"`
	Entity string `json:"entity"`

	Source  Source        `json:"source"`
	Parser  Parser        `json:"parser"`
	Storage Storage       `json:"storage"`
	Runtime RuntimeConfig `json:"runtime"`
}

// Source locates the input.
type Source struct {
	// Kind is "file" or "http".
	Kind string     `json:"kind"`
	File SourceFile `json:"file"`
	URL  string     `json:"url"`

	// Mode is "read_all" (default) or "stream".
	Mode string `json:"mode"`
}

// SourceFile configures the "file" kind.
type SourceFile struct {
	Path string `json:"path"`
}

// Location returns the path or URL to open.
func (s Source) Location() string {
	if s.Kind == "http" {
		return s.URL
	}
	return s.File.Path
}

// Parser selects the input format.
type Parser struct {
	// Kind is "csv" or "xlsx".
	Kind string `json:"kind"`

	// Options by kind:
	//   csv:  comma (string), keep_space (bool), lazy_quotes (bool), header_map (object)
	//   xlsx: sheet (string), header_map (object)
	Options Options `json:"options"`
}

// Storage configures how rows land in the target table. The backend
// and DSN come from the environment.
type Storage struct {
	// Policy is "update" (upsert) or "skip" (insert, ignore conflicts).
	Policy string `json:"policy"`

	// PlaceholderParents inserts "Company {id}" rows for jobs whose
	// company is missing instead of skipping them.
	PlaceholderParents bool `json:"placeholder_parents"`

	// RelaxForeignKeys drops the table's foreign keys for the load and
	// restores them on exit. Off by default; pre-filtering is the norm.
	RelaxForeignKeys bool `json:"relax_foreign_keys"`
}

// RuntimeConfig controls batching, reporting and resumption.
type RuntimeConfig struct {
	BatchSize     int `json:"batch_size"`
	ProgressEvery int `json:"progress_every"`

	// MaxErrors trips the circuit breaker when row-level insert errors
	// exceed it.
	MaxErrors int `json:"max_errors"`

	// MaxBatchesPerSecond throttles the loader; 0 disables.
	MaxBatchesPerSecond float64 `json:"max_batches_per_second"`

	// ChannelBuffer bounds the reader-to-loader queue in stream mode.
	ChannelBuffer int `json:"channel_buffer"`

	// Resume is "none", "max_id" or "checkpoint".
	Resume string `json:"resume"`
}

// Load decodes a pipeline file and applies defaults. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("open pipeline: %w", err)
	}
	defer f.Close()

	var p Pipeline
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decode pipeline %s: %w", path, err)
	}
	p.ApplyDefaults()
	return p, nil
}

// ApplyDefaults fills zero values. Negative values are left for
// ValidatePipeline to report.
func (p *Pipeline) ApplyDefaults() {
	if p.Job == "" {
		p.Job = p.Entity
	}
	if p.Source.Kind == "" {
		p.Source.Kind = "file"
	}
	if p.Source.Mode == "" {
		p.Source.Mode = "read_all"
	}
	if p.Parser.Kind == "" {
		p.Parser.Kind = "csv"
	}
	if p.Parser.Options == nil {
		p.Parser.Options = Options{}
	}
	if p.Storage.Policy == "" {
		p.Storage.Policy = PolicyUpdate
	}
	r := &p.Runtime
	if r.BatchSize == 0 {
		r.BatchSize = DefaultBatchSize
	}
	if r.ProgressEvery == 0 {
		r.ProgressEvery = DefaultProgressEvery
	}
	if r.MaxErrors == 0 {
		r.MaxErrors = DefaultMaxErrors
	}
	if r.ChannelBuffer == 0 {
		r.ChannelBuffer = DefaultChannelBuffer
	}
	if r.Resume == "" {
		r.Resume = ResumeNone
	}
}

// Default returns the pipeline used when an entity is imported without
// a pipeline file.
func Default(entity, path string) Pipeline {
	p := Pipeline{Entity: entity, Source: Source{File: SourceFile{Path: path}}}
	p.ApplyDefaults()
	return p
}

// Options is a free-form bag for format-specific parser settings with
// typed accessors that fall back to a default on absence or type
// mismatch.
type Options map[string]any

// String returns the string at key or def.
func (o Options) String(key, def string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return def
}

// Bool returns the bool at key or def.
func (o Options) Bool(key string, def bool) bool {
	if b, ok := o[key].(bool); ok {
		return b
	}
	return def
}

// Int returns the number at key or def. encoding/json decodes numbers
// as float64.
func (o Options) Int(key string, def int) int {
	switch n := o[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}

// Rune returns the first rune of the string at key or def.
func (o Options) Rune(key string, def rune) rune {
	for _, r := range o.String(key, "") {
		return r
	}
	return def
}

// StringMap returns the string-valued entries of the object at key.
func (o Options) StringMap(key string) map[string]string {
	out := map[string]string{}
	m, _ := o[key].(map[string]any)
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// UnmarshalJSON decodes a missing or null bag to an empty map.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*o = m
	return nil
}
