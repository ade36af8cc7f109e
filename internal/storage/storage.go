// Package storage defines the backend-neutral contract the import
// pipeline writes through, plus a registry so callers open a backend by
// kind without importing it.
//
// Backends register themselves from init; import
// jobseed/internal/storage/all for side effects to enable them all.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Config opens a backend.
type Config struct {
	Kind     string
	DSN      string
	MaxConns int32
}

// Policy is the conflict policy for key collisions.
type Policy string

const (
	// PolicyUpdate overwrites the non-key columns of an existing row.
	PolicyUpdate Policy = "update"
	// PolicySkip leaves existing rows untouched.
	PolicySkip Policy = "skip"
)

// InsertSpec describes one multi-row insert.
type InsertSpec struct {
	Table   string
	Key     string
	Columns []string
	Policy  Policy

	// TouchColumn is set to the current time on update when non-empty.
	TouchColumn string
}

// OrphanQuery counts child rows whose reference has no parent row.
type OrphanQuery struct {
	Child, Column     string
	Parent, ParentKey string
}

// Repository is the write/read surface the pipeline and reconciler need.
type Repository interface {
	Kind() string

	// Insert writes rows (aligned to spec.Columns) as one statement and
	// returns the number of rows inserted or updated.
	Insert(ctx context.Context, spec InsertSpec, rows [][]any) (int64, error)

	Keys(ctx context.Context, table, key string) (map[int64]struct{}, error)
	MaxKey(ctx context.Context, table, key string) (int64, error)
	Count(ctx context.Context, table string) (int64, error)
	Sample(ctx context.Context, table, key string, columns []string, n int) ([]map[string]any, error)
	CountOrphans(ctx context.Context, q OrphanQuery) (int64, error)

	// DeleteKeys removes the rows of table whose key is in ids and
	// returns the rows removed.
	DeleteKeys(ctx context.Context, table, key string, ids []int64) (int64, error)

	// Truncate empties tables (listed child first), cascading to dependents.
	Truncate(ctx context.Context, tables ...string) error

	// ResetSequence moves the key generator past MAX(key) and returns the
	// next value it will hand out.
	ResetSequence(ctx context.Context, table, key string) (int64, error)

	Exec(ctx context.Context, sql string) error
	Close()
}

// ErrNoSequence is returned by ResetSequence when the key column has no
// generator attached.
var ErrNoSequence = errors.New("no sequence attached to key column")

// Error carries a backend error with its native code, so callers can log
// SQLSTATE (or the engine's equivalent) without importing drivers.
type Error struct {
	Op         string
	Code       string
	Detail     string
	Constraint string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Err)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Factory opens a Repository.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// New opens the backend registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage kind %q (registered: %v)", cfg.Kind, ListKinds())
	}
	return f(ctx, cfg)
}

// ListKinds returns registered kinds, sorted.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
