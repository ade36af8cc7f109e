package storage

import (
	"context"
	"fmt"
	"sync"
)

// SchemaBootstrapper creates the job-board tables on repo.
type SchemaBootstrapper func(ctx context.Context, repo Repository) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]SchemaBootstrapper{}
)

// RegisterDDL installs the bootstrapper for a backend kind.
func RegisterDDL(kind string, fn SchemaBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureSchema runs the bootstrapper registered for repo.Kind().
func EnsureSchema(ctx context.Context, repo Repository) error {
	ddlMu.RLock()
	fn, ok := ddlFns[repo.Kind()]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no schema bootstrapper registered for storage kind %q", repo.Kind())
	}
	return fn(ctx, repo)
}
