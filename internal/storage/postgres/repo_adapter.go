package postgres

import (
	"context"

	"jobseed/internal/storage"
	pgddl "jobseed/internal/storage/postgres/ddl"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return newRepository(ctx, Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
	})
	storage.RegisterDDL("postgres", pgddl.EnsureSchema)
}
