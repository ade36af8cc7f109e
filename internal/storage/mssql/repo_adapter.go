package mssql

import (
	"context"

	"jobseed/internal/storage"
	msddl "jobseed/internal/storage/mssql/ddl"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return newRepository(ctx, Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
	})
	storage.RegisterDDL("mssql", msddl.EnsureSchema)
}
