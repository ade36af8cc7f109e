package sqlite

import (
	"context"

	"jobseed/internal/storage"
	sqliteddl "jobseed/internal/storage/sqlite/ddl"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return newRepository(ctx, Config{DSN: cfg.DSN})
	})
	storage.RegisterDDL("sqlite", sqliteddl.EnsureSchema)
}
