// Package sqlite implements storage.Repository on modernc.org/sqlite.
// It backs dry runs and tests: same schema, same upsert statements, no
// server required.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"

	"jobseed/internal/storage"
)

// Config holds SQLite repository configuration.
type Config struct {
	// DSN is a file path or file: URI, e.g. "jobseed.db" or
	// "file:dry-run.db?mode=rwc".
	DSN string
}

// Repository embeds the generic database/sql implementation.
type Repository struct {
	storage.SQLRepo
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository opens the database with foreign keys enforced. The pool
// holds a single connection so the pragma applies to every statement.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}

	return &Repository{SQLRepo: storage.SQLRepo{DB: db, Dialect: storage.SQLite, WrapErr: wrapErr}}, nil
}

// wrapErr surfaces the extended result code (e.g. 787 for a foreign key
// violation, 1555 for a primary key collision).
func wrapErr(op string, err error) error {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return &storage.Error{Op: op, Code: strconv.Itoa(se.Code()), Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
