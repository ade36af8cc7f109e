// Package postgres implements storage.Repository on a pgx v5 pool.
// Upserts are multi-row INSERT ... ON CONFLICT statements with positional
// parameters, one statement per 65535-parameter chunk.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobseed/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN      string
	MaxConns int32
}

// querier is the subset of *pgxpool.Pool the repository uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the Postgres implementation of storage.Repository and
// storage.ConstraintManager.
type Repository struct {
	db      querier
	closeFn func()
	d       storage.Dialect
}

var (
	_ storage.Repository        = (*Repository)(nil)
	_ storage.ConstraintManager = (*Repository)(nil)
)

// NewRepository opens and pings a pool.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repository{db: pool, closeFn: pool.Close, d: storage.Postgres}, nil
}

// wrapErr surfaces SQLSTATE, detail and constraint of server errors.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &storage.Error{
			Op:         op,
			Code:       pgErr.Code,
			Detail:     pgErr.Detail,
			Constraint: pgErr.ConstraintName,
			Err:        err,
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *Repository) Kind() string { return "postgres" }

// Insert upserts rows and returns the number of rows inserted or updated.
// Rows skipped by DO NOTHING are not counted.
func (r *Repository) Insert(ctx context.Context, spec storage.InsertSpec, rows [][]any) (int64, error) {
	var total int64
	for _, chunk := range storage.ChunkRows(rows, len(spec.Columns), r.d.MaxParams) {
		q, args, err := r.d.BuildUpsert(spec, chunk)
		if err != nil {
			return total, err
		}
		tag, err := r.db.Exec(ctx, q, args...)
		if err != nil {
			return total, wrapErr("insert "+spec.Table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (r *Repository) Keys(ctx context.Context, table, key string) (map[int64]struct{}, error) {
	q, _, err := r.d.KeysQuery(table, key)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, wrapErr("keys "+table, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrapErr("keys "+table, err)
	}
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *Repository) scalar(ctx context.Context, op, q string, args []any) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, wrapErr(op, err)
	}
	return n, nil
}

func (r *Repository) MaxKey(ctx context.Context, table, key string) (int64, error) {
	q, args, err := r.d.MaxKeyQuery(table, key)
	if err != nil {
		return 0, err
	}
	return r.scalar(ctx, "max key "+table, q, args)
}

func (r *Repository) Count(ctx context.Context, table string) (int64, error) {
	q, args, err := r.d.CountQuery(table)
	if err != nil {
		return 0, err
	}
	return r.scalar(ctx, "count "+table, q, args)
}

func (r *Repository) CountOrphans(ctx context.Context, oq storage.OrphanQuery) (int64, error) {
	q, args, err := r.d.OrphansQuery(oq)
	if err != nil {
		return 0, err
	}
	return r.scalar(ctx, "orphans "+oq.Child, q, args)
}

func (r *Repository) Sample(ctx context.Context, table, key string, columns []string, n int) ([]map[string]any, error) {
	q, args, err := r.d.SampleQuery(table, key, columns, n)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, wrapErr("sample "+table, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	return out, wrapErr("sample "+table, err)
}

func (r *Repository) DeleteKeys(ctx context.Context, table, key string, ids []int64) (int64, error) {
	var total int64
	for _, chunk := range storage.ChunkKeys(ids, r.d.MaxParams) {
		q, args, err := r.d.DeleteKeysQuery(table, key, chunk)
		if err != nil {
			return total, err
		}
		tag, err := r.db.Exec(ctx, q, args...)
		if err != nil {
			return total, wrapErr("delete "+table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// truncateSQL empties tables in one statement and cascades to every
// dependent table (job_applications included).
func truncateSQL(d storage.Dialect, tables []string) string {
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(d.QuoteAll(tables), ", "))
}

func (r *Repository) Truncate(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, truncateSQL(r.d, tables))
	return wrapErr("truncate", err)
}

// resetSequenceSQL moves the key's serial sequence so the next nextval
// is MAX(key)+1, or 1 on an empty table. It yields NULL when the column
// owns no sequence.
func resetSequenceSQL(d storage.Dialect, table, key string) string {
	return fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence($1, $2), COALESCE((SELECT MAX(%s) FROM %s), 0) + 1, false)",
		d.Quote(key), d.Quote(table))
}

func (r *Repository) ResetSequence(ctx context.Context, table, key string) (int64, error) {
	var next *int64
	if err := r.db.QueryRow(ctx, resetSequenceSQL(r.d, table, key), table, key).Scan(&next); err != nil {
		return 0, wrapErr("reset sequence "+table, err)
	}
	if next == nil {
		return 0, fmt.Errorf("%s.%s: %w", table, key, storage.ErrNoSequence)
	}
	return *next, nil
}

func (r *Repository) Exec(ctx context.Context, sql string) error {
	_, err := r.db.Exec(ctx, sql)
	return wrapErr("exec", err)
}

func (r *Repository) Close() {
	if r.closeFn != nil {
		r.closeFn()
	}
}
