package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLRepo implements Repository over database/sql. Backends that speak
// database/sql embed it and override what their engine does differently.
type SQLRepo struct {
	DB      *sql.DB
	Dialect Dialect

	// WrapErr converts driver errors into *Error. Nil keeps errors as-is.
	WrapErr func(op string, err error) error
}

func (r *SQLRepo) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if r.WrapErr != nil {
		return r.WrapErr(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Kind returns the dialect name.
func (r *SQLRepo) Kind() string { return r.Dialect.Name }

// Insert runs one INSERT ... ON CONFLICT per parameter-limit chunk.
func (r *SQLRepo) Insert(ctx context.Context, spec InsertSpec, rows [][]any) (int64, error) {
	var total int64
	for _, chunk := range ChunkRows(rows, len(spec.Columns), r.Dialect.MaxParams) {
		q, args, err := r.Dialect.BuildUpsert(spec, chunk)
		if err != nil {
			return total, err
		}
		res, err := r.DB.ExecContext(ctx, q, args...)
		if err != nil {
			return total, r.wrap("insert "+spec.Table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Keys loads every key of table.
func (r *SQLRepo) Keys(ctx context.Context, table, key string) (map[int64]struct{}, error) {
	q, args, err := r.Dialect.KeysQuery(table, key)
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, r.wrap("keys "+table, err)
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, r.wrap("keys "+table, err)
		}
		out[id] = struct{}{}
	}
	return out, r.wrap("keys "+table, rows.Err())
}

func (r *SQLRepo) scalar(ctx context.Context, op, q string, args []any) (int64, error) {
	var n int64
	if err := r.DB.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, r.wrap(op, err)
	}
	return n, nil
}

// MaxKey returns MAX(key) or 0.
func (r *SQLRepo) MaxKey(ctx context.Context, table, key string) (int64, error) {
	q, args, err := r.Dialect.MaxKeyQuery(table, key)
	if err != nil {
		return 0, err
	}
	return r.scalar(ctx, "max key "+table, q, args)
}

// Count returns COUNT(*).
func (r *SQLRepo) Count(ctx context.Context, table string) (int64, error) {
	q, args, err := r.Dialect.CountQuery(table)
	if err != nil {
		return 0, err
	}
	return r.scalar(ctx, "count "+table, q, args)
}

// CountOrphans counts dangling child references.
func (r *SQLRepo) CountOrphans(ctx context.Context, oq OrphanQuery) (int64, error) {
	q, args, err := r.Dialect.OrphansQuery(oq)
	if err != nil {
		return 0, err
	}
	return r.scalar(ctx, "orphans "+oq.Child, q, args)
}

// Sample returns up to n rows ordered by key.
func (r *SQLRepo) Sample(ctx context.Context, table, key string, columns []string, n int) ([]map[string]any, error) {
	q, args, err := r.Dialect.SampleQuery(table, key, columns, n)
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, r.wrap("sample "+table, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, r.wrap("sample "+table, err)
		}
		m := make(map[string]any, len(columns))
		for i, c := range columns {
			if b, ok := vals[i].([]byte); ok {
				m[c] = string(b)
			} else {
				m[c] = vals[i]
			}
		}
		out = append(out, m)
	}
	return out, r.wrap("sample "+table, rows.Err())
}

// DeleteKeys removes the rows whose key is in ids, in chunks that fit
// the bind-parameter limit.
func (r *SQLRepo) DeleteKeys(ctx context.Context, table, key string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var total int64
	for _, chunk := range ChunkKeys(ids, r.Dialect.MaxParams) {
		q, args, err := r.Dialect.DeleteKeysQuery(table, key, chunk)
		if err != nil {
			return total, err
		}
		res, err := r.DB.ExecContext(ctx, q, args...)
		if err != nil {
			return total, r.wrap("delete "+table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Truncate deletes from each table in order; callers list children first.
func (r *SQLRepo) Truncate(ctx context.Context, tables ...string) error {
	for _, t := range tables {
		q, args, err := r.Dialect.DeleteAllQuery(t)
		if err != nil {
			return err
		}
		if _, err := r.DB.ExecContext(ctx, q, args...); err != nil {
			return r.wrap("delete "+t, err)
		}
	}
	return nil
}

// ResetSequence returns MAX(key)+1. Engines whose integer primary key
// already allocates above the current maximum need nothing more.
func (r *SQLRepo) ResetSequence(ctx context.Context, table, key string) (int64, error) {
	max, err := r.MaxKey(ctx, table, key)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// Exec runs a statement without arguments, typically DDL.
func (r *SQLRepo) Exec(ctx context.Context, stmt string) error {
	_, err := r.DB.ExecContext(ctx, stmt)
	return r.wrap("exec", err)
}

// Close closes the pool.
func (r *SQLRepo) Close() { _ = r.DB.Close() }
