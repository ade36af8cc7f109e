package mssql

import (
	"context"
	"fmt"

	"jobseed/internal/storage"
)

const foreignKeysSQL = `SELECT name FROM sys.foreign_keys WHERE parent_object_id = OBJECT_ID(@p1) ORDER BY name`

// ForeignKeys lists table's foreign keys. SQL Server disables keys in
// place, so no definition is needed to restore them.
func (r *Repository) ForeignKeys(ctx context.Context, table string) ([]storage.ForeignKey, error) {
	rows, err := r.DB.QueryContext(ctx, foreignKeysSQL, table)
	if err != nil {
		return nil, wrapErr("foreign keys "+table, err)
	}
	defer rows.Close()

	var out []storage.ForeignKey
	for rows.Next() {
		var fk storage.ForeignKey
		if err := rows.Scan(&fk.Name); err != nil {
			return nil, wrapErr("foreign keys "+table, err)
		}
		out = append(out, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("foreign keys "+table, err)
	}
	return out, nil
}

func (r *Repository) alter(ctx context.Context, op, table, clause, name string) error {
	q := fmt.Sprintf("ALTER TABLE %s %s %s", r.Dialect.Quote(table), clause, r.Dialect.Quote(name))
	_, err := r.DB.ExecContext(ctx, q)
	if err != nil {
		return wrapErr(op+" "+name, err)
	}
	return nil
}

// DropConstraint disables the key.
func (r *Repository) DropConstraint(ctx context.Context, table, name string) error {
	return r.alter(ctx, "disable constraint", table, "NOCHECK CONSTRAINT", name)
}

// AddForeignKey re-enables the key without checking existing rows.
func (r *Repository) AddForeignKey(ctx context.Context, table string, fk storage.ForeignKey) error {
	return r.alter(ctx, "enable constraint", table, "WITH NOCHECK CHECK CONSTRAINT", fk.Name)
}

// ValidateConstraint re-checks existing rows and marks the key trusted.
func (r *Repository) ValidateConstraint(ctx context.Context, table, name string) error {
	return r.alter(ctx, "validate constraint", table, "WITH CHECK CHECK CONSTRAINT", name)
}
