package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"jobseed/internal/storage"
)

const foreignKeysSQL = `SELECT conname, pg_get_constraintdef(oid)
FROM pg_constraint
WHERE conrelid = $1::regclass AND contype = 'f'
ORDER BY conname`

// ForeignKeys lists table's foreign keys with their definitions.
func (r *Repository) ForeignKeys(ctx context.Context, table string) ([]storage.ForeignKey, error) {
	rows, err := r.db.Query(ctx, foreignKeysSQL, table)
	if err != nil {
		return nil, wrapErr("foreign keys "+table, err)
	}
	fks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.ForeignKey, error) {
		var fk storage.ForeignKey
		err := row.Scan(&fk.Name, &fk.Definition)
		return fk, err
	})
	return fks, wrapErr("foreign keys "+table, err)
}

func (r *Repository) DropConstraint(ctx context.Context, table, name string) error {
	_, err := r.db.Exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", r.d.Quote(table), r.d.Quote(name)))
	return wrapErr("drop constraint "+name, err)
}

// AddForeignKey re-creates fk as NOT VALID so existing rows are not
// scanned while holding the lock.
func (r *Repository) AddForeignKey(ctx context.Context, table string, fk storage.ForeignKey) error {
	_, err := r.db.Exec(ctx, addForeignKeySQL(r.d, table, fk))
	return wrapErr("add constraint "+fk.Name, err)
}

func addForeignKeySQL(d storage.Dialect, table string, fk storage.ForeignKey) string {
	def := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(fk.Definition), "NOT VALID"))
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s NOT VALID", d.Quote(table), d.Quote(fk.Name), def)
}

func (r *Repository) ValidateConstraint(ctx context.Context, table, name string) error {
	_, err := r.db.Exec(ctx, fmt.Sprintf("ALTER TABLE %s VALIDATE CONSTRAINT %s", r.d.Quote(table), r.d.Quote(name)))
	return wrapErr("validate constraint "+name, err)
}
