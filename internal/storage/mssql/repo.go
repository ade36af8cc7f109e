// Package mssql implements storage.Repository for SQL Server reporting
// replicas. Upserts are MERGE statements run with IDENTITY_INSERT on so
// caller-supplied ids are kept.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"jobseed/internal/storage"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN      string
	MaxConns int32
}

// Repository embeds the generic database/sql implementation and
// overrides what T-SQL does differently.
type Repository struct {
	storage.SQLRepo
}

var (
	_ storage.Repository        = (*Repository)(nil)
	_ storage.ConstraintManager = (*Repository)(nil)
)

// NewRepository validates the DSN, opens the pool and pings it.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return newRepo(db), nil
}

func newRepo(db *sql.DB) *Repository {
	return &Repository{SQLRepo: storage.SQLRepo{DB: db, Dialect: storage.MSSQL, WrapErr: wrapErr}}
}

// wrapErr surfaces the server error number (547 for a constraint
// conflict, 2627 for a duplicate key).
func wrapErr(op string, err error) error {
	var me mssql.Error
	if errors.As(err, &me) {
		return &storage.Error{Op: op, Code: strconv.Itoa(int(me.Number)), Detail: me.Message, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// buildMerge renders one MERGE for rows with @pN placeholders.
func buildMerge(d storage.Dialect, spec storage.InsertSpec, rows [][]any) (string, []any, error) {
	if len(spec.Columns) == 0 {
		return "", nil, fmt.Errorf("insert into %s: no columns", spec.Table)
	}
	cols := d.QuoteAll(spec.Columns)
	marks := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"

	tuples := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if len(row) != len(cols) {
			return "", nil, fmt.Errorf("insert into %s: row %d has %d values for %d columns", spec.Table, i, len(row), len(cols))
		}
		tuples = append(tuples, marks)
		for _, v := range row {
			args = append(args, d.Value(v))
		}
	}

	src := make([]string, len(cols))
	var sets []string
	for i, c := range cols {
		src[i] = "S." + c
		if spec.Columns[i] != spec.Key {
			sets = append(sets, fmt.Sprintf("T.%s = S.%s", c, c))
		}
	}
	key := d.Quote(spec.Key)

	var sb strings.Builder
	fmt.Fprintf(&sb, "MERGE INTO %s WITH (HOLDLOCK) AS T USING (VALUES %s) AS S (%s) ON T.%s = S.%s",
		d.Quote(spec.Table), strings.Join(tuples, ","), strings.Join(cols, ","), key, key)
	if spec.Policy == storage.PolicyUpdate && len(sets) > 0 {
		if spec.TouchColumn != "" {
			sets = append(sets, fmt.Sprintf("T.%s = %s", d.Quote(spec.TouchColumn), d.Now))
		}
		fmt.Fprintf(&sb, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(sets, ", "))
	}
	fmt.Fprintf(&sb, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);", strings.Join(cols, ","), strings.Join(src, ","))

	q, err := sq.AtP.ReplacePlaceholders(sb.String())
	return q, args, err
}

// Insert runs one MERGE per parameter-limit chunk on a pinned connection,
// with IDENTITY_INSERT enabled when the key column is supplied.
func (r *Repository) Insert(ctx context.Context, spec storage.InsertSpec, rows [][]any) (total int64, err error) {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return 0, wrapErr("insert "+spec.Table, err)
	}
	defer conn.Close()

	if hasColumn(spec.Columns, spec.Key) {
		on := fmt.Sprintf("SET IDENTITY_INSERT %s ON", r.Dialect.Quote(spec.Table))
		if _, err := conn.ExecContext(ctx, on); err != nil {
			return 0, wrapErr("identity insert "+spec.Table, err)
		}
		defer func() {
			off := fmt.Sprintf("SET IDENTITY_INSERT %s OFF", r.Dialect.Quote(spec.Table))
			if _, oerr := conn.ExecContext(context.WithoutCancel(ctx), off); oerr != nil {
				err = errors.Join(err, wrapErr("identity insert "+spec.Table, oerr))
			}
		}()
	}

	for _, chunk := range storage.ChunkRows(rows, len(spec.Columns), r.Dialect.MaxParams) {
		q, args, err := buildMerge(r.Dialect, spec, chunk)
		if err != nil {
			return total, err
		}
		res, err := conn.ExecContext(ctx, q, args...)
		if err != nil {
			return total, wrapErr("insert "+spec.Table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func hasColumn(cols []string, c string) bool {
	for _, x := range cols {
		if x == c {
			return true
		}
	}
	return false
}

const identitySQL = `SELECT CAST(last_value AS BIGINT) FROM sys.identity_columns WHERE object_id = OBJECT_ID(@p1) AND name = @p2`

// ResetSequence reseeds the identity so the next generated id is
// MAX(key)+1. A table that never handed out an identity uses the reseed
// value itself, so it is reseeded one higher.
func (r *Repository) ResetSequence(ctx context.Context, table, key string) (int64, error) {
	var last sql.NullInt64
	err := r.DB.QueryRowContext(ctx, identitySQL, table, key).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s.%s: %w", table, key, storage.ErrNoSequence)
	}
	if err != nil {
		return 0, wrapErr("reset sequence "+table, err)
	}

	max, err := r.MaxKey(ctx, table, key)
	if err != nil {
		return 0, err
	}
	reseed := max
	if !last.Valid {
		reseed = max + 1
	}
	if _, err := r.DB.ExecContext(ctx, checkIdentSQL(table, reseed)); err != nil {
		return 0, wrapErr("reset sequence "+table, err)
	}
	return max + 1, nil
}

func checkIdentSQL(table string, reseed int64) string {
	return fmt.Sprintf("DBCC CHECKIDENT ('%s', RESEED, %d) WITH NO_INFOMSGS", strings.ReplaceAll(table, "'", "''"), reseed)
}
