package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect captures the SQL differences between backends. Statements are
// built with squirrel so every value travels as a bind parameter;
// identifiers come from entity definitions and are quoted.
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat

	// Now is the current-timestamp expression.
	Now string

	// MaxParams is the bind-parameter limit of one statement.
	MaxParams int

	// Arrays reports native text[] support; otherwise lists are stored
	// as JSON text.
	Arrays bool

	// Brackets selects [ident] quoting instead of "ident".
	Brackets bool

	// TopN selects SELECT TOP n instead of LIMIT n.
	TopN bool
}

// Built-in dialects.
var (
	Postgres = Dialect{Name: "postgres", Placeholder: sq.Dollar, Now: "NOW()", MaxParams: 65535, Arrays: true}
	SQLite   = Dialect{Name: "sqlite", Placeholder: sq.Question, Now: "CURRENT_TIMESTAMP", MaxParams: 32766}
	MSSQL    = Dialect{Name: "mssql", Placeholder: sq.AtP, Now: "SYSUTCDATETIME()", MaxParams: 2100, Brackets: true, TopN: true}
)

// Quote quotes one identifier, or each segment of schema.table.
func (d Dialect) Quote(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if d.Brackets {
			parts[i] = "[" + strings.ReplaceAll(p, "]", "]]") + "]"
		} else {
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}

// QuoteAll quotes every name.
func (d Dialect) QuoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.Quote(n)
	}
	return out
}

// Value adapts a normalized value for the driver.
func (d Dialect) Value(v any) any {
	if list, ok := v.([]string); ok && !d.Arrays {
		b, _ := json.Marshal(list)
		return string(b)
	}
	return v
}

func (d Dialect) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.Placeholder)
}

// ConflictClause renders the ON CONFLICT suffix for spec.
func (d Dialect) ConflictClause(spec InsertSpec) string {
	var sets []string
	if spec.Policy == PolicyUpdate {
		for _, c := range spec.Columns {
			if c == spec.Key {
				continue
			}
			q := d.Quote(c)
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
		}
	}
	if len(sets) == 0 {
		return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", d.Quote(spec.Key))
	}
	if spec.TouchColumn != "" {
		sets = append(sets, fmt.Sprintf("%s = %s", d.Quote(spec.TouchColumn), d.Now))
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", d.Quote(spec.Key), strings.Join(sets, ", "))
}

// BuildUpsert renders a multi-row INSERT ... ON CONFLICT.
func (d Dialect) BuildUpsert(spec InsertSpec, rows [][]any) (string, []any, error) {
	if len(spec.Columns) == 0 {
		return "", nil, fmt.Errorf("insert into %s: no columns", spec.Table)
	}
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("insert into %s: no rows", spec.Table)
	}
	ib := d.builder().Insert(d.Quote(spec.Table)).Columns(d.QuoteAll(spec.Columns)...)
	for i, row := range rows {
		if len(row) != len(spec.Columns) {
			return "", nil, fmt.Errorf("insert into %s: row %d has %d values for %d columns", spec.Table, i, len(row), len(spec.Columns))
		}
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = d.Value(v)
		}
		ib = ib.Values(vals...)
	}
	return ib.Suffix(d.ConflictClause(spec)).ToSql()
}

// KeysQuery selects every key of table.
func (d Dialect) KeysQuery(table, key string) (string, []any, error) {
	return d.builder().Select(d.Quote(key)).From(d.Quote(table)).ToSql()
}

// MaxKeyQuery selects MAX(key), 0 on an empty table.
func (d Dialect) MaxKeyQuery(table, key string) (string, []any, error) {
	return d.builder().Select(fmt.Sprintf("COALESCE(MAX(%s), 0)", d.Quote(key))).From(d.Quote(table)).ToSql()
}

// CountQuery selects COUNT(*).
func (d Dialect) CountQuery(table string) (string, []any, error) {
	return d.builder().Select("COUNT(*)").From(d.Quote(table)).ToSql()
}

// SampleQuery selects the first n rows by key.
func (d Dialect) SampleQuery(table, key string, columns []string, n int) (string, []any, error) {
	sb := d.builder().Select(d.QuoteAll(columns)...).From(d.Quote(table)).OrderBy(d.Quote(key))
	if d.TopN {
		sb = sb.Options(fmt.Sprintf("TOP %d", n))
	} else {
		sb = sb.Limit(uint64(n))
	}
	return sb.ToSql()
}

// OrphansQuery counts non-null child references with no parent row.
func (d Dialect) OrphansQuery(q OrphanQuery) (string, []any, error) {
	childCol := "c." + d.Quote(q.Column)
	parentKey := "p." + d.Quote(q.ParentKey)
	return d.builder().
		Select("COUNT(*)").
		From(d.Quote(q.Child) + " c").
		LeftJoin(fmt.Sprintf("%s p ON %s = %s", d.Quote(q.Parent), childCol, parentKey)).
		Where(sq.And{sq.NotEq{childCol: nil}, sq.Eq{parentKey: nil}}).
		ToSql()
}

// DeleteAllQuery deletes every row of table.
func (d Dialect) DeleteAllQuery(table string) (string, []any, error) {
	return d.builder().Delete(d.Quote(table)).ToSql()
}

// DeleteKeysQuery deletes the rows whose key is in ids.
func (d Dialect) DeleteKeysQuery(table, key string, ids []int64) (string, []any, error) {
	return d.builder().Delete(d.Quote(table)).Where(sq.Eq{d.Quote(key): ids}).ToSql()
}

// ChunkKeys splits ids so no chunk exceeds maxParams bind parameters.
func ChunkKeys(ids []int64, maxParams int) [][]int64 {
	if maxParams <= 0 {
		return [][]int64{ids}
	}
	return Batches(ids, maxParams)
}

// ChunkRows splits rows so no chunk exceeds maxParams bind parameters.
func ChunkRows(rows [][]any, width, maxParams int) [][][]any {
	if width <= 0 || maxParams <= 0 {
		return [][][]any{rows}
	}
	return Batches(rows, max(maxParams/width, 1))
}
