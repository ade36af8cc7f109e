// Package ddl is a small backend-agnostic model of the job-board schema
// and a renderer for CREATE TABLE statements. Backend packages supply
// the type mapping and the identifier quoting.
package ddl

import (
	"fmt"
	"strings"
)

// RenderOptions controls dialect details of BuildCreateTableSQL.
type RenderOptions struct {
	// Quote quotes one identifier or schema.table name. Nil emits names
	// verbatim.
	Quote func(string) string

	// IfNotExists emits CREATE TABLE IF NOT EXISTS.
	IfNotExists bool
}

// BuildCreateTableSQL renders a CREATE TABLE statement from t.
//
// Columns render as `<name> <type> [NOT NULL] [DEFAULT <expr>]`; primary
// key columns are always NOT NULL and are collected into a trailing
// PRIMARY KEY clause, followed by one FOREIGN KEY constraint per
// reference in declaration order.
func BuildCreateTableSQL(t TableDef, opt RenderOptions) (string, error) {
	q := opt.Quote
	if q == nil {
		q = func(s string) string { return s }
	}

	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	known := make(map[string]bool, len(t.Columns))
	parts := make([]string, 0, len(t.Columns)+len(t.ForeignKeys)+1)
	var pks []string

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}
		known[name] = true

		var sb strings.Builder
		sb.WriteString(q(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		parts = append(parts, sb.String())

		if c.PrimaryKey {
			pks = append(pks, q(name))
		}
	}

	if len(pks) > 0 {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	for _, fk := range t.ForeignKeys {
		if !known[fk.Column] {
			return "", fmt.Errorf("ddl: foreign key %s references unknown column %s", fk.Name, fk.Column)
		}
		s := fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			q(fk.Name), q(fk.Column), q(fk.RefTable), q(fk.RefColumn))
		if fk.OnDelete != "" {
			s += " ON DELETE " + fk.OnDelete
		}
		parts = append(parts, s)
	}

	head := "CREATE TABLE "
	if opt.IfNotExists {
		head += "IF NOT EXISTS "
	}
	return fmt.Sprintf("%s%s (\n  %s\n);", head, q(fqn), strings.Join(parts, ",\n  ")), nil
}
