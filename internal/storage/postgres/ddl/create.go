package ddl

import (
	gddl "jobseed/internal/ddl"
	"jobseed/internal/storage"
)

// BuildCreateTableSQL renders an idempotent CREATE TABLE for t.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	return gddl.BuildCreateTableSQL(t, gddl.RenderOptions{
		Quote:       storage.Postgres.Quote,
		IfNotExists: true,
	})
}

// Statements renders the whole schema, parents first.
func Statements() ([]string, error) {
	var out []string
	for _, t := range gddl.Schema(Types) {
		s, err := BuildCreateTableSQL(t)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
