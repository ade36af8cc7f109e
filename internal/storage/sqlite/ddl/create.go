package ddl

import (
	gddl "jobseed/internal/ddl"
	"jobseed/internal/storage"
)

// BuildCreateTableSQL renders an idempotent CREATE TABLE for t.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	return gddl.BuildCreateTableSQL(t, gddl.RenderOptions{
		Quote:       storage.SQLite.Quote,
		IfNotExists: true,
	})
}
