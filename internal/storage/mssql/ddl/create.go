package ddl

import (
	"fmt"
	"strings"

	gddl "jobseed/internal/ddl"
	"jobseed/internal/storage"
)

// BuildCreateTableSQL returns a T-SQL script that creates t unless it
// already exists. T-SQL has no CREATE TABLE IF NOT EXISTS, so the
// statement is guarded by OBJECT_ID.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	create, err := gddl.BuildCreateTableSQL(t, gddl.RenderOptions{Quote: storage.MSSQL.Quote})
	if err != nil {
		return "", err
	}
	name := strings.ReplaceAll(storage.MSSQL.Quote(t.FQN), "'", "''")
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n%s\nEND", name, create), nil
}
