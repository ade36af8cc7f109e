package ddl

import (
	"context"
	"fmt"

	gddl "jobseed/internal/ddl"
	"jobseed/internal/storage"
)

// EnsureSchema creates every job-board table that does not exist yet.
func EnsureSchema(ctx context.Context, repo storage.Repository) error {
	for _, t := range gddl.Schema(Types) {
		s, err := BuildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if err := repo.Exec(ctx, s); err != nil {
			return fmt.Errorf("mssql ddl %s: %w", t.FQN, err)
		}
	}
	return nil
}
