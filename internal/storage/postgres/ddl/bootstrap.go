package ddl

import (
	"context"
	"fmt"

	"jobseed/internal/storage"
)

// EnsureSchema creates every job-board table that does not exist yet.
func EnsureSchema(ctx context.Context, repo storage.Repository) error {
	stmts, err := Statements()
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if err := repo.Exec(ctx, s); err != nil {
			return fmt.Errorf("postgres ddl: %w", err)
		}
	}
	return nil
}
