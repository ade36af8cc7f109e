package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ForeignKey is a constraint as the catalog reports it.
type ForeignKey struct {
	Name       string
	Definition string
}

// ConstraintManager is implemented by backends that can drop and restore
// foreign keys.
type ConstraintManager interface {
	ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error)
	DropConstraint(ctx context.Context, table, name string) error

	// AddForeignKey re-creates fk without checking existing rows.
	AddForeignKey(ctx context.Context, table string, fk ForeignKey) error
	ValidateConstraint(ctx context.Context, table, name string) error
}

// ErrConstraintsUnsupported is returned when the backend cannot relax
// constraints.
var ErrConstraintsUnsupported = errors.New("backend cannot relax foreign keys")

// WithForeignKeysRelaxed drops table's foreign keys, runs fn, and
// restores every dropped key on all exit paths, including cancellation.
// Restored keys are validated; a key that fails validation stays in
// place as NOT VALID (enforced for new rows) and is logged.
func WithForeignKeysRelaxed(ctx context.Context, repo Repository, table string, log zerolog.Logger, fn func(context.Context) error) (err error) {
	cm, ok := repo.(ConstraintManager)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConstraintsUnsupported, repo.Kind())
	}

	fks, err := cm.ForeignKeys(ctx, table)
	if err != nil {
		return fmt.Errorf("list foreign keys on %s: %w", table, err)
	}

	var dropped []ForeignKey
	defer func() {
		// Restore even when ctx is canceled.
		rctx := context.WithoutCancel(ctx)
		var rerrs []error
		for _, fk := range dropped {
			if aerr := cm.AddForeignKey(rctx, table, fk); aerr != nil {
				rerrs = append(rerrs, fmt.Errorf("restore %s: %w", fk.Name, aerr))
				continue
			}
			if verr := cm.ValidateConstraint(rctx, table, fk.Name); verr != nil {
				log.Warn().Err(verr).Str("table", table).Str("constraint", fk.Name).
					Msg("fkguard: restored constraint left NOT VALID; existing rows violate it")
				continue
			}
			log.Info().Str("table", table).Str("constraint", fk.Name).Msg("fkguard: constraint restored")
		}
		err = errors.Join(err, errors.Join(rerrs...))
	}()

	for _, fk := range fks {
		if err := cm.DropConstraint(ctx, table, fk.Name); err != nil {
			return fmt.Errorf("drop %s: %w", fk.Name, err)
		}
		dropped = append(dropped, fk)
		log.Info().Str("table", table).Str("constraint", fk.Name).Msg("fkguard: constraint dropped")
	}

	return fn(ctx)
}
