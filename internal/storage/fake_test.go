package storage

import (
	"context"
	"errors"
)

// fakeRepo records calls; constraint methods make it a ConstraintManager.
type fakeRepo struct {
	kind    string
	execs   []string
	fks     []ForeignKey
	dropped []string
	added   []string

	addErr      error
	validateErr error
}

func newFakeRepo() *fakeRepo { return &fakeRepo{kind: "fake"} }

func (f *fakeRepo) Kind() string { return f.kind }
func (f *fakeRepo) Insert(context.Context, InsertSpec, [][]any) (int64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeRepo) Keys(context.Context, string, string) (map[int64]struct{}, error) {
	return nil, nil
}
func (f *fakeRepo) MaxKey(context.Context, string, string) (int64, error) { return 0, nil }
func (f *fakeRepo) Count(context.Context, string) (int64, error)          { return 0, nil }
func (f *fakeRepo) Sample(context.Context, string, string, []string, int) ([]map[string]any, error) {
	return nil, nil
}
func (f *fakeRepo) CountOrphans(context.Context, OrphanQuery) (int64, error)     { return 0, nil }
func (f *fakeRepo) DeleteKeys(context.Context, string, string, []int64) (int64, error) {
	return 0, nil
}
func (f *fakeRepo) Truncate(context.Context, ...string) error                    { return nil }
func (f *fakeRepo) ResetSequence(context.Context, string, string) (int64, error) { return 1, nil }
func (f *fakeRepo) Exec(_ context.Context, s string) error {
	f.execs = append(f.execs, s)
	return nil
}
func (f *fakeRepo) Close() {}

func (f *fakeRepo) ForeignKeys(context.Context, string) ([]ForeignKey, error) { return f.fks, nil }
func (f *fakeRepo) DropConstraint(_ context.Context, _ string, name string) error {
	f.dropped = append(f.dropped, name)
	return nil
}
func (f *fakeRepo) AddForeignKey(ctx context.Context, _ string, fk ForeignKey) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, fk.Name)
	return nil
}
func (f *fakeRepo) ValidateConstraint(context.Context, string, string) error { return f.validateErr }

// plainRepo hides the ConstraintManager methods.
type plainRepo struct{ Repository }
