package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndNew(t *testing.T) {
	t.Parallel()

	Register("fake-new", func(ctx context.Context, cfg Config) (Repository, error) {
		return newFakeRepo(), nil
	})
	repo, err := New(context.Background(), Config{Kind: "fake-new"})
	require.NoError(t, err)
	require.NotNil(t, repo)
	require.Contains(t, ListKinds(), "fake-new")
}

func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Kind: "does-not-exist"})
	require.ErrorContains(t, err, `unsupported storage kind "does-not-exist"`)
}

func TestRegister_Override(t *testing.T) {
	t.Parallel()

	calls := 0
	Register("override", func(ctx context.Context, cfg Config) (Repository, error) { calls++; return newFakeRepo(), nil })
	Register("override", func(ctx context.Context, cfg Config) (Repository, error) { calls += 10; return newFakeRepo(), nil })
	_, err := New(context.Background(), Config{Kind: "override"})
	require.NoError(t, err)
	require.Equal(t, 10, calls)
}

func TestNew_FactoryErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	Register("errkind", func(ctx context.Context, cfg Config) (Repository, error) { return nil, boom })
	_, err := New(context.Background(), Config{Kind: "errkind"})
	require.ErrorIs(t, err, boom)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.kind = "fake-ddl"
	require.Error(t, EnsureSchema(context.Background(), repo))

	RegisterDDL("fake-ddl", func(ctx context.Context, r Repository) error {
		return r.Exec(ctx, "CREATE TABLE t (id INT)")
	})
	require.NoError(t, EnsureSchema(context.Background(), repo))
	require.Equal(t, []string{"CREATE TABLE t (id INT)"}, repo.execs)
}

func TestError_Format(t *testing.T) {
	t.Parallel()

	base := errors.New("duplicate key")
	err := error(&Error{Op: "insert companies", Code: "23505", Detail: "Key (id)=(1) already exists.", Err: base})
	require.Equal(t, "insert companies: duplicate key (23505): Key (id)=(1) already exists.", err.Error())
	require.ErrorIs(t, err, base)

	var se *Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, "23505", se.Code)
}
