package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"jobseed/internal/storage"
)

func openTest(t *testing.T) *Repository {
	t.Helper()

	ctx := context.Background()
	repo, err := NewRepository(ctx, Config{DSN: filepath.Join(t.TempDir(), "jobseed.db")})
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	require.NoError(t, storage.EnsureSchema(ctx, repo))
	return repo
}

var companySpec = storage.InsertSpec{
	Table: "companies", Key: "id", Columns: []string{"id", "name"},
	Policy: storage.PolicyUpdate, TouchColumn: "updated_at",
}

func TestNewRepository_EmptyDSN(t *testing.T) {
	t.Parallel()

	_, err := NewRepository(context.Background(), Config{})
	require.ErrorContains(t, err, "DSN must not be empty")
}

func TestRegisteredKind(t *testing.T) {
	t.Parallel()

	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "k.db")})
	require.NoError(t, err)
	defer repo.Close()
	require.Equal(t, "sqlite", repo.Kind())
}

func TestInsert_ExampleScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTest(t)

	next, err := repo.ResetSequence(ctx, "companies", "id")
	require.NoError(t, err)
	require.Equal(t, int64(1), next)

	n, err := repo.Insert(ctx, companySpec, [][]any{{int64(1), "Acme"}, {int64(2), "Beta"}, {int64(3), "Gamma"}})
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	count, err := repo.Count(ctx, "companies")
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	next, err = repo.ResetSequence(ctx, "companies", "id")
	require.NoError(t, err)
	require.Equal(t, int64(4), next)

	keys, err := repo.Keys(ctx, "companies", "id")
	require.NoError(t, err)
	require.Equal(t, map[int64]struct{}{1: {}, 2: {}, 3: {}}, keys)
}

func TestInsert_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTest(t)

	rows := [][]any{{int64(1), "Acme"}, {int64(2), "Beta"}}
	for i := 0; i < 2; i++ {
		_, err := repo.Insert(ctx, companySpec, rows)
		require.NoError(t, err)
	}
	count, err := repo.Count(ctx, "companies")
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestInsert_UpdateOverwritesNonKeyColumns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTest(t)

	_, err := repo.Insert(ctx, companySpec, [][]any{{int64(1), "Acme"}})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, companySpec, [][]any{{int64(1), "Acme Corp"}})
	require.NoError(t, err)

	rows, err := repo.Sample(ctx, "companies", "id", []string{"id", "name"}, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Acme Corp", rows[0]["name"])
}

func TestInsert_SkipPolicyKeepsExisting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTest(t)

	_, err := repo.Insert(ctx, companySpec, [][]any{{int64(1), "Acme"}})
	require.NoError(t, err)

	skip := companySpec
	skip.Policy = storage.PolicySkip
	n, err := repo.Insert(ctx, skip, [][]any{{int64(1), "Changed"}, {int64(2), "New"}})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	rows, err := repo.Sample(ctx, "companies", "id", []string{"name"}, 5)
	require.NoError(t, err)
	require.Equal(t, "Acme", rows[0]["name"])
	require.Equal(t, "New", rows[1]["name"])
}

func TestInsert_OmittedColumnsTakeTableDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTest(t)

	_, err := repo.Insert(ctx, companySpec, [][]any{{int64(7), "Acme"}})
	require.NoError(t, err)

	rows, err := repo.Sample(ctx, "companies", "id", []string{"status", "followers", "website"}, 1)
	require.NoError(t, err)
	require.Equal(t, "pending", rows[0]["status"])
	require.EqualValues(t, 0, rows[0]["followers"])
	require.Nil(t, rows[0]["website"])
}

func TestInsert_ListsStoredAsJSON(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTest(t)

	_, err := repo.Insert(ctx, companySpec, [][]any{{int64(1), "Acme"}})
	require.NoError(t, err)

	spec := storage.InsertSpec{Table: "jobs", Key: "id", Columns: []string{"id", "company_id", "title", "skills", "is_active"}, Policy: storage.PolicyUpdate}
	_, err = repo.Insert(ctx, spec, [][]any{{int64(10), int64(1), "Engineer", []string{"go", "sql"}, true}})
	require.NoError(t, err)

	rows, err := repo.Sample(ctx, "jobs", "id", []string{"skills", "experience_level", "employment_type"}, 1)
	require.NoError(t, err)
	require.Equal(t, `["go","sql"]`, rows[0]["skills"])
	require.Equal(t, "mid", rows[0]["experience_level"])
	require.Equal(t, "full-time", rows[0]["employment_type"])
}

func TestInsert_ForeignKeyViolationFailsWholeStatement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTest(t)

	_, err := repo.Insert(ctx, companySpec, [][]any{{int64(1), "Acme"}})
	require.NoError(t, err)

	spec := storage.InsertSpec{Table: "vendors", Key: "id", Columns: []string{"id", "company_id", "name"}, Policy: storage.PolicyUpdate}
	_, err = repo.Insert(ctx, spec, [][]any{{int64(1), int64(1), "ok"}, {int64(2), int64(99), "dangling"}})

	var se *storage.Error
	require.ErrorAs(t, err, &se)
	require.NotEmpty(t, se.Code)
	require.Equal(t, "insert vendors", se.Op)

	count, err := repo.Count(ctx, "vendors")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestCountOrphans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTest(t)

	_, err := repo.Insert(ctx, companySpec, [][]any{{int64(1), "Acme"}})
	require.NoError(t, err)
	require.NoError(t, repo.Exec(ctx, "PRAGMA foreign_keys = OFF"))

	spec := storage.InsertSpec{Table: "jobs", Key: "id", Columns: []string{"id", "company_id", "title"}, Policy: storage.PolicyUpdate}
	_, err = repo.Insert(ctx, spec, [][]any{{int64(1), int64(1), "a"}, {int64(2), int64(5), "b"}, {int64(3), int64(6), "c"}})
	require.NoError(t, err)

	n, err := repo.CountOrphans(ctx, storage.OrphanQuery{Child: "jobs", Column: "company_id", Parent: "companies", ParentKey: "id"})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = repo.CountOrphans(ctx, storage.OrphanQuery{Child: "jobs", Column: "category_id", Parent: "categories", ParentKey: "id"})
	require.NoError(t, err)
	require.Zero(t, n, "NULL references are not orphans")
}

func TestTruncate_CascadesToDependents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTest(t)

	_, err := repo.Insert(ctx, companySpec, [][]any{{int64(1), "Acme"}})
	require.NoError(t, err)
	spec := storage.InsertSpec{Table: "jobs", Key: "id", Columns: []string{"id", "company_id", "title"}, Policy: storage.PolicyUpdate}
	_, err = repo.Insert(ctx, spec, [][]any{{int64(1), int64(1), "a"}})
	require.NoError(t, err)
	require.NoError(t, repo.Exec(ctx, `INSERT INTO "job_applications" ("id", "job_id") VALUES (1, 1)`))

	require.NoError(t, repo.Truncate(ctx, "companies"))
	for _, table := range []string{"companies", "jobs", "job_applications"} {
		n, err := repo.Count(ctx, table)
		require.NoError(t, err)
		require.Zero(t, n, table)
	}
}

func TestDeleteKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTest(t)

	spec := storage.InsertSpec{Table: "categories", Key: "id", Columns: []string{"id", "name"}, Policy: storage.PolicyUpdate}
	_, err := repo.Insert(ctx, spec, [][]any{{int64(1), "Eng"}, {int64(2), "Ops"}, {int64(3), "Art"}})
	require.NoError(t, err)

	n, err := repo.DeleteKeys(ctx, "categories", "id", []int64{1, 3, 9})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	keys, err := repo.Keys(ctx, "categories", "id")
	require.NoError(t, err)
	require.Equal(t, map[int64]struct{}{2: {}}, keys)

	n, err = repo.DeleteKeys(ctx, "categories", "id", nil)
	require.NoError(t, err)
	require.Zero(t, n)
}
