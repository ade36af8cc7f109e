package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobseed/internal/checkpoint"
	"jobseed/internal/config"
	"jobseed/internal/datasource"
	"jobseed/internal/report"
	"jobseed/internal/storage"
	"jobseed/internal/storage/sqlite"
)

func openRepo(t *testing.T) *sqlite.Repository {
	t.Helper()

	ctx := context.Background()
	repo, err := sqlite.NewRepository(ctx, sqlite.Config{DSN: filepath.Join(t.TempDir(), "pipeline.db")})
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	require.NoError(t, storage.EnsureSchema(ctx, repo))
	return repo
}

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testDeps(t *testing.T) Deps {
	return Deps{Log: zerolog.Nop(), PhoneRegion: "US", RejectDir: filepath.Join(t.TempDir(), "skipped")}
}

func execute(t *testing.T, repo storage.Repository, cfg config.Pipeline, d Deps) (Result, error) {
	t.Helper()
	job, err := Prepare(context.Background(), cfg, d)
	require.NoError(t, err)
	return job.Execute(context.Background(), repo)
}

func seedCompanies(t *testing.T, repo storage.Repository, ids ...int64) {
	t.Helper()
	rows := make([][]any, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []any{id, fmt.Sprintf("Seed %d", id)})
	}
	_, err := repo.Insert(context.Background(), storage.InsertSpec{
		Table: "companies", Key: "id", Columns: []string{"id", "name"}, Policy: storage.PolicyUpdate,
	}, rows)
	require.NoError(t, err)
}

func count(t *testing.T, repo storage.Repository, table string) int64 {
	t.Helper()
	n, err := repo.Count(context.Background(), table)
	require.NoError(t, err)
	return n
}

func readRejects(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows[1:]
}

func TestRun_ExampleScenario(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)

	cfg := config.Default("companies", writeCSV(t, "id,name\n1,Acme\n2,Beta\n,Gamma\n"))
	cfg.Storage.Policy = config.PolicySkip
	cfg.Runtime.BatchSize = 2
	res, err := execute(t, repo, cfg, testDeps(t))
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, int64(3), s.SourceRecords)
	assert.Equal(t, int64(3), s.Imported)
	assert.Equal(t, int64(3), s.Affected)
	assert.Zero(t, s.Skipped())
	assert.Zero(t, s.Errors)
	assert.Equal(t, int64(2), s.Batches)
	assert.Empty(t, s.RejectFile)
	assert.InDelta(t, 100.0, s.SuccessRate(), 0.001)

	require.NotNil(t, res.Reconcile)
	assert.Equal(t, int64(3), res.Reconcile.Rows)
	assert.Equal(t, int64(4), res.Reconcile.NextID)

	rows, err := repo.Sample(context.Background(), "companies", "id", []string{"id", "name", "status"}, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, name := range []string{"Acme", "Beta", "Gamma"} {
		assert.EqualValues(t, i+1, rows[i]["id"])
		assert.Equal(t, name, rows[i]["name"])
		assert.Equal(t, "pending", rows[i]["status"])
	}
}

func TestRun_Idempotent(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)

	path := writeCSV(t, "id,name,website\n1,Acme,acme.com\n2,Beta,https://beta.io\n")
	for i := 0; i < 2; i++ {
		res, err := execute(t, repo, config.Default("companies", path), testDeps(t))
		require.NoError(t, err)
		require.Equal(t, int64(2), res.Summary.Imported)
	}

	assert.Equal(t, int64(2), count(t, repo, "companies"))
	rows, err := repo.Sample(context.Background(), "companies", "id", []string{"id", "website"}, 2)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.com", rows[0]["website"])
}

func TestRun_SkipPolicyRerunReportsAffected(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)

	cfg := config.Default("vendors", writeCSV(t, "id,company_id,name\n1,1,Supplies\n2,1,Catering\n"))
	cfg.Storage.Policy = config.PolicySkip
	seedCompanies(t, repo, 1)

	first, err := execute(t, repo, cfg, testDeps(t))
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Summary.Affected)

	second, err := execute(t, repo, cfg, testDeps(t))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Summary.Imported)
	assert.Zero(t, second.Summary.Affected)
	assert.Equal(t, int64(2), count(t, repo, "vendors"))
}

func TestRun_UpdatePolicyOverwrites(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)
	seedCompanies(t, repo, 1)

	path := writeCSV(t, "id,name\n1,Acme Renamed\n")
	_, err := execute(t, repo, config.Default("companies", path), testDeps(t))
	require.NoError(t, err)

	rows, err := repo.Sample(context.Background(), "companies", "id", []string{"name"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Acme Renamed", rows[0]["name"])
}

func TestRun_SkipPolicyKeepsExisting(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)
	seedCompanies(t, repo, 1)

	cfg := config.Default("companies", writeCSV(t, "id,name\n1,Ignored\n2,New\n"))
	cfg.Storage.Policy = config.PolicySkip
	_, err := execute(t, repo, cfg, testDeps(t))
	require.NoError(t, err)

	rows, err := repo.Sample(context.Background(), "companies", "id", []string{"name"}, 2)
	require.NoError(t, err)
	assert.Equal(t, "Seed 1", rows[0]["name"])
	assert.Equal(t, "New", rows[1]["name"])
}

func TestRun_ReferentialFilter(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)
	seedCompanies(t, repo, 1, 2)

	path := writeCSV(t, "id,company_id,title\n10,1,Engineer\n11,99,Designer\n12,2,Analyst\n")
	res, err := execute(t, repo, config.Default("jobs", path), testDeps(t))
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, int64(2), s.Imported)
	assert.Equal(t, int64(1), s.SkippedReferential)
	assert.Equal(t, int64(2), count(t, repo, "jobs"))
	assert.Equal(t, int64(1), res.Reconcile.ReferentialSkipped)
	assert.Zero(t, res.Reconcile.Orphans[0].Count)

	require.NotEmpty(t, s.RejectFile)
	rej := readRejects(t, s.RejectFile)
	require.Len(t, rej, 1)
	assert.Equal(t, []string{"missing_parent", "3", "11", "company_id 99 not found", "11,99,Designer"}, rej[0])
}

func TestRun_PlaceholderParents(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)
	seedCompanies(t, repo, 1)

	cfg := config.Default("jobs", writeCSV(t, "id,company_id,title\n10,1,Engineer\n11,99,Designer\n12,99,Writer\n"))
	cfg.Storage.PlaceholderParents = true
	res, err := execute(t, repo, cfg, testDeps(t))
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.Summary.Imported)
	assert.Equal(t, int64(1), res.Summary.Placeholders)
	assert.Zero(t, res.Summary.SkippedReferential)

	rows, err := repo.Sample(context.Background(), "companies", "id", []string{"id", "name", "status"}, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Company 99", rows[1]["name"])
	assert.Equal(t, "pending", rows[1]["status"])
}

func TestRun_MissingCategoryIsNulled(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)
	seedCompanies(t, repo, 1)

	path := writeCSV(t, "id,company_id,category_id,title\n10,1,77,Engineer\n")
	res, err := execute(t, repo, config.Default("jobs", path), testDeps(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Summary.Imported)

	rows, err := repo.Sample(context.Background(), "jobs", "id", []string{"category_id"}, 1)
	require.NoError(t, err)
	assert.Nil(t, rows[0]["category_id"])
}

func TestRun_DefaultSubstitution(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)
	seedCompanies(t, repo, 1)

	body := "id,company_id,title,experience_level,is_active,skills,salary_min,salary_max\n" +
		"5,1,Engineer,3,TRUE,go;sql,100,200\n" +
		"abc,1,Designer,wizard,no,,,\n" +
		",1,Writer,,1,,50,\n" +
		"7,1,,2,,,,\n"
	res, err := execute(t, repo, config.Default("jobs", writeCSV(t, body)), testDeps(t))
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, int64(3), s.Imported)
	assert.Equal(t, int64(1), s.SkippedValidation)

	rows, err := repo.Sample(context.Background(), "jobs", "id",
		[]string{"id", "experience_level", "employment_type", "is_active", "skills", "salary"}, 5)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.EqualValues(t, 5, rows[0]["id"])
	assert.Equal(t, "senior", rows[0]["experience_level"])
	assert.Equal(t, "100 - 200", rows[0]["salary"])
	assert.Equal(t, `["go","sql"]`, rows[0]["skills"])

	// read_all reserves every source id up front, including 7 from the
	// invalid row.
	assert.EqualValues(t, 8, rows[1]["id"])
	assert.Equal(t, "mid", rows[1]["experience_level"])
	assert.Equal(t, "full-time", rows[1]["employment_type"])

	assert.EqualValues(t, 9, rows[2]["id"])
	assert.Equal(t, "50+", rows[2]["salary"])
}

func TestRun_ReadAllReservesLaterIDs(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)

	path := writeCSV(t, "id,name\n,First\n1,Second\n")
	_, err := execute(t, repo, config.Default("companies", path), testDeps(t))
	require.NoError(t, err)

	rows, err := repo.Sample(context.Background(), "companies", "id", []string{"id", "name"}, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows[0]["id"])
	assert.Equal(t, "Second", rows[0]["name"])
	assert.EqualValues(t, 2, rows[1]["id"])
}

func TestRun_StreamModeCountsMalformed(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)

	cfg := config.Default("companies", writeCSV(t, "id,name\n1,Acme\n2,Beta,extra\n3,Gamma\n"))
	cfg.Source.Mode = "stream"
	res, err := execute(t, repo, cfg, testDeps(t))
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, int64(3), s.SourceRecords)
	assert.Equal(t, int64(2), s.Imported)
	assert.Equal(t, int64(1), s.Malformed)

	rej := readRejects(t, s.RejectFile)
	require.Len(t, rej, 1)
	assert.Equal(t, "malformed", rej[0][0])
	assert.Equal(t, "3", rej[0][1])
}

func TestRun_BatchesAndProgress(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)

	var b strings.Builder
	b.WriteString("id,name\n")
	for i := 1; i <= 25; i++ {
		fmt.Fprintf(&b, "%d,Company %d\n", i, i)
	}
	cfg := config.Default("companies", writeCSV(t, b.String()))
	cfg.Runtime.BatchSize = 10
	cfg.Runtime.MaxBatchesPerSecond = 1000
	res, err := execute(t, repo, cfg, testDeps(t))
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.Summary.Batches)
	assert.Equal(t, int64(25), count(t, repo, "companies"))
	assert.Equal(t, int64(26), res.Reconcile.NextID)
}

func TestRun_WholesaleCategories(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)
	_, err := repo.Insert(context.Background(), storage.InsertSpec{
		Table: "categories", Key: "id", Columns: []string{"id", "name"}, Policy: storage.PolicyUpdate,
	}, [][]any{{int64(9), "Stale"}})
	require.NoError(t, err)

	res, err := execute(t, repo, config.Default("categories", writeCSV(t, "id,name,description\n1,Engineering,Builds\n2,Sales,\n")), testDeps(t))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Summary.Imported)

	keys, err := repo.Keys(context.Background(), "categories", "id")
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{1: {}, 2: {}}, keys)
}

func TestRun_WholesaleReloadKeepsJobLinks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openRepo(t)
	seedCompanies(t, repo, 1)

	_, err := execute(t, repo, config.Default("categories", writeCSV(t, "id,name\n5,Engineering\n9,Clerical\n")), testDeps(t))
	require.NoError(t, err)
	_, err = execute(t, repo, config.Default("jobs", writeCSV(t, "id,company_id,category_id,title\n1,1,5,Engineer\n2,1,9,Clerk\n")), testDeps(t))
	require.NoError(t, err)

	cfg := config.Default("categories", writeCSV(t, "id,name\n5,Software Engineering\n"))
	cfg.Storage.Policy = config.PolicySkip
	res, err := execute(t, repo, cfg, testDeps(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Summary.Imported)

	cats, err := repo.Sample(ctx, "categories", "id", []string{"id", "name"}, 10)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.EqualValues(t, 5, cats[0]["id"])
	assert.Equal(t, "Software Engineering", cats[0]["name"])

	jobs, err := repo.Sample(ctx, "jobs", "id", []string{"id", "category_id"}, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.EqualValues(t, 5, jobs[0]["category_id"])
	assert.Nil(t, jobs[1]["category_id"])
}

func TestRun_StreamReservesSourceIDs(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)

	cfg := config.Default("companies", writeCSV(t, "id,name\n1,Acme\n,Gamma\n2,Beta\n"))
	cfg.Source.Mode = string(datasource.ModeStream)
	cfg.Storage.Policy = config.PolicySkip
	res, err := execute(t, repo, cfg, testDeps(t))
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Summary.Imported)
	assert.Equal(t, int64(3), res.Summary.Affected)

	rows, err := repo.Sample(context.Background(), "companies", "id", []string{"id", "name"}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, name := range []string{"Acme", "Beta", "Gamma"} {
		assert.EqualValues(t, i+1, rows[i]["id"])
		assert.Equal(t, name, rows[i]["name"])
	}
}

func TestRun_StreamCheckpointStopsBeforeHeldRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := &failingRepo{Repository: openRepo(t), bad: map[int64]bool{2: true, 3: true}}

	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	d := testDeps(t)
	d.Checkpoints = store

	path := writeCSV(t, "id,name\n1,A\n,B\n2,C\n3,D\n")
	f, err := os.Open(path)
	require.NoError(t, err)
	fp, err := checkpoint.Fingerprint(f)
	f.Close()
	require.NoError(t, err)

	cfg := config.Default("companies", path)
	cfg.Source.Mode = string(datasource.ModeStream)
	cfg.Runtime.Resume = config.ResumeCheckpoint
	cfg.Runtime.BatchSize = 1
	cfg.Runtime.MaxErrors = 1
	_, err = execute(t, repo, cfg, d)
	require.ErrorIs(t, err, report.ErrTooManyErrors)

	st, ok, err := store.Load(ctx, checkpoint.Key("companies", fp))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, st.Line, "line 3 was held back and never written")
}

// failingRepo rejects every insert that contains one of the bad ids,
// the way a database rejects a whole statement for one bad row.
type failingRepo struct {
	storage.Repository
	bad     map[int64]bool
	inserts atomic.Int64
}

func (r *failingRepo) Insert(ctx context.Context, spec storage.InsertSpec, rows [][]any) (int64, error) {
	r.inserts.Add(1)
	for _, row := range rows {
		if id, _ := row[0].(int64); r.bad[id] {
			return 0, &storage.Error{Op: "insert " + spec.Table, Code: "23514", Detail: fmt.Sprintf("row %d rejected", id), Err: errors.New("check violation")}
		}
	}
	return r.Repository.Insert(ctx, spec, rows)
}

func TestRun_BatchFailureIsolation(t *testing.T) {
	t.Parallel()
	repo := &failingRepo{Repository: openRepo(t), bad: map[int64]bool{42: true}}

	var b strings.Builder
	b.WriteString("id,name\n")
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&b, "%d,Company %d\n", i, i)
	}
	cfg := config.Default("companies", writeCSV(t, b.String()))
	cfg.Runtime.BatchSize = 100
	res, err := execute(t, repo, cfg, testDeps(t))
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, int64(99), s.Imported)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(1), s.Fallbacks)
	assert.Equal(t, int64(99), count(t, repo, "companies"))
	assert.Equal(t, int64(1+100), repo.inserts.Load())

	rej := readRejects(t, s.RejectFile)
	require.Len(t, rej, 1)
	assert.Equal(t, "insert_failed", rej[0][0])
	assert.Equal(t, "42", rej[0][2])
	assert.Contains(t, rej[0][3], "(23514)")
}

func TestRun_CircuitBreaker(t *testing.T) {
	t.Parallel()
	bad := map[int64]bool{}
	for i := int64(1); i <= 10; i++ {
		bad[i] = true
	}
	repo := &failingRepo{Repository: openRepo(t), bad: bad}

	var b strings.Builder
	b.WriteString("id,name\n")
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "%d,Company %d\n", i, i)
	}
	cfg := config.Default("companies", writeCSV(t, b.String()))
	cfg.Runtime.BatchSize = 5
	cfg.Runtime.MaxErrors = 2
	res, err := execute(t, repo, cfg, testDeps(t))
	require.ErrorIs(t, err, report.ErrTooManyErrors)

	s := res.Summary
	assert.True(t, s.Aborted)
	assert.Equal(t, int64(3), s.Errors)
	assert.Zero(t, s.Imported)
	assert.Nil(t, res.Reconcile)
}

func TestRun_ResumeMaxID(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)
	seedCompanies(t, repo, 1, 2)

	cfg := config.Default("companies", writeCSV(t, "id,name\n1,A\n2,B\n3,C\n,D\n"))
	cfg.Runtime.Resume = config.ResumeMaxID
	res, err := execute(t, repo, cfg, testDeps(t))
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, int64(3), s.Resumed)
	assert.Equal(t, int64(1), s.Imported)

	keys, err := repo.Keys(context.Background(), "companies", "id")
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{1: {}, 2: {}, 3: {}}, keys)
}

func TestRun_ResumeMaxIDRerunKeepsCount(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)

	cfg := config.Default("companies", writeCSV(t, "id,name\n1,A\n,D\n"))
	cfg.Storage.Policy = config.PolicySkip
	cfg.Runtime.Resume = config.ResumeMaxID
	for run := 1; run <= 3; run++ {
		res, err := execute(t, repo, cfg, testDeps(t))
		require.NoError(t, err)
		require.Equal(t, int64(2), count(t, repo, "companies"), "run %d", run)
		if run > 1 {
			assert.Equal(t, int64(2), res.Summary.Resumed, "run %d", run)
			assert.Zero(t, res.Summary.Imported, "run %d", run)
		}
	}
}

func TestRun_ResumeCheckpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openRepo(t)

	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	d := testDeps(t)
	d.Checkpoints = store

	path := writeCSV(t, "id,name\n1,A\n2,B\n3,C\n4,D\n")
	f, err := os.Open(path)
	require.NoError(t, err)
	fp, err := checkpoint.Fingerprint(f)
	f.Close()
	require.NoError(t, err)
	key := checkpoint.Key("companies", fp)
	require.NoError(t, store.Save(ctx, key, checkpoint.State{Line: 3, RunID: "earlier"}))

	cfg := config.Default("companies", path)
	cfg.Runtime.Resume = config.ResumeCheckpoint
	res, err := execute(t, repo, cfg, d)
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Summary.Resumed)
	assert.Equal(t, int64(2), res.Summary.Imported)
	keys, err := repo.Keys(ctx, "companies", "id")
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{3: {}, 4: {}}, keys)

	_, ok, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "checkpoint cleared after a successful run")
}

func TestRun_CheckpointNeedsStore(t *testing.T) {
	t.Parallel()

	cfg := config.Default("companies", writeCSV(t, "id,name\n1,A\n"))
	cfg.Runtime.Resume = config.ResumeCheckpoint
	_, err := Prepare(context.Background(), cfg, testDeps(t))
	require.ErrorContains(t, err, "checkpoint store")
}

func TestRun_UnreadableSourceNeverOpensDatabase(t *testing.T) {
	t.Parallel()

	opened := false
	open := func(context.Context) (storage.Repository, error) {
		opened = true
		return nil, errors.New("unexpected")
	}
	cfg := config.Default("companies", filepath.Join(t.TempDir(), "missing.csv"))
	_, err := Run(context.Background(), cfg, testDeps(t), open)
	require.ErrorIs(t, err, datasource.ErrUnreadableSource)
	assert.False(t, opened)
}

func TestPrepare_InvalidPipeline(t *testing.T) {
	t.Parallel()

	cfg := config.Default("companies", writeCSV(t, "id,name\n"))
	cfg.Runtime.BatchSize = 0
	_, err := Prepare(context.Background(), cfg, testDeps(t))
	require.ErrorIs(t, err, ErrInvalidPipeline)
	require.ErrorContains(t, err, "runtime.batch_size")
}

func TestRun_RelaxForeignKeysUnsupportedOnSQLite(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)
	seedCompanies(t, repo, 1)

	cfg := config.Default("vendors", writeCSV(t, "id,company_id,name\n1,1,Supplies Inc\n"))
	cfg.Storage.RelaxForeignKeys = true
	_, err := execute(t, repo, cfg, testDeps(t))
	require.ErrorIs(t, err, storage.ErrConstraintsUnsupported)
}

func TestRunAll_DependencyOrder(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)

	cfgs := []config.Pipeline{
		config.Default("categories", writeCSV(t, "id,name\n1,Engineering\n")),
		config.Default("companies", writeCSV(t, "id,name\n1,Acme\n")),
		config.Default("jobs", writeCSV(t, "id,company_id,category_id,title\n1,1,1,Engineer\n")),
		config.Default("vendors", writeCSV(t, "id,company_id,name,email\n1,1,Supplies,SALES@Supplies.com\n")),
	}
	open := func(context.Context) (storage.Repository, error) { return noClose{repo}, nil }

	results, err := RunAll(context.Background(), cfgs, testDeps(t), open)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.Equal(t, int64(1), r.Summary.Imported, r.Summary.Job)
	}

	rows, err := repo.Sample(context.Background(), "vendors", "id", []string{"email"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "sales@supplies.com", rows[0]["email"])
}

func TestRunAll_BadHeaderStopsBeforeDatabase(t *testing.T) {
	t.Parallel()

	cfgs := []config.Pipeline{
		config.Default("companies", writeCSV(t, "id,name\n1,Acme\n")),
		config.Default("jobs", writeCSV(t, "")),
	}
	opened := false
	open := func(context.Context) (storage.Repository, error) {
		opened = true
		return nil, errors.New("unexpected")
	}
	_, err := RunAll(context.Background(), cfgs, testDeps(t), open)
	require.Error(t, err)
	assert.False(t, opened)
}

// noClose keeps the shared test repository open after RunAll.
type noClose struct{ storage.Repository }

func (noClose) Close() {}
