package rejects

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFile_LazyCreate(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "skipped")
	s := NewFile(dir, "companies nightly", "r1")
	require.Equal(t, filepath.Join(dir, "companies_nightly-r1.csv"), s.Path())

	require.NoError(t, s.Close())
	_, err := os.Stat(s.Path())
	require.True(t, os.IsNotExist(err), "no file without rejects")
}

func TestFile_WritesHeaderAndRows(t *testing.T) {
	t.Parallel()

	s := NewFile(t.TempDir(), "jobs", "r2")
	require.NoError(t, s.Add(Reject{Reason: ReasonMissingParent, Line: 4, ID: "7", Detail: "company_id 99 not found", Raw: JoinRaw([]string{"7", "99", "Engineer, Backend"})}))
	require.NoError(t, s.Add(Reject{Reason: ReasonValidation, Line: 5, Detail: "title: required field missing"}))
	require.Equal(t, 2, s.Count())
	require.NoError(t, s.Close())

	f, err := os.Open(s.Path())
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Equal(t, []string{"reason", "line", "id", "detail", "raw"}, rows[0])
	require.Len(t, rows, 3)
	require.Equal(t, "missing_parent", rows[1][0])
	require.Equal(t, "4", rows[1][1])
	require.Equal(t, `7,99,"Engineer, Backend"`, rows[1][4])
	require.Equal(t, "", rows[2][2])
}

func TestJoinRaw(t *testing.T) {
	t.Parallel()
	require.Equal(t, "", JoinRaw(nil))
	require.Equal(t, `a,"b ""c""",d`, JoinRaw([]string{"a", `b "c"`, "d"}))
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	var s Sink = Discard{}
	require.NoError(t, s.Add(Reject{}))
	require.NoError(t, s.Close())
}
