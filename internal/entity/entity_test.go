package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	t.Parallel()

	e, err := Lookup("vendors")
	require.NoError(t, err)
	require.Equal(t, "vendors", e.Table)
	require.Equal(t, "id", e.Key)

	require.Len(t, e.Parents, 1)
	p := e.Parents[0]
	require.Equal(t, "company_id", p.Column)
	require.Equal(t, "companies", p.Parent)
	require.Equal(t, MissingSkip, p.OnMissing)

	_, err = Lookup("applicants")
	require.Error(t, err)
}

func TestOrdered_ParentsFirst(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, e := range Ordered() {
		for _, p := range e.Parents {
			require.True(t, seen[p.Parent], "%s loads before its parent %s", e.Name, p.Parent)
		}
		seen[e.Name] = true
	}
	require.Len(t, seen, len(Names()))
}

func TestEveryEntityHasKeyField(t *testing.T) {
	t.Parallel()

	for _, e := range Ordered() {
		f, ok := e.Field(e.Key)
		require.True(t, ok, e.Name)
		require.Equal(t, KindInt, f.Kind, e.Name)
		require.Equal(t, e.Key, e.Fields[0].Column, e.Name)
	}
}

func TestDeriveSalary(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  map[string]string
		want any
	}{
		{map[string]string{"salary_min": "50000", "salary_max": "80000"}, "50000 - 80000"},
		{map[string]string{"salary_min": "50000"}, "50000+"},
		{map[string]string{"salary_max": "80000"}, "up to 80000"},
		{map[string]string{"salary_min": "NULL", "salary_max": ""}, nil},
	}
	for _, tc := range cases {
		vals := map[string]any{}
		deriveSalary(tc.raw, vals)
		require.Equal(t, tc.want, vals["salary"], "%v", tc.raw)
	}

	vals := map[string]any{"salary": "negotiable"}
	deriveSalary(map[string]string{"salary_min": "1"}, vals)
	require.Equal(t, "negotiable", vals["salary"])
}

func TestCompanyPlaceholder(t *testing.T) {
	t.Parallel()

	e, err := Lookup("companies")
	require.NoError(t, err)
	row := e.Placeholder(42)
	require.Equal(t, "Company 42", row["name"])
	require.Equal(t, int64(42), row["id"])
}

func TestSupportsPlaceholders(t *testing.T) {
	t.Parallel()

	jobs, _ := Lookup("jobs")
	vendors, _ := Lookup("vendors")
	companies, _ := Lookup("companies")
	require.True(t, SupportsPlaceholders(jobs))
	require.False(t, SupportsPlaceholders(vendors))
	require.False(t, SupportsPlaceholders(companies))
}
