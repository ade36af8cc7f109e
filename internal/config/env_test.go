package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"DATABASE_URL", "STORAGE_KIND", "DB_MAX_CONNS", "LOG_LEVEL", "LOG_FORMAT",
	"SKIPPED_DIR", "CHECKPOINT_DIR", "REDIS_URL", "PHONE_DEFAULT_REGION",
	"METRICS_BACKEND", "PUSHGATEWAY_URL", "DOGSTATSD_ADDR", "HTTP_ADDR",
}

// clearEnv blanks every variable Env reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadEnv_Defaults(t *testing.T) {
	clearEnv(t)

	e, err := LoadEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "postgres", e.StorageKind)
	require.Equal(t, int32(4), e.DBMaxConns)
	require.Equal(t, "console", e.LogFormat)
	require.Equal(t, "skipped", e.SkippedDir)
	require.Equal(t, "US", e.PhoneDefaultRegion)
	require.Equal(t, "none", e.MetricsBackend)

	require.NoError(t, e.Validate(false))
	require.ErrorContains(t, e.Validate(true), "DATABASE_URL")
}

func TestLoadEnv_DotEnvDoesNotOverrideProcessEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_MAX_CONNS", "9")

	dot := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dot, []byte("DATABASE_URL=postgres://u@localhost/jobs\nDB_MAX_CONNS=2\n"), 0o600))

	e, err := LoadEnv(dot)
	require.NoError(t, err)
	require.Equal(t, "postgres://u@localhost/jobs", e.DatabaseURL)
	require.Equal(t, int32(9), e.DBMaxConns)
	require.NoError(t, e.Validate(true))
}

func TestEnv_Validate(t *testing.T) {
	t.Parallel()

	e := Env{StorageKind: "oracle", DBMaxConns: 0, LogFormat: "xml", MetricsBackend: "pushgateway"}
	err := e.Validate(false)
	require.Error(t, err)
	for _, want := range []string{"STORAGE_KIND", "DB_MAX_CONNS", "LOG_FORMAT", "PUSHGATEWAY_URL"} {
		require.ErrorContains(t, err, want)
	}
}
