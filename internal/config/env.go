package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env is the process configuration read once at startup. Credentials
// live here and never in pipeline files.
type Env struct {
	// DatabaseURL is the connection string for STORAGE_KIND.
	// Required by every command that touches the database.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// StorageKind selects the backend: postgres, sqlite or mssql.
	StorageKind string `envconfig:"STORAGE_KIND" default:"postgres"`

	// DBMaxConns sizes the pgx pool. Effective write concurrency stays 1.
	DBMaxConns int32 `envconfig:"DB_MAX_CONNS" default:"4"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`

	// SkippedDir receives reject side files.
	SkippedDir string `envconfig:"SKIPPED_DIR" default:"skipped"`

	// CheckpointDir holds file checkpoints when REDIS_URL is unset.
	CheckpointDir string `envconfig:"CHECKPOINT_DIR" default:".checkpoints"`
	RedisURL      string `envconfig:"REDIS_URL"`

	// PhoneDefaultRegion is the ISO region for numbers without a country code.
	PhoneDefaultRegion string `envconfig:"PHONE_DEFAULT_REGION" default:"US"`

	MetricsBackend string `envconfig:"METRICS_BACKEND" default:"none"`
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL"`
	DogstatsdAddr  string `envconfig:"DOGSTATSD_ADDR" default:"127.0.0.1:8125"`

	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
}

// LoadDotEnv loads path (".env" when empty) into the process
// environment. A missing file is not an error; variables already set
// win over the file.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// LoadEnv loads an optional dotenv file, then the environment.
func LoadEnv(dotenv string) (Env, error) {
	if err := LoadDotEnv(dotenv); err != nil {
		return Env{}, fmt.Errorf("load %s: %w", dotenv, err)
	}
	var e Env
	if err := envconfig.Process("", &e); err != nil {
		return Env{}, fmt.Errorf("read environment: %w", err)
	}
	return e, nil
}

// Validate checks the settings a command needs. needDB is false for
// commands that never open the database (inspect, validate, generate).
func (e Env) Validate(needDB bool) error {
	var errs []error
	if needDB && strings.TrimSpace(e.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	switch e.StorageKind {
	case "postgres", "sqlite", "mssql":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_KIND %q: want postgres, sqlite or mssql", e.StorageKind))
	}
	if e.DBMaxConns < 1 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS must be >= 1, got %d", e.DBMaxConns))
	}
	switch e.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q: want console or json", e.LogFormat))
	}
	switch e.MetricsBackend {
	case "none", "":
	case "pushgateway":
		if e.PushgatewayURL == "" {
			errs = append(errs, errors.New("PUSHGATEWAY_URL is required when METRICS_BACKEND=pushgateway"))
		}
	case "datadog":
		if e.DogstatsdAddr == "" {
			errs = append(errs, errors.New("DOGSTATSD_ADDR is required when METRICS_BACKEND=datadog"))
		}
	default:
		errs = append(errs, fmt.Errorf("METRICS_BACKEND %q: want none, pushgateway or datadog", e.MetricsBackend))
	}
	return errors.Join(errs...)
}
