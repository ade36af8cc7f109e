// Command jobseed loads job-board reference data (categories, companies,
// jobs, vendors) from CSV or XLSX files into the database.
//
// Credentials and backends come from the environment (see config.Env);
// per-entity behaviour comes from pipeline files under configs/pipelines.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	// register all backends with the storage factory.
	_ "jobseed/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "jobseed:", err)
		os.Exit(1)
	}
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	envFile string
}

func rootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:   "jobseed",
		Short: "Bulk upsert of job-board reference data",
		Long: `jobseed loads companies, jobs, vendors and categories from flat files.

Environment variables (a .env file is read first when present):
  DATABASE_URL          connection string (required by database commands)
  STORAGE_KIND          postgres, sqlite or mssql (default: postgres)
  DB_MAX_CONNS          pool size (default: 4)
  LOG_LEVEL             debug, info, warn, error (default: info)
  LOG_FORMAT            console or json (default: console)
  SKIPPED_DIR           reject side files (default: skipped)
  CHECKPOINT_DIR        file checkpoints when REDIS_URL is unset
  REDIS_URL             checkpoint store
  PHONE_DEFAULT_REGION  region for numbers without a country code (default: US)
  METRICS_BACKEND       none, pushgateway or datadog (default: none)
  PUSHGATEWAY_URL       Pushgateway base URL
  DOGSTATSD_ADDR        DogStatsD address (default: 127.0.0.1:8125)
  HTTP_ADDR             listen address of serve (default: :8080)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", "", "path to .env file (default: .env in the working directory)")

	cmd.AddCommand(
		importCmd(g),
		importAllCmd(g),
		reconcileCmd(g),
		reseedCmd(g),
		migrateCmd(g),
		inspectCmd(g),
		validateCmd(g),
		generateCmd(g),
		scheduleCmd(g),
		serveCmd(g),
	)
	return cmd
}
