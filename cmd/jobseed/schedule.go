package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"jobseed/internal/pipeline"
	"jobseed/internal/schedule"
)

func scheduleCmd(g *globals) *cobra.Command {
	var (
		dir    string
		every  time.Duration
		cron   string
		runNow bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run import-all periodically until interrupted",
		Long: `Run import-all on a schedule. Pipeline files are re-read on every tick so
edits take effect without a restart. A tick that fires while the previous
import is still running is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, g, true)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := loadPipelines(dir, a.log); err != nil {
				return err
			}
			spec := cron
			if spec == "" {
				if spec, err = schedule.Every(every); err != nil {
					return err
				}
			}

			task := func(ctx context.Context) error {
				cfgs, err := loadPipelines(dir, a.log)
				if err != nil {
					return err
				}
				d, err := a.deps(ctx, false, cfgs...)
				if err != nil {
					return err
				}
				_, err = pipeline.RunAll(ctx, cfgs, d, a.opener())
				return err
			}
			s, err := schedule.New(spec, task, schedule.Options{RunNow: runNow, Log: a.log})
			if err != nil {
				return err
			}
			return s.Run(cmd.Context())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&dir, "config-dir", "configs/pipelines", "directory of <entity>.json pipeline files")
	fl.DurationVar(&every, "every", 24*time.Hour, "interval between runs")
	fl.StringVar(&cron, "cron", "", "cron spec, overrides --every (e.g. \"0 3 * * *\")")
	fl.BoolVar(&runNow, "run-now", false, "run once at startup without waiting for the first tick")
	return cmd
}
