package main

import (
	"errors"

	"github.com/spf13/cobra"

	"jobseed/internal/entity"
	"jobseed/internal/reconcile"
	"jobseed/internal/storage"
)

func reconcileCmd(g *globals) *cobra.Command {
	var (
		sample  int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile <entity>",
		Short: "Reset the id sequence and check row counts and orphans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := entity.Lookup(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd, g, true)
			if err != nil {
				return err
			}
			defer a.close()

			return a.withRepo(cmd.Context(), func(repo storage.Repository) error {
				res, err := reconcile.Run(cmd.Context(), repo, e, a.log, reconcile.Options{Job: "reconcile-" + e.Name, SampleSize: sample})
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&sample, "sample", reconcile.DefaultSampleSize, "rows to log for verification")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON on stdout")
	return cmd
}

func reseedCmd(g *globals) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "reseed",
		Short: "Truncate every reference table and reset sequences",
		Long: `Truncate job_applications, vendors, jobs, companies and categories and
restart their id sequences at 1. Destructive; requires --confirm.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return errors.New("reseed deletes every imported row; rerun with --confirm")
			}
			a, err := newApp(cmd, g, true)
			if err != nil {
				return err
			}
			defer a.close()

			return a.withRepo(cmd.Context(), func(repo storage.Repository) error {
				return reconcile.Reseed(cmd.Context(), repo, a.log)
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "really truncate the tables")
	return cmd
}

func migrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the job-board tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, g, true)
			if err != nil {
				return err
			}
			defer a.close()

			return a.withRepo(cmd.Context(), func(repo storage.Repository) error {
				if err := storage.EnsureSchema(cmd.Context(), repo); err != nil {
					return err
				}
				a.log.Info().Str("kind", repo.Kind()).Msg("migrate: schema ready")
				return nil
			})
		},
	}
}
