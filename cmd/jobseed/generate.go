package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"jobseed/internal/fixtures"
)

func generateCmd(g *globals) *cobra.Command {
	var (
		out string
		opt fixtures.Options
	)
	cmd := &cobra.Command{
		Use:   "generate <entity>",
		Short: "Write a synthetic source file for an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, g, false)
			if err != nil {
				return err
			}
			defer a.close()

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			st, err := fixtures.Generate(w, args[0], opt)
			if err != nil {
				return fmt.Errorf("generate %s: %w", args[0], err)
			}
			a.log.Info().Str("entity", args[0]).Str("out", out).
				Int("rows", st.Rows).Int("dirty", st.Dirty).Msg("generate: done")
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&out, "out", "", "output file (default: stdout)")
	fl.IntVar(&opt.Rows, "rows", 1000, "rows to write")
	fl.Int64Var(&opt.Seed, "seed", 0, "random seed; 0 picks one")
	fl.Int64Var(&opt.StartID, "start-id", 1, "first id")
	fl.IntVar(&opt.Companies, "companies", 0, "company id range referenced by jobs and vendors (default: rows)")
	fl.IntVar(&opt.Categories, "categories", 10, "category id range referenced by jobs")
	fl.Float64Var(&opt.Dirty, "dirty", 0, "fraction of rows given one defect, 0 to 1")
	return cmd
}
