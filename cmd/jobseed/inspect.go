package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobseed/internal/config"
	"jobseed/internal/inspect"
)

func inspectCmd(g *globals) *cobra.Command {
	var (
		entityName string
		parserKind string
		comma      string
		maxBytes   int
		jsonOut    bool
		suggest    bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <file-or-url>",
		Short: "Pre-flight a source file without touching the database",
		Long: `Report encoding, header, row and malformed-row counts and per-column fill
rates. The header is matched against an entity (--entity, or the best
guess) to show which columns would be written and which required ones
are missing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, g, false)
			if err != nil {
				return err
			}
			defer a.close()

			p := config.Parser{Kind: parserKind, Options: config.Options{}}
			if comma != "" {
				p.Options["comma"] = comma
			}
			r, err := inspect.Inspect(cmd.Context(), inspect.Options{
				Location: args[0],
				Parser:   p,
				Entity:   entityName,
				MaxBytes: maxBytes,
				HTTP:     a.http,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case suggest:
				if r.Entity == "" {
					return fmt.Errorf("inspect: header of %s matches no entity; pass --entity", args[0])
				}
				return writeJSON(out, inspect.Suggest(r))
			case jsonOut:
				return r.WriteJSON(out)
			default:
				return r.WriteText(out)
			}
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&entityName, "entity", "", "entity to check the header against (default: guessed)")
	fl.StringVar(&parserKind, "parser", "", "csv or xlsx (default: from the extension)")
	fl.StringVar(&comma, "comma", "", "csv field delimiter")
	fl.IntVar(&maxBytes, "max-bytes", 0, "sample only the first N bytes")
	fl.BoolVar(&jsonOut, "json", false, "print the report as JSON")
	fl.BoolVar(&suggest, "suggest", false, "print a starter pipeline config instead of the report")
	return cmd
}

func validateCmd(g *globals) *cobra.Command {
	var paths []string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Lint pipeline config files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, g, false)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			invalid := 0
			for _, path := range paths {
				p, err := config.Load(path)
				if err != nil {
					fmt.Fprintf(out, "%s: error: %v\n", path, err)
					invalid++
					continue
				}
				issues := config.ValidatePipeline(p)
				for _, iss := range issues {
					fmt.Fprintf(out, "%s: %s\n", path, iss.Error())
				}
				if config.HasErrors(issues) {
					invalid++
					continue
				}
				fmt.Fprintf(out, "%s: ok\n", path)
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d pipeline configs are invalid", invalid, len(paths))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&paths, "config", nil, "pipeline config JSON path (repeatable)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
