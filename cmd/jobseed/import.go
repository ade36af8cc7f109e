package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"jobseed/internal/config"
	"jobseed/internal/pipeline"
)

type importFlags struct {
	file        string
	config      string
	policy      string
	batchSize   int
	mode        string
	resume      string
	maxErrors   int
	placeholder bool
	relaxFKs    bool
	progress    bool
	dryRun      bool
	jsonOut     bool
}

func importCmd(g *globals) *cobra.Command {
	var f importFlags
	cmd := &cobra.Command{
		Use:   "import <entity>",
		Short: "Import one entity from a file or URL",
		Long: `Import one entity (categories, companies, jobs or vendors).

The source and options come from --config when given, else from defaults
for the entity; flags override either. The header is validated before the
database is opened, so an unreadable file never causes a mutation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.pipeline(cmd, args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd, g, !f.dryRun)
			if err != nil {
				return err
			}
			defer a.close()

			open := a.opener()
			if f.dryRun {
				if open, err = a.dryRunOpener(); err != nil {
					return err
				}
			}
			d, err := a.deps(cmd.Context(), f.progress, cfg)
			if err != nil {
				return err
			}
			res, err := pipeline.Run(cmd.Context(), cfg, d, open)
			if f.jsonOut {
				if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil && err == nil {
					err = werr
				}
			}
			return err
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.file, "file", "", "source path or http(s) URL")
	fl.StringVar(&f.config, "config", "", "pipeline config JSON path")
	fl.StringVar(&f.policy, "policy", "", "conflict policy: update or skip")
	fl.IntVar(&f.batchSize, "batch-size", 0, "rows per insert statement")
	fl.StringVar(&f.mode, "mode", "", "read mode: read_all or stream")
	fl.StringVar(&f.resume, "resume", "", "resume mode: none, max_id or checkpoint")
	fl.IntVar(&f.maxErrors, "max-errors", 0, "abort once row errors exceed this")
	fl.BoolVar(&f.placeholder, "placeholder-parents", false, "insert placeholder companies for missing parents")
	fl.BoolVar(&f.relaxFKs, "relax-fks", false, "drop the table's foreign keys for the load (postgres only)")
	fl.BoolVar(&f.progress, "progress", false, "show a byte progress bar while reading")
	fl.BoolVar(&f.dryRun, "dry-run", false, "load into a scratch sqlite database instead of DATABASE_URL")
	fl.BoolVar(&f.jsonOut, "json", false, "print the run result as JSON on stdout")
	return cmd
}

// pipeline resolves the run config: file or defaults, then flags.
func (f importFlags) pipeline(cmd *cobra.Command, entityName string) (config.Pipeline, error) {
	var cfg config.Pipeline
	if f.config != "" {
		loaded, err := config.Load(f.config)
		if err != nil {
			return cfg, err
		}
		if loaded.Entity != entityName {
			return cfg, fmt.Errorf("%s configures %q, not %q", f.config, loaded.Entity, entityName)
		}
		cfg = loaded
	} else {
		if f.file == "" {
			return cfg, fmt.Errorf("import %s: --file or --config is required", entityName)
		}
		cfg = config.Default(entityName, f.file)
	}

	changed := cmd.Flags().Changed
	if f.file != "" {
		setSource(&cfg, f.file)
	}
	if changed("policy") {
		cfg.Storage.Policy = f.policy
	}
	if changed("batch-size") {
		cfg.Runtime.BatchSize = f.batchSize
	}
	if changed("mode") {
		cfg.Source.Mode = f.mode
	}
	if changed("resume") {
		cfg.Runtime.Resume = f.resume
	}
	if changed("max-errors") {
		cfg.Runtime.MaxErrors = f.maxErrors
	}
	if changed("placeholder-parents") {
		cfg.Storage.PlaceholderParents = f.placeholder
	}
	if changed("relax-fks") {
		cfg.Storage.RelaxForeignKeys = f.relaxFKs
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// setSource points cfg at loc, picking the source and parser kind.
func setSource(cfg *config.Pipeline, loc string) {
	lower := strings.ToLower(loc)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		cfg.Source.Kind = "http"
		cfg.Source.URL = loc
		cfg.Source.File.Path = ""
	} else {
		cfg.Source.Kind = "file"
		cfg.Source.File.Path = loc
		cfg.Source.URL = ""
	}
	if strings.HasSuffix(lower, ".xlsx") {
		cfg.Parser.Kind = "xlsx"
	}
}

func importAllCmd(g *globals) *cobra.Command {
	var (
		dir      string
		progress bool
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "import-all",
		Short: "Import every entity with a pipeline file, parents first",
		Long: `Import categories, companies, jobs and vendors in dependency order from
<config-dir>/<entity>.json. Every header is validated before the database
is opened; the run stops at the first failed entity.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, g, true)
			if err != nil {
				return err
			}
			defer a.close()

			cfgs, err := loadPipelines(dir, a.log)
			if err != nil {
				return err
			}
			d, err := a.deps(cmd.Context(), progress, cfgs...)
			if err != nil {
				return err
			}
			results, err := pipeline.RunAll(cmd.Context(), cfgs, d, a.opener())
			if jsonOut {
				if werr := writeJSON(cmd.OutOrStdout(), results); werr != nil && err == nil {
					err = werr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "config-dir", "configs/pipelines", "directory of <entity>.json pipeline files")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a byte progress bar while reading")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the run results as JSON on stdout")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
