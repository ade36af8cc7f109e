package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"jobseed/internal/config"
	"jobseed/internal/entity"
	"jobseed/internal/pipeline"
	"jobseed/internal/webui"
)

func serveCmd(g *globals) *cobra.Command {
	var (
		addr      string
		dir       string
		uploadDir string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admin HTTP endpoint",
		Long: `Start the admin HTTP endpoint:

  POST /api/imports/:entity   multipart "file" upload, runs an import
  GET  /api/imports           recent run results, newest first
  GET  /healthz               liveness

Uploads use <config-dir>/<entity>.json as the base pipeline when present.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, g, true)
			if err != nil {
				return err
			}
			defer a.close()

			if addr == "" {
				addr = a.env.HTTPAddr
			}
			bases := map[string]config.Pipeline{}
			for _, e := range entity.Ordered() {
				path := filepath.Join(dir, e.Name+".json")
				p, err := config.Load(path)
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				if err != nil {
					return err
				}
				bases[e.Name] = p
			}

			s := webui.NewServer(webui.Config{
				Addr:      addr,
				UploadDir: uploadDir,
				Pipelines: bases,
				Log:       a.log,
				Run: func(ctx context.Context, cfg config.Pipeline) (pipeline.Result, error) {
					d, err := a.deps(ctx, false, cfg)
					if err != nil {
						return pipeline.Result{}, err
					}
					return pipeline.Run(ctx, cfg, d, a.opener())
				},
			})

			errc := make(chan error, 1)
			go func() { errc <- s.Start() }()
			select {
			case err := <-errc:
				return err
			case <-cmd.Context().Done():
			}

			a.log.Info().Msg("webui: shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return s.Shutdown(ctx)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&addr, "addr", "", "listen address (default: HTTP_ADDR)")
	fl.StringVar(&dir, "config-dir", "configs/pipelines", "directory of <entity>.json base pipelines")
	fl.StringVar(&uploadDir, "upload-dir", filepath.Join(os.TempDir(), "jobseed-uploads"), "where uploads are stored during a run")
	return cmd
}
