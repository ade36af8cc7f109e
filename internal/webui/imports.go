package webui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"jobseed/internal/config"
	"jobseed/internal/datasource"
	"jobseed/internal/entity"
	"jobseed/internal/parser"
	"jobseed/internal/pipeline"
)

// createImport handles POST /api/imports/:entity with a multipart "file"
// field. Query parameters policy and batch_size override the base
// pipeline. The run completes even if the client goes away.
func (s *Server) createImport(c echo.Context) error {
	name := c.Param("entity")
	if _, err := entity.Lookup(name); err != nil {
		return failure(c, http.StatusNotFound, err.Error(), nil)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return failure(c, http.StatusBadRequest, "missing file field", nil)
	}

	if busy, ok := s.acquire(name); !ok {
		return failure(c, http.StatusConflict, fmt.Sprintf("an import of %s is already running", busy), nil)
	}
	run := Entry{Entity: name, File: fh.Filename}
	defer func() {
		run.Finished = time.Now().UTC()
		s.release(run)
	}()

	path, err := s.saveUpload(fh.Filename, func() (io.ReadCloser, error) { return fh.Open() })
	if err != nil {
		run.Error = err.Error()
		return failure(c, http.StatusInternalServerError, "unable to store upload", nil)
	}
	defer os.Remove(path)

	cfg, err := s.pipelineFor(name, path, c.QueryParam("policy"), c.QueryParam("batch_size"))
	if err != nil {
		run.Error = err.Error()
		return failure(c, http.StatusBadRequest, err.Error(), nil)
	}

	ctx := context.WithoutCancel(c.Request().Context())
	res, err := s.cfg.Run(ctx, cfg)
	run.Result = res
	if err != nil {
		run.Error = err.Error()
		status := http.StatusInternalServerError
		if badInput(err) {
			status = http.StatusUnprocessableEntity
		}
		return failure(c, status, err.Error(), res)
	}
	return success(c, http.StatusOK, fmt.Sprintf("%s imported", name), res)
}

func (s *Server) saveUpload(filename string, open func() (io.ReadCloser, error)) (string, error) {
	src, err := open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dir := s.cfg.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".xlsx" {
		ext = ".csv"
	}
	dst, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), dst.Close()
}

func (s *Server) pipelineFor(name, path, policy, batchSize string) (config.Pipeline, error) {
	cfg, ok := s.cfg.Pipelines[name]
	if !ok {
		cfg = config.Default(name, path)
	}
	cfg.Source = config.Source{Kind: "file", File: config.SourceFile{Path: path}, Mode: cfg.Source.Mode}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		cfg.Parser.Kind = "xlsx"
	}
	if policy != "" {
		cfg.Storage.Policy = policy
	}
	if batchSize != "" {
		n, err := strconv.Atoi(batchSize)
		if err != nil {
			return cfg, fmt.Errorf("batch_size: %w", err)
		}
		cfg.Runtime.BatchSize = n
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// badInput reports errors caused by the upload or its parameters rather
// than the database.
func badInput(err error) bool {
	return errors.Is(err, pipeline.ErrInvalidPipeline) ||
		errors.Is(err, datasource.ErrUnreadableSource) ||
		errors.Is(err, parser.ErrMissingHeader)
}
