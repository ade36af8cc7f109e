// Package webui is the admin HTTP endpoint: upload a CSV to run an
// import, list recent run summaries, and a health check.
//
// Runs are serialized: the importer has one writer, so a second upload
// while a run is in flight is refused with 409.
package webui

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"jobseed/internal/config"
	"jobseed/internal/pipeline"
)

// DefaultHistory is the number of run results kept for GET /api/imports.
const DefaultHistory = 20

// Runner executes one pipeline.
type Runner func(ctx context.Context, cfg config.Pipeline) (pipeline.Result, error)

// Config wires the server.
type Config struct {
	Addr string

	// UploadDir stores uploaded files; empty uses the OS temp dir.
	UploadDir string

	// MaxUploadBytes bounds request bodies; 0 means 64 MiB.
	MaxUploadBytes int64

	// Pipelines holds the base config per entity. Entities without one
	// use config.Default.
	Pipelines map[string]config.Pipeline

	History int
	Run     Runner
	Log     zerolog.Logger
}

// Server is the admin endpoint.
type Server struct {
	cfg  Config
	echo *echo.Echo

	mu      sync.Mutex
	running string
	recent  []Entry
}

// Entry is one run in the history.
type Entry struct {
	Entity   string          `json:"entity"`
	File     string          `json:"file"`
	Finished time.Time       `json:"finished"`
	Result   pipeline.Result `json:"result"`
	Error    string          `json:"error,omitempty"`
}

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// NewServer builds the routes.
func NewServer(cfg Config) *Server {
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{cfg: cfg, echo: e}

	e.Use(echomw.Recover())
	e.Use(s.logging())
	e.Use(echomw.BodyLimit(strconv.FormatInt(cfg.MaxUploadBytes/1024, 10) + "K"))

	e.GET("/healthz", s.health)
	api := e.Group("/api")
	api.GET("/imports", s.listImports)
	api.POST("/imports/:entity", s.createImport)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on cfg.Addr until Shutdown.
func (s *Server) Start() error {
	s.cfg.Log.Info().Str("addr", s.cfg.Addr).Msg("webui: listening")
	err := s.echo.Start(s.cfg.Addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

func success(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, APIResponse{Status: "success", Message: message, Data: data})
}

func failure(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, APIResponse{Status: "error", Message: message, Data: data})
}

func (s *Server) health(c echo.Context) error {
	return success(c, http.StatusOK, "service healthy", map[string]any{"status": "ok"})
}

func (s *Server) listImports(c echo.Context) error {
	s.mu.Lock()
	out := make([]Entry, len(s.recent))
	for i, r := range s.recent {
		out[len(s.recent)-1-i] = r
	}
	s.mu.Unlock()
	return success(c, http.StatusOK, "", out)
}

// acquire marks entity as running; false when another run holds the slot.
func (s *Server) acquire(entity string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running != "" {
		return s.running, false
	}
	s.running = entity
	return "", true
}

func (s *Server) release(r Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = ""
	s.recent = append(s.recent, r)
	if len(s.recent) > s.cfg.History {
		s.recent = s.recent[len(s.recent)-s.cfg.History:]
	}
}

// logging writes one line per request.
func (s *Server) logging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			s.cfg.Log.Info().
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("webui: request")
			return nil
		}
	}
}
