// Package logging configures the process-wide zerolog logger.
//
// Two output formats are supported:
//
//   - "console": human-friendly, colorized lines for interactive runs.
//   - "json":    one JSON object per line for log shippers.
//
// Callers obtain a logger from Setup once at startup and derive per-run
// loggers with With() (job, entity, run_id).
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format values accepted by Setup.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Setup builds a logger writing to w in the requested format and level.
// Unknown formats fall back to console; unknown levels fall back to info.
func Setup(w io.Writer, format, level string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	out := w
	if strings.ToLower(strings.TrimSpace(format)) != FormatJSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(out).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps LOG_LEVEL strings onto zerolog levels.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
