// Package rejects writes the side file that lists every source row the
// importer skipped or failed to insert.
package rejects

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jszwec/csvutil"
)

// Reasons recorded in the reason column.
const (
	ReasonMalformed     = "malformed"
	ReasonValidation    = "validation"
	ReasonMissingParent = "missing_parent"
	ReasonInsertFailed  = "insert_failed"
)

// Reject is one line of the side file.
type Reject struct {
	Reason string `csv:"reason"`
	Line   int    `csv:"line"`
	ID     string `csv:"id"`
	Detail string `csv:"detail"`

	// Raw is the original record re-encoded as one CSV line.
	Raw string `csv:"raw"`
}

// Sink receives rejected rows. Implementations are safe for concurrent use.
type Sink interface {
	Add(r Reject) error
	Close() error
}

// Discard drops everything.
type Discard struct{}

func (Discard) Add(Reject) error { return nil }
func (Discard) Close() error     { return nil }

// File writes rejects to <dir>/<job>-<runID>.csv. The file is created on
// the first Add, so clean runs leave nothing behind.
type File struct {
	path string

	mu    sync.Mutex
	f     *os.File
	w     *csv.Writer
	enc   *csvutil.Encoder
	count int
}

// NewFile prepares a sink; nothing touches the disk until the first Add.
func NewFile(dir, job, runID string) *File {
	name := fmt.Sprintf("%s-%s.csv", sanitize(job), runID)
	return &File{path: filepath.Join(dir, name)}
}

// Path is where the file is (or would be) written.
func (s *File) Path() string { return s.path }

// Count is the number of rejects written.
func (s *File) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Add appends one reject.
func (s *File) Add(r Reject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	if err := s.enc.Encode(r); err != nil {
		return fmt.Errorf("write reject: %w", err)
	}
	s.count++
	return nil
}

func (s *File) open() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create reject dir: %w", err)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create reject file: %w", err)
	}
	s.f = f
	s.w = csv.NewWriter(f)
	s.enc = csvutil.NewEncoder(s.w)
	return nil
}

// Close flushes and closes the file if one was opened.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	s.w.Flush()
	werr := s.w.Error()
	cerr := s.f.Close()
	s.f = nil
	if werr != nil {
		return fmt.Errorf("flush rejects: %w", werr)
	}
	return cerr
}

// JoinRaw re-encodes raw cells as a single CSV line without the newline.
func JoinRaw(cells []string) string {
	if len(cells) == 0 {
		return ""
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(cells)
	w.Flush()
	return strings.TrimRight(buf.String(), "\r\n")
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
