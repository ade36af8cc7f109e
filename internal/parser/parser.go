// Package parser turns a decoded byte stream into header-keyed rows.
//
// Concrete formats live in subpackages (csv, xlsx). Both satisfy Reader:
// the header is read when the reader is constructed, so a file without a
// usable header fails before anything touches the database.
package parser

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrMissingHeader is returned when the source has no header row or the
// header is empty.
var ErrMissingHeader = errors.New("missing header row")

// Row is one source record keyed by canonical header name.
type Row struct {
	// Line is the 1-based physical line (or sheet row) the record starts on.
	Line   int
	Fields map[string]string
	Raw    []string
}

// RowError marks a record that could not be parsed into a Row. Readers
// return it from Next and remain usable afterwards.
type RowError struct {
	Line int
	Raw  []string
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *RowError) Unwrap() error { return e.Err }

// Reader yields rows in source order. Next returns io.EOF at the end of
// input and *RowError for a malformed record.
type Reader interface {
	Header() []string
	Next() (Row, error)
}

// Each drains r, calling fn for every good row and onBad for every
// malformed one. Iteration stops at the first error returned by fn or at
// a non-row read error.
func Each(r Reader, fn func(Row) error, onBad func(*RowError)) error {
	for {
		row, err := r.Next()
		if err == io.EOF {
			return nil
		}
		var rowErr *RowError
		if errors.As(err, &rowErr) {
			if onBad != nil {
				onBad(rowErr)
			}
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

// ReadAll drains r into memory.
func ReadAll(r Reader) ([]Row, []*RowError, error) {
	var (
		rows []Row
		bad  []*RowError
	)
	err := Each(r, func(row Row) error {
		rows = append(rows, row)
		return nil
	}, func(e *RowError) { bad = append(bad, e) })
	return rows, bad, err
}

// CanonicalHeader folds a header cell to the snake_case column name used
// by entity definitions. headerMap, keyed by the trimmed original cell,
// takes precedence.
//
// Folding: strip BOM, lower-case, drop accents, map space/dash/dot to
// underscore, drop everything else outside [a-z0-9_].
func CanonicalHeader(h string, headerMap map[string]string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
	if mapped, ok := headerMap[h]; ok {
		return mapped
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(h))
	if err != nil {
		folded = strings.ToLower(h)
	}

	var b strings.Builder
	underscore := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// CanonicalHeaders applies CanonicalHeader to every cell and rejects an
// empty or blank header.
func CanonicalHeaders(hdr []string, headerMap map[string]string) ([]string, error) {
	out := make([]string, len(hdr))
	blank := true
	for i, h := range hdr {
		out[i] = CanonicalHeader(h, headerMap)
		if out[i] != "" {
			blank = false
		}
	}
	if blank {
		return nil, ErrMissingHeader
	}
	return out, nil
}

// Zip keys cells by header. Missing trailing cells map to "".
func Zip(header, cells []string) map[string]string {
	m := make(map[string]string, len(header))
	for i, h := range header {
		if h == "" {
			continue
		}
		if i < len(cells) {
			m[h] = cells[i]
		} else {
			m[h] = ""
		}
	}
	return m
}
