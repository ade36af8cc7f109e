// Package csv reads delimited text with a mandatory header row.
//
// Width is fixed by the header: a record with a different number of
// cells is reported as a *parser.RowError and skipped, and reading
// continues with the next record.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"jobseed/internal/parser"
)

// Options configures the reader. The zero value reads comma-separated,
// strictly quoted input and trims cell whitespace.
type Options struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// KeepSpace disables trimming of cell values.
	KeepSpace bool

	// LazyQuotes tolerates stray quotes inside unquoted fields.
	LazyQuotes bool

	// HeaderMap renames original header cells to column names.
	HeaderMap map[string]string
}

// Reader implements parser.Reader over encoding/csv.
type Reader struct {
	cr     *csv.Reader
	opt    Options
	header []string
}

// NewReader reads and canonicalizes the header immediately.
func NewReader(r io.Reader, opt Options) (*Reader, error) {
	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	// 0: width is taken from the header and enforced per record.
	cr.FieldsPerRecord = 0

	hdr, err := cr.Read()
	if err == io.EOF {
		return nil, parser.ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	canon, err := parser.CanonicalHeaders(hdr, opt.HeaderMap)
	if err != nil {
		return nil, err
	}
	return &Reader{cr: cr, opt: opt, header: canon}, nil
}

// Header returns canonical column names in source order.
func (r *Reader) Header() []string { return r.header }

// Next returns the next record, io.EOF, a *parser.RowError for a
// malformed record, or a fatal read error.
func (r *Reader) Next() (parser.Row, error) {
	rec, err := r.cr.Read()
	if err == io.EOF {
		return parser.Row{}, io.EOF
	}

	var pe *csv.ParseError
	if errors.As(err, &pe) {
		line := pe.StartLine
		if line == 0 {
			line = pe.Line
		}
		return parser.Row{}, &parser.RowError{Line: line, Raw: rec, Err: pe.Err}
	}
	if err != nil {
		return parser.Row{}, fmt.Errorf("csv read: %w", err)
	}

	line, _ := r.cr.FieldPos(0)
	fields := parser.Zip(r.header, rec)
	if !r.opt.KeepSpace {
		for k, v := range fields {
			fields[k] = strings.TrimSpace(v)
		}
	}
	return parser.Row{Line: line, Fields: fields, Raw: rec}, nil
}
