// Package xlsx reads the first (or a named) worksheet of an Excel
// workbook with the same header contract as the csv reader.
package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"jobseed/internal/parser"
)

// Options configures the reader.
type Options struct {
	// Sheet names the worksheet; empty selects the first one.
	Sheet     string
	HeaderMap map[string]string
}

// Reader implements parser.Reader over an excelize row iterator.
type Reader struct {
	f      *excelize.File
	rows   *excelize.Rows
	header []string
	line   int
}

// NewReader opens the workbook from r and reads the header row.
// Close releases the workbook's temporary files.
func NewReader(r io.Reader, opt Options) (*Reader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	sheet := opt.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			_ = f.Close()
			return nil, parser.ErrMissingHeader
		}
		sheet = sheets[0]
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open sheet %q: %w", sheet, err)
	}

	x := &Reader{f: f, rows: rows}
	if !rows.Next() {
		_ = x.Close()
		return nil, parser.ErrMissingHeader
	}
	x.line = 1
	hdr, err := rows.Columns()
	if err != nil {
		_ = x.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}
	if x.header, err = parser.CanonicalHeaders(hdr, opt.HeaderMap); err != nil {
		_ = x.Close()
		return nil, err
	}
	return x, nil
}

// Header returns canonical column names.
func (x *Reader) Header() []string { return x.header }

// Next returns the next non-empty sheet row. Trailing blank cells are
// dropped by the workbook format, so only rows with extra non-blank cells
// beyond the header width are malformed.
func (x *Reader) Next() (parser.Row, error) {
	for x.rows.Next() {
		x.line++
		cells, err := x.rows.Columns()
		if err != nil {
			return parser.Row{}, &parser.RowError{Line: x.line, Err: err}
		}
		if blank(cells) {
			continue
		}
		if len(cells) > len(x.header) && !blank(cells[len(x.header):]) {
			return parser.Row{}, &parser.RowError{
				Line: x.line,
				Raw:  cells,
				Err:  fmt.Errorf("wrong number of fields: %d, header has %d", len(cells), len(x.header)),
			}
		}
		fields := parser.Zip(x.header, cells)
		for k, v := range fields {
			fields[k] = strings.TrimSpace(v)
		}
		return parser.Row{Line: x.line, Fields: fields, Raw: cells}, nil
	}
	if err := x.rows.Error(); err != nil {
		return parser.Row{}, fmt.Errorf("read sheet: %w", err)
	}
	return parser.Row{}, io.EOF
}

// Close releases the iterator and the workbook.
func (x *Reader) Close() error {
	rerr := x.rows.Close()
	ferr := x.f.Close()
	if rerr != nil {
		return rerr
	}
	return ferr
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
