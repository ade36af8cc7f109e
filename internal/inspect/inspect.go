// Package inspect is the pre-flight inspector behind "jobseed inspect". It
// reads a source the way an import would, without opening the database,
// and reports encoding, header, row counts, malformed rows and the fill
// rate of every column. When the header matches an entity it also shows
// which columns the import would write and which required ones are
// missing.
package inspect

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"jobseed/internal/config"
	"jobseed/internal/datasource"
	"jobseed/internal/datasource/file"
	"jobseed/internal/datasource/httpds"
	"jobseed/internal/entity"
	"jobseed/internal/normalize"
	"jobseed/internal/parser"
	"jobseed/internal/parser/csv"
	"jobseed/internal/parser/xlsx"
	"jobseed/internal/transformer"
)

// maxMalformedLines bounds the malformed line numbers kept in a report.
const maxMalformedLines = 10

// Options control what is read and how.
type Options struct {
	// Location is a local path or http(s) URL.
	Location string

	// Parser selects the format; an empty kind is guessed from the
	// extension.
	Parser config.Parser

	// Entity checks the header against an entity; empty guesses one.
	Entity string

	// MaxBytes > 0 samples only the head of the source, cut back to the
	// last complete line.
	MaxBytes int

	HTTP *httpds.Client
}

// Column is the profile of one header column.
type Column struct {
	Name     string  `json:"name"`
	Filled   int     `json:"filled"`
	FillRate float64 `json:"fill_rate"`
	Type     string  `json:"type"`

	// Mapped is true when the entity reads this column.
	Mapped bool `json:"mapped"`
}

// Report is the inspection result.
type Report struct {
	Location       string   `json:"location"`
	Encoding       string   `json:"encoding"`
	Sampled        bool     `json:"sampled"`
	Header         []string `json:"header"`
	Rows           int      `json:"rows"`
	Malformed      int      `json:"malformed"`
	MalformedLines []int    `json:"malformed_lines,omitempty"`
	Columns        []Column `json:"columns"`

	Entity          string   `json:"entity,omitempty"`
	WrittenColumns  []string `json:"written_columns,omitempty"`
	MissingRequired []string `json:"missing_required,omitempty"`
	Unmapped        []string `json:"unmapped,omitempty"`
}

// peekFn fetches the first n bytes of a location. Tests replace it.
var peekFn = func(ctx context.Context, client *httpds.Client, loc string, n int) ([]byte, error) {
	src := datasource.For(loc, client)
	if local, ok := src.(*file.Local); ok {
		rc, err := local.Open(ctx)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, io.LimitReader(rc, int64(n))); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	if client == nil {
		client = httpds.NewClient(httpds.Config{})
	}
	return client.Peek(ctx, loc, n)
}

// Inspect reads opt.Location and profiles it.
func Inspect(ctx context.Context, opt Options) (Report, error) {
	rep := Report{Location: opt.Location, Sampled: opt.MaxBytes > 0}

	in, enc, closeFn, err := open(ctx, opt)
	if err != nil {
		return rep, err
	}
	defer closeFn()
	rep.Encoding = enc

	r, err := newReader(in, opt)
	if err != nil {
		return rep, err
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	rep.Header = r.Header()

	var rows []parser.Row
	err = parser.Each(r, func(row parser.Row) error {
		rows = append(rows, row)
		return nil
	}, func(e *parser.RowError) {
		rep.Malformed++
		if len(rep.MalformedLines) < maxMalformedLines {
			rep.MalformedLines = append(rep.MalformedLines, e.Line)
		}
	})
	if err != nil {
		return rep, fmt.Errorf("read %s: %w", opt.Location, err)
	}
	rep.Rows = len(rows)
	rep.Columns = profile(rep.Header, rows)

	name := opt.Entity
	if name == "" {
		name = GuessEntity(rep.Header)
	}
	if name != "" {
		if err := rep.checkEntity(name); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func open(ctx context.Context, opt Options) (io.Reader, string, func(), error) {
	if opt.MaxBytes > 0 {
		data, err := peekFn(ctx, opt.HTTP, opt.Location, opt.MaxBytes)
		if err != nil {
			return nil, "", nil, fmt.Errorf("%w: %v", datasource.ErrUnreadableSource, err)
		}
		if len(data) == opt.MaxBytes {
			if i := bytes.LastIndexByte(data, '\n'); i > 0 {
				data = data[:i+1]
			}
		}
		decoded, enc := datasource.Decode(data)
		return bytes.NewReader(decoded), enc, func() {}, nil
	}

	st, err := datasource.Open(ctx, datasource.For(opt.Location, opt.HTTP), datasource.Options{Mode: datasource.ModeReadAll})
	if err != nil {
		return nil, "", nil, err
	}
	return st, st.Encoding, func() { _ = st.Close() }, nil
}

func newReader(in io.Reader, opt Options) (parser.Reader, error) {
	kind := opt.Parser.Kind
	if kind == "" {
		kind = "csv"
		if strings.EqualFold(filepath.Ext(opt.Location), ".xlsx") {
			kind = "xlsx"
		}
	}
	o := opt.Parser.Options
	if kind == "xlsx" {
		return xlsx.NewReader(in, xlsx.Options{Sheet: o.String("sheet", ""), HeaderMap: o.StringMap("header_map")})
	}
	return csv.NewReader(in, csv.Options{
		Comma:      o.Rune("comma", ','),
		LazyQuotes: o.Bool("lazy_quotes", false),
		HeaderMap:  o.StringMap("header_map"),
	})
}

// profile computes fill rate and a coarse type per column.
func profile(header []string, rows []parser.Row) []Column {
	out := make([]Column, len(header))
	for i, h := range header {
		var vals []string
		for _, r := range rows {
			if v, ok := normalize.String(r.Fields[h]); ok {
				vals = append(vals, v)
			}
		}
		c := Column{Name: h, Filled: len(vals), Type: inferType(vals)}
		if len(rows) > 0 {
			c.FillRate = float64(len(vals)) / float64(len(rows))
		}
		out[i] = c
	}
	return out
}

// inferType picks the narrowest of integer, boolean, real and text that
// every present value satisfies.
func inferType(vals []string) string {
	if len(vals) == 0 {
		return "empty"
	}
	all := func(fn func(string) bool) bool {
		for _, v := range vals {
			if !fn(v) {
				return false
			}
		}
		return true
	}
	switch {
	case all(isInt):
		return "integer"
	case all(isBool):
		return "boolean"
	case all(isReal):
		return "real"
	}
	return "text"
}

func isInt(s string) bool {
	_, ok := normalize.Int(s)
	return ok && !strings.ContainsAny(s, ".eE")
}

func isBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "t", "f", "yes", "no":
		return true
	}
	return false
}

func isReal(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// GuessEntity returns the entity whose source columns overlap the header
// the most, or "" when no entity covers its key and required columns.
func GuessEntity(header []string) string {
	hdr := make(map[string]bool, len(header))
	for _, h := range header {
		hdr[h] = true
	}
	best, bestScore := "", 0
	for _, name := range entity.Names() {
		e, _ := entity.Lookup(name)
		score := 0
		ok := true
		for _, f := range e.Fields {
			if hdr[f.SourceName()] {
				score++
			} else if f.Required {
				ok = false
			}
		}
		if ok && score > bestScore {
			best, bestScore = name, score
		}
	}
	return best
}

func (r *Report) checkEntity(name string) error {
	e, err := entity.Lookup(name)
	if err != nil {
		return err
	}
	plan, err := transformer.Compile(e, r.Header, transformer.Options{})
	if err != nil {
		return err
	}
	r.Entity = name
	r.WrittenColumns = plan.Columns
	r.MissingRequired = plan.MissingRequired

	read := map[string]bool{}
	for _, f := range e.Fields {
		read[f.SourceName()] = true
		for _, d := range f.DeriveFrom {
			read[d] = true
		}
	}
	for i := range r.Columns {
		r.Columns[i].Mapped = read[r.Columns[i].Name]
		if !r.Columns[i].Mapped {
			r.Unmapped = append(r.Unmapped, r.Columns[i].Name)
		}
	}
	return nil
}

// Suggest builds a starter pipeline config for the inspected source.
func Suggest(r Report) config.Pipeline {
	p := config.Default(r.Entity, r.Location)
	if strings.HasPrefix(strings.ToLower(r.Location), "http") {
		p.Source.Kind = "http"
		p.Source.URL = r.Location
		p.Source.File.Path = ""
	}
	if strings.EqualFold(filepath.Ext(r.Location), ".xlsx") {
		p.Parser.Kind = "xlsx"
	}
	if r.Rows > 100_000 {
		p.Source.Mode = "stream"
	}
	return p
}
