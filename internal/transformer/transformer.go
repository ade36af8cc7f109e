// Package transformer compiles an entity definition and a source header
// into a per-column plan, then turns parsed rows into database-ready
// records aligned to the plan's columns.
//
// A plan is compiled once per run so the per-row loop does no header
// lookups beyond the map access each field needs.
package transformer

import (
	"errors"
	"fmt"

	"jobseed/internal/entity"
	"jobseed/internal/normalize"
	"jobseed/internal/parser"
)

// ErrRequired marks a record missing a required field.
var ErrRequired = errors.New("required field missing")

// ValidationError explains why a record was dropped.
type ValidationError struct {
	Line  int
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Line, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Record is one normalized row. Values align to Plan.Columns.
type Record struct {
	Line   int
	ID     int64
	Values []any
	Raw    []string
}

// Options tunes compilation.
type Options struct {
	// PhoneRegion is the default region for numbers without a country
	// prefix, e.g. "US".
	PhoneRegion string

	// IDs allocates keys for rows without a usable id. Nil starts a
	// fresh allocator at 0.
	IDs *normalize.IDAllocator
}

type column struct {
	field  entity.Field
	source string
	inHdr  bool
}

// Plan is the compiled mapping from source rows to target columns.
type Plan struct {
	Entity entity.Entity

	// Columns lists the target columns written for this source, key first.
	Columns []string

	// MissingRequired lists required columns absent from the header;
	// every record will be dropped for them.
	MissingRequired []string

	cols   []column
	index  map[string]int
	region string
	ids    *normalize.IDAllocator
}

// Compile selects the columns a source can populate. A column is written
// when its source column is in the header, when it has a default, or when
// it can be derived from columns in the header. Columns the source cannot
// speak to are left out of the INSERT, so table defaults apply on insert
// and existing values survive an update.
func Compile(e entity.Entity, header []string, opt Options) (*Plan, error) {
	if _, ok := e.Field(e.Key); !ok {
		return nil, fmt.Errorf("transformer: entity %s has no key field %q", e.Name, e.Key)
	}
	hdr := make(map[string]bool, len(header))
	for _, h := range header {
		hdr[h] = true
	}

	p := &Plan{
		Entity: e,
		index:  make(map[string]int),
		region: opt.PhoneRegion,
		ids:    opt.IDs,
	}
	if p.ids == nil {
		p.ids = normalize.NewIDAllocator(0)
	}

	add := func(f entity.Field, inHdr bool) {
		p.index[f.Column] = len(p.cols)
		p.cols = append(p.cols, column{field: f, source: f.SourceName(), inHdr: inHdr})
		p.Columns = append(p.Columns, f.Column)
	}

	key, _ := e.Field(e.Key)
	add(key, hdr[key.SourceName()])

	for _, f := range e.Fields {
		if f.Column == e.Key {
			continue
		}
		in := hdr[f.SourceName()]
		derivable := false
		for _, d := range f.DeriveFrom {
			derivable = derivable || hdr[d]
		}
		if in || f.Default != nil || derivable || f.Required {
			add(f, in)
		}
		if f.Required && !in && !derivable {
			p.MissingRequired = append(p.MissingRequired, f.Column)
		}
	}
	return p, nil
}

// Index returns the position of column in Record.Values.
func (p *Plan) Index(column string) (int, bool) {
	i, ok := p.index[column]
	return i, ok
}

// Value returns rec's value for column; nil when absent or not written.
func (p *Plan) Value(rec Record, column string) any {
	if i, ok := p.index[column]; ok {
		return rec.Values[i]
	}
	return nil
}

// IDs exposes the allocator shared by the run.
func (p *Plan) IDs() *normalize.IDAllocator { return p.ids }

// ObserveIDs reserves every valid source id in rows, so synthetic ids
// never collide with ids that appear later in the file.
func (p *Plan) ObserveIDs(rows []parser.Row) {
	src := p.cols[0].source
	for _, r := range rows {
		if id, ok := SourceID(r.Fields[src]); ok {
			p.ids.Observe(id)
		}
	}
}

// SourceID parses a key value as it appears in the source. Blank, zero,
// negative and unparsable values carry no id.
func SourceID(raw string) (int64, bool) {
	id, ok := normalize.Int(raw)
	return id, ok && id > 0
}

// Apply normalizes one row. Rows failing validation return a
// *ValidationError and consume no id, though a source id they carry is
// still reserved.
func (p *Plan) Apply(row parser.Row) (Record, error) {
	id, hasID := SourceID(row.Fields[p.cols[0].source])
	if hasID {
		p.ids.Observe(id)
	}

	present := make(map[string]any, len(p.cols))
	for _, c := range p.cols[1:] {
		if !c.inHdr {
			continue
		}
		if v, ok := p.normalizeField(c.field, row.Fields[c.source]); ok {
			present[c.field.Column] = v
		}
	}
	if p.Entity.Derive != nil {
		p.Entity.Derive(row.Fields, present)
	}

	for _, c := range p.cols[1:] {
		if _, ok := present[c.field.Column]; c.field.Required && !ok {
			return Record{}, &ValidationError{Line: row.Line, Field: c.field.Column, Err: ErrRequired}
		}
	}

	if !hasID {
		id = p.ids.Next()
	}

	vals := make([]any, len(p.cols))
	vals[0] = id
	for i, c := range p.cols[1:] {
		if v, ok := present[c.field.Column]; ok {
			vals[i+1] = v
		} else {
			vals[i+1] = c.field.Default
		}
	}
	return Record{Line: row.Line, ID: id, Values: vals, Raw: row.Raw}, nil
}

func (p *Plan) normalizeField(f entity.Field, raw string) (any, bool) {
	switch f.Kind {
	case entity.KindInt:
		return normalize.Int(raw)
	case entity.KindBool:
		if _, ok := normalize.String(raw); !ok {
			return nil, false
		}
		return normalize.Bool(raw), true
	case entity.KindBucket:
		if _, ok := normalize.String(raw); !ok {
			return nil, false
		}
		def, _ := f.Default.(string)
		return normalize.Bucket(raw, f.Buckets, def), true
	case entity.KindList:
		l := normalize.List(raw)
		return l, len(l) > 0
	case entity.KindPhone:
		return normalize.Phone(raw, p.region)
	case entity.KindWebsite:
		return normalize.Website(raw)
	case entity.KindEmail:
		return normalize.Email(raw)
	default:
		return normalize.String(raw)
	}
}
