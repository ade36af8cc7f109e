// Package entity describes the job-board reference tables the importer
// loads: their columns, how each column is read from a source row, and
// how child tables point at their parents.
//
// The definitions are data, not code paths. One generic pipeline is
// instantiated per entity by looking it up here.
package entity

import (
	"fmt"
	"sort"
)

// Kind selects the normalization rule applied to a field.
type Kind string

const (
	KindString  Kind = "string"
	KindInt     Kind = "int"
	KindBool    Kind = "bool"
	KindBucket  Kind = "bucket"
	KindList    Kind = "list"
	KindPhone   Kind = "phone"
	KindWebsite Kind = "website"
	KindEmail   Kind = "email"
)

// Field maps one source column onto one target column.
type Field struct {
	Column   string
	Source   string // header name; defaults to Column
	Kind     Kind
	Required bool

	// Default is stored when the source value is absent. A nil Default
	// means SQL NULL.
	Default any

	// Buckets is the lookup table for KindBucket (lower-case keys).
	Buckets map[string]string

	// DeriveFrom lists source columns that let Entity.Derive fill this
	// field when its own source column is absent.
	DeriveFrom []string
}

// SourceName returns the header name the field is read from.
func (f Field) SourceName() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Column
}

// OnMissing says what happens to a child row whose parent id is not in
// the parent snapshot.
type OnMissing string

const (
	// MissingSkip drops the row and counts it as a referential skip.
	MissingSkip OnMissing = "skip"
	// MissingPlaceholder inserts a synthetic parent row first.
	MissingPlaceholder OnMissing = "placeholder"
	// MissingNull keeps the row with the reference set to NULL.
	MissingNull OnMissing = "null"
)

// ParentRef is a many-to-one reference to another entity's key.
type ParentRef struct {
	Column    string
	Parent    string // entity name
	OnMissing OnMissing

	// AllowPlaceholder lets placeholder_parents turn a skip into a
	// MissingPlaceholder.
	AllowPlaceholder bool
}

// Entity is a loadable target table.
type Entity struct {
	Name  string
	Table string
	Key   string

	Fields  []Field
	Parents []ParentRef

	// TouchColumn is refreshed with NOW() on upsert-update when set.
	TouchColumn string

	// Wholesale entities mirror the source on every load: rows are
	// overwritten in place and rows the source omits are deleted.
	Wholesale bool

	// Identifying columns are logged when a row fails.
	Identifying []string

	// Derive fills computed columns from the raw row after per-field
	// normalization. vals holds only present values.
	Derive func(raw map[string]string, vals map[string]any)

	// Placeholder builds a stand-in row for a missing parent id.
	Placeholder func(id int64) map[string]any
}

// Field returns the field definition for column.
func (e Entity) Field(column string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Column == column {
			return f, true
		}
	}
	return Field{}, false
}

var registry = map[string]Entity{}

// order is the dependency order used by import-all.
var order = []string{"categories", "companies", "jobs", "vendors"}

func register(e Entity) {
	if _, dup := registry[e.Name]; dup {
		panic(fmt.Sprintf("entity: duplicate %q", e.Name))
	}
	registry[e.Name] = e
}

// Lookup returns the entity named name.
func Lookup(name string) (Entity, error) {
	e, ok := registry[name]
	if !ok {
		return Entity{}, fmt.Errorf("entity: unknown %q (known: %v)", name, Names())
	}
	return e, nil
}

// Names returns registered entity names sorted alphabetically.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Ordered returns entities in parent-before-child order.
func Ordered() []Entity {
	out := make([]Entity, 0, len(order))
	for _, n := range order {
		out = append(out, registry[n])
	}
	return out
}

// SupportsPlaceholders reports whether any parent of e can be stubbed
// with a placeholder row.
func SupportsPlaceholders(e Entity) bool {
	for _, p := range e.Parents {
		if !p.AllowPlaceholder {
			continue
		}
		if parent, ok := registry[p.Parent]; ok && parent.Placeholder != nil {
			return true
		}
	}
	return false
}
