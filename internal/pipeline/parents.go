package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"jobseed/internal/entity"
	"jobseed/internal/storage"
	"jobseed/internal/transformer"
)

// parentCheck filters one reference column against the parent ids that
// existed when the run started.
type parentCheck struct {
	ref    entity.ParentRef
	parent entity.Entity
	idx    int
	mode   entity.OnMissing
	keys   map[int64]struct{}
}

// stub is a placeholder parent row owed before a child can be written.
type stub struct {
	parent entity.Entity
	id     int64
}

// missingParent explains a referential skip.
type missingParent struct {
	column string
	id     int64
}

func (m *missingParent) Error() string {
	return fmt.Sprintf("%s %d not found", m.column, m.id)
}

// snapshotParents loads the key set of every parent the plan writes a
// reference to. placeholders turns skip into placeholder for references
// that allow it.
func snapshotParents(ctx context.Context, repo storage.Repository, plan *transformer.Plan, placeholders bool, log zerolog.Logger) ([]*parentCheck, error) {
	var out []*parentCheck
	for _, ref := range plan.Entity.Parents {
		idx, ok := plan.Index(ref.Column)
		if !ok {
			continue
		}
		parent, err := entity.Lookup(ref.Parent)
		if err != nil {
			return nil, err
		}
		keys, err := repo.Keys(ctx, parent.Table, parent.Key)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s keys: %w", parent.Table, err)
		}
		mode := ref.OnMissing
		if mode == entity.MissingSkip && placeholders && ref.AllowPlaceholder && parent.Placeholder != nil {
			mode = entity.MissingPlaceholder
		}
		log.Info().Str("parent", parent.Table).Int("keys", len(keys)).Str("on_missing", string(mode)).
			Msg("filter: parent snapshot loaded")
		out = append(out, &parentCheck{ref: ref, parent: parent, idx: idx, mode: mode, keys: keys})
	}
	return out, nil
}

// checkParents applies every parent check to rec. It returns the stubs
// the record needs, or a *missingParent when the record must be skipped.
// Stubbed ids join the key set so each placeholder is created once.
func checkParents(checks []*parentCheck, rec *transformer.Record) ([]stub, *missingParent) {
	var stubs []stub
	for _, c := range checks {
		id, ok := rec.Values[c.idx].(int64)
		if !ok {
			continue
		}
		if _, found := c.keys[id]; found {
			continue
		}
		switch c.mode {
		case entity.MissingNull:
			rec.Values[c.idx] = nil
		case entity.MissingPlaceholder:
			c.keys[id] = struct{}{}
			stubs = append(stubs, stub{parent: c.parent, id: id})
		default:
			return nil, &missingParent{column: c.ref.Column, id: id}
		}
	}
	return stubs, nil
}

// placeholderRows groups stubs by parent and aligns their rows to one
// insert spec per parent. Existing rows are left alone.
func placeholderRows(stubs []stub) ([]storage.InsertSpec, [][][]any) {
	byTable := map[string][]stub{}
	var order []string
	for _, s := range stubs {
		if _, seen := byTable[s.parent.Table]; !seen {
			order = append(order, s.parent.Table)
		}
		byTable[s.parent.Table] = append(byTable[s.parent.Table], s)
	}

	specs := make([]storage.InsertSpec, 0, len(order))
	rows := make([][][]any, 0, len(order))
	for _, table := range order {
		group := byTable[table]
		parent := group[0].parent
		sample := parent.Placeholder(group[0].id)

		cols := []string{parent.Key}
		for c := range sample {
			if c != parent.Key {
				cols = append(cols, c)
			}
		}
		sort.Strings(cols[1:])

		var rs [][]any
		for _, s := range group {
			vals := parent.Placeholder(s.id)
			row := make([]any, len(cols))
			for i, c := range cols {
				row[i] = vals[c]
			}
			rs = append(rs, row)
		}
		specs = append(specs, storage.InsertSpec{
			Table: parent.Table, Key: parent.Key, Columns: cols,
			Policy: storage.PolicySkip, TouchColumn: parent.TouchColumn,
		})
		rows = append(rows, rs)
	}
	return specs, rows
}
