package grid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// HasChanges reports whether the grid holds committed edits or added values.
// Record grids also count added rows and queued deletions.
// Values typed in rows still in edit mode are not counted until the row closes or Save runs.
func (g *Grid) HasChanges() bool {
	if len(g.edited) > 0 || len(g.added) > 0 {
		return true
	}
	if g.mode == RecordCentric {
		if len(g.deleted) > 0 {
			return true
		}
		for _, r := range g.rows {
			if r.added {
				return true
			}
		}
	}
	return false
}

// Save closes every row in edit mode, validates the accumulated changes and hands them to OnSave as one Batch.
// It returns false without calling OnSave when there is nothing to save.
// The first invalid row aborts the save: it is reported and returned as a *RowError,
// and every row that was in edit mode is reopened along with it.
// When OnSave fails the changes are kept so the save can be retried.
func (g *Grid) Save(ctx context.Context) (bool, error) {
	var open []*row
	for _, r := range g.rows {
		if g.editing[r.key] {
			open = append(open, r)
			g.commitRow(r)
		}
	}
	if !g.HasChanges() {
		return false, nil
	}

	var (
		batch Batch
		rerr  *RowError
	)
	if g.mode == RecordCentric {
		batch, rerr = g.recordBatch()
	} else {
		batch, rerr = g.entityBatch()
	}
	if rerr != nil {
		if r, ok := g.rowIdx[rerr.Row]; ok && g.canEdit(r) {
			open = append(open, r)
		}
		for _, r := range open {
			if !g.editing[r.key] {
				g.openRow(r)
			}
		}
		g.report(rerr.Row, rerr.Message)
		return false, rerr
	}

	if g.cb.OnSave != nil {
		if err := g.cb.OnSave(ctx, batch); err != nil {
			return false, errors.Wrap(err, "saving grid")
		}
	}
	g.fold()
	return true, nil
}

func (g *Grid) rowError(r *row, col *Column, format string, args ...interface{}) *RowError {
	msg := fmt.Sprintf(format, args...)
	rerr := &RowError{Row: r.key, Message: g.rowLabel(r) + ": " + msg}
	if col != nil {
		rerr.Column = col.Key
		if col.Kind != KindIdentity {
			rerr.Message = g.rowLabel(r) + ", " + columnTitle(col.Label, col.Date) + ": " + msg
		}
	}
	return rerr
}

func (g *Grid) fields() map[string]string {
	fields := make(map[string]string, len(g.defaults))
	for k, v := range g.defaults {
		fields[k] = v
	}
	return fields
}

// entityBatch validates edited then added values in row order.
// Cells with a server id are updates, every other cell is a creation.
func (g *Grid) entityBatch() (Batch, *RowError) {
	var batch Batch
	for _, values := range []map[cellKey]string{g.edited, g.added} {
		for _, r := range g.rows {
			for _, col := range g.columns {
				ck := cellKey{row: r.key, col: col.Key}
				v, ok := values[ck]
				if !ok {
					continue
				}
				m, rerr := g.entityMutation(r, col, v)
				if rerr != nil {
					return Batch{}, rerr
				}
				if id := g.baseline[ck].id; id != "" {
					m.ID = id
					batch.Updated = append(batch.Updated, m)
				} else {
					batch.Added = append(batch.Added, m)
				}
			}
		}
	}
	return batch, nil
}

func (g *Grid) entityMutation(r *row, col *Column, raw string) (Mutation, *RowError) {
	identity := g.colIdx[IdentityColumn]
	if r.entity == "" {
		return Mutation{}, g.rowError(r, identity, "%s is required", strings.ToLower(g.identityLabel()))
	}
	entity, ok := g.resolveEntity(r.entity)
	if !ok {
		return Mutation{}, g.rowError(r, identity, "unknown %s", strings.ToLower(g.identityLabel()))
	}

	val, err := g.opts.Scale.Parse(raw)
	if err != nil {
		return Mutation{}, g.rowError(r, col, "%v", err)
	}
	category, ok := g.resolveCategory(col.Category, col.Label)
	if !ok {
		return Mutation{}, g.rowError(r, col, "unknown category %q", col.Label)
	}
	var date time.Time
	if col.Date != "" {
		if date, err = time.Parse(dateLayout, col.Date); err != nil {
			return Mutation{}, g.rowError(r, col, "invalid date %q", col.Date)
		}
	}

	return Mutation{
		Row:      r.key,
		Entity:   entity,
		Category: category,
		Date:     date,
		Value:    val,
		Fields:   g.fields(),
	}, nil
}

func (g *Grid) rowChanged(r *row) bool {
	for _, col := range g.columns {
		ck := cellKey{row: r.key, col: col.Key}
		if _, ok := g.edited[ck]; ok {
			return true
		}
		if _, ok := g.added[ck]; ok {
			return true
		}
	}
	return false
}

// recordBatch emits whole records: changed baseline records are updates,
// added records creations, and queued deletions carry the server id only.
func (g *Grid) recordBatch() (Batch, *RowError) {
	var batch Batch
	for _, r := range g.rows {
		if !r.added && !g.rowChanged(r) {
			continue
		}
		m, rerr := g.recordMutation(r)
		if rerr != nil {
			return Batch{}, rerr
		}
		if r.serverID != "" {
			m.ID = r.serverID
			batch.Updated = append(batch.Updated, m)
		} else {
			batch.Added = append(batch.Added, m)
		}
	}
	for _, r := range g.deleted {
		batch.Deleted = append(batch.Deleted, Mutation{ID: r.serverID, Row: r.key})
	}
	return batch, nil
}

func (g *Grid) recordMutation(r *row) (Mutation, *RowError) {
	m := Mutation{Row: r.key, Fields: g.fields()}
	for _, col := range g.columns {
		name := col.fieldName()
		v := strings.TrimSpace(g.committedValue(cellKey{row: r.key, col: col.Key}))
		if v == "" {
			if col.Required {
				return Mutation{}, g.rowError(r, col, "value is required")
			}
			m.Fields[name] = ""
			continue
		}

		switch col.Type {
		case FieldNumber:
			val, err := g.opts.Scale.Parse(v)
			if err != nil {
				return Mutation{}, g.rowError(r, col, "%v", err)
			}
			m.Value = val
			m.Fields[name] = formatValue(val)
		case FieldDate:
			t, err := time.Parse(dateLayout, v)
			if err != nil {
				return Mutation{}, g.rowError(r, col, "invalid date %q, expected YYYY-MM-DD", v)
			}
			m.Date = t
			m.Fields[name] = t.Format(dateLayout)
		case FieldCategory:
			category, ok := g.resolveCategory(v, v)
			if !ok {
				return Mutation{}, g.rowError(r, col, "unknown category %q", v)
			}
			m.Category = category
			m.Fields[name] = category
		default:
			m.Fields[name] = v
		}
	}
	return m, nil
}

// fold makes the saved values the new baseline.
// Created cells have no server id until the caller loads fresh data.
func (g *Grid) fold() {
	for _, r := range g.rows {
		for _, col := range g.columns {
			if col.Kind == KindIdentity {
				continue
			}
			ck := cellKey{row: r.key, col: col.Key}
			v, ok := g.edited[ck]
			if !ok {
				v, ok = g.added[ck]
			}
			if !ok && !(r.added && g.mode == RecordCentric) {
				continue
			}
			b := g.baseline[ck]
			if g.mode == RecordCentric {
				b.id = r.serverID
			}
			b.value = strings.TrimSpace(v)
			g.baseline[ck] = b
		}
		r.added = false
	}
	for _, col := range g.columns {
		col.Added = false
		col.Deletable = false
	}

	g.baselineRows = len(g.rows)
	g.pending = make(map[cellKey]string)
	g.editing = make(map[string]bool)
	g.edited = make(map[cellKey]string)
	g.added = make(map[cellKey]string)
	g.deleted = nil
	g.deletion = nil
}
