package grid

import (
	"strings"

	"github.com/pkg/errors"
)

type RowState string

const (
	StateViewing         RowState = "viewing"
	StateEditing         RowState = "editing"
	StatePendingDeletion RowState = "pending_deletion"
	StateDeleted         RowState = "deleted"
)

type CellView struct {
	Column  string `json:"column"`
	Value   string `json:"value"`
	Dirty   bool   `json:"dirty,omitempty"`
	Editing bool   `json:"editing,omitempty"`
}

type RowView struct {
	Key      string     `json:"key"`
	Index    int        `json:"index"`
	Entity   string     `json:"entity,omitempty"`
	Label    string     `json:"label"`
	Added    bool       `json:"added,omitempty"`
	Editable bool       `json:"editable"`
	State    RowState   `json:"state"`
	Cells    []CellView `json:"cells"`
}

type PendingDeletion struct {
	Row    string `json:"row,omitempty"`
	Column string `json:"column,omitempty"`
}

// View is a read only snapshot of a grid.
type View struct {
	Mode            Mode             `json:"mode"`
	Editable        bool             `json:"editable"`
	Scale           Scale            `json:"scale"`
	Columns         []Column         `json:"columns"`
	Rows            []RowView        `json:"rows"`
	Deleted         []string         `json:"deleted,omitempty"`
	PendingDeletion *PendingDeletion `json:"pending_deletion,omitempty"`
	Highlighted     string           `json:"highlighted,omitempty"`
	HasChanges      bool             `json:"has_changes"`
}

func (g *Grid) View() View {
	v := View{
		Mode:       g.mode,
		Editable:   g.editable,
		Scale:      g.opts.Scale,
		Columns:    make([]Column, 0, len(g.columns)),
		Rows:       make([]RowView, 0, len(g.rows)),
		HasChanges: g.HasChanges(),
	}
	for _, col := range g.columns {
		v.Columns = append(v.Columns, *col)
	}
	for _, r := range g.deleted {
		v.Deleted = append(v.Deleted, r.key)
	}
	if g.deletion != nil {
		v.PendingDeletion = &PendingDeletion{Row: g.deletion.row, Column: g.deletion.column}
	}
	v.Highlighted, _ = g.Highlighted()

	for i, r := range g.rows {
		rv := RowView{
			Key:      r.key,
			Index:    i,
			Entity:   r.entity,
			Label:    g.rowLabel(r),
			Added:    r.added,
			Editable: g.canEdit(r),
			State:    g.rowState(r),
			Cells:    make([]CellView, 0, len(g.columns)),
		}
		for _, col := range g.columns {
			rv.Cells = append(rv.Cells, g.cellView(r, col))
		}
		v.Rows = append(v.Rows, rv)
	}
	return v
}

func (g *Grid) cellView(r *row, col *Column) CellView {
	cv := CellView{Column: col.Key}
	if col.Kind == KindIdentity {
		if r.entity != "" {
			cv.Value = g.entityName(r.entity)
		}
		cv.Dirty = r.added
		return cv
	}

	ck := cellKey{row: r.key, col: col.Key}
	if v, ok := g.pending[ck]; ok {
		cv.Value = v
		cv.Editing = true
	} else {
		cv.Value = g.committedValue(ck)
	}
	if b, ok := g.baseline[ck]; ok {
		cv.Dirty = strings.TrimSpace(cv.Value) != b.value
	} else {
		cv.Dirty = strings.TrimSpace(cv.Value) != ""
	}
	return cv
}

// RowState returns the state of a row, including rows deleted since the last save.
func (g *Grid) RowState(key string) (RowState, error) {
	for _, r := range g.deleted {
		if r.key == key {
			return StateDeleted, nil
		}
	}
	r, ok := g.rowIdx[key]
	if !ok {
		return "", errors.Wrapf(ErrRowNotFound, "row %q", key)
	}
	return g.rowState(r), nil
}

func (g *Grid) rowState(r *row) RowState {
	switch {
	case g.deletion != nil && g.deletion.row == r.key:
		return StatePendingDeletion
	case g.editing[r.key]:
		return StateEditing
	default:
		return StateViewing
	}
}

// RowKey returns the key of the row at index.
func (g *Grid) RowKey(index int) (string, bool) {
	if index < 0 || index >= len(g.rows) {
		return "", false
	}
	return g.rows[index].key, true
}
