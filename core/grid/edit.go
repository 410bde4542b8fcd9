package grid

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const dateLayout = "2006-01-02"

func (g *Grid) canEdit(r *row) bool {
	return !r.disabled && (r.editable || g.editable)
}

// ToggleRowEdit opens every editable cell of a row, or closes them and reconciles the row's pending edits.
func (g *Grid) ToggleRowEdit(key string) error {
	r, ok := g.rowIdx[key]
	if !ok {
		return errors.Wrapf(ErrRowNotFound, "row %q", key)
	}
	if !g.canEdit(r) {
		return errors.Wrapf(ErrRowLocked, "row %q", key)
	}

	if g.editing[key] {
		g.commitRow(r)
	} else {
		g.openRow(r)
	}
	return nil
}

func (g *Grid) openRow(r *row) {
	for _, col := range g.columns {
		if col.Kind == KindIdentity || !col.Editable {
			continue
		}
		ck := cellKey{row: r.key, col: col.Key}
		if _, ok := g.pending[ck]; !ok {
			g.pending[ck] = g.committedValue(ck)
		}
	}
	g.editing[r.key] = true
}

// committedValue is the value of a cell outside edit mode.
func (g *Grid) committedValue(ck cellKey) string {
	if v, ok := g.edited[ck]; ok {
		return v
	}
	if v, ok := g.added[ck]; ok {
		return v
	}
	if b, ok := g.baseline[ck]; ok {
		return b.value
	}
	return ""
}

func (g *Grid) commitRow(r *row) {
	for _, col := range g.columns {
		ck := cellKey{row: r.key, col: col.Key}
		v, ok := g.pending[ck]
		if !ok {
			continue
		}
		if _, ok := g.baseline[ck]; ok {
			g.edited[ck] = v
		} else {
			g.added[ck] = v
		}
		delete(g.pending, ck)
	}
	delete(g.editing, r.key)
	g.prune()
}

// prune drops edits equal to their baseline value and empty values without a baseline.
func (g *Grid) prune() {
	for ck, v := range g.edited {
		if b, ok := g.baseline[ck]; !ok || strings.TrimSpace(v) == b.value {
			delete(g.edited, ck)
		}
	}
	for ck, v := range g.added {
		if strings.TrimSpace(v) == "" {
			delete(g.added, ck)
		}
	}
}

// UpdateCell writes the pending value of a cell. The row must be in edit mode,
// except for the identity column of an added row, which opens the row.
func (g *Grid) UpdateCell(value, key, column string) error {
	r, ok := g.rowIdx[key]
	if !ok {
		return errors.Wrapf(ErrRowNotFound, "row %q", key)
	}
	col, ok := g.colIdx[column]
	if !ok {
		return errors.Wrapf(ErrColumnNotFound, "column %q", column)
	}

	if col.Kind == KindIdentity {
		return g.setIdentity(r, value)
	}
	if !col.Editable {
		return errors.Wrapf(ErrColumnNotEditable, "column %q", column)
	}
	if !g.editing[key] {
		return errors.Wrapf(ErrRowNotEditing, "row %q", key)
	}
	g.pending[cellKey{row: key, col: column}] = value
	return nil
}

func (g *Grid) setIdentity(r *row, value string) error {
	if !r.added {
		return errors.Wrapf(ErrColumnNotEditable, "identity of row %q", r.key)
	}

	var id string
	if strings.TrimSpace(value) != "" {
		var ok bool
		if id, ok = g.resolveEntity(value); !ok {
			g.report(r.key, fmt.Sprintf("%q is not a known %s", value, strings.ToLower(g.identityLabel())))
			return errors.Wrapf(ErrUnknownEntity, "entity %q", value)
		}
		for _, other := range g.rows {
			if other != r && other.entity == id {
				g.report(r.key, fmt.Sprintf("%s is already in the sheet", g.entityName(id)))
				return errors.Wrapf(ErrDuplicateEntity, "entity %q", id)
			}
		}
	}

	r.entity = id
	if !g.editing[r.key] {
		g.openRow(r)
	}
	return nil
}

func (g *Grid) identityLabel() string {
	if col, ok := g.colIdx[IdentityColumn]; ok {
		return col.Label
	}
	return "entity"
}

// AddRow appends an empty added row in edit mode and returns its key.
func (g *Grid) AddRow() (string, error) {
	if !g.editable {
		return "", ErrReadOnly
	}
	r := &row{key: g.newRowKey(), added: true, editable: true}
	g.appendRow(r)
	g.openRow(r)
	return r.key, nil
}

// AddAllRows adds an edit mode row for every candidate entity not present yet and returns how many were added.
// Candidates are ids or names; unknown candidates are reported and skipped.
func (g *Grid) AddAllRows(candidates []string) (int, error) {
	if g.mode != EntityCentric {
		return 0, errors.Wrap(ErrUnsupported, "adding entity rows")
	}
	if !g.editable {
		return 0, ErrReadOnly
	}

	present := make(map[string]bool, len(g.rows))
	for _, r := range g.rows {
		if r.entity != "" {
			present[r.entity] = true
		}
	}

	var (
		n       int
		unknown []string
	)
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		id, ok := g.resolveEntity(c)
		if !ok {
			unknown = append(unknown, strings.TrimSpace(c))
			continue
		}
		if present[id] {
			continue
		}
		present[id] = true
		r := &row{key: g.newRowKey(), entity: id, added: true, editable: true}
		g.appendRow(r)
		g.openRow(r)
		n++
	}
	if len(unknown) > 0 {
		g.report("", fmt.Sprintf("skipped unknown %s: %s", strings.ToLower(g.identityLabel()), strings.Join(unknown, ", ")))
	}
	return n, nil
}

// RequestRowDeletion marks the row at index for deletion until ConfirmDeletion or CancelDeletion.
// Baseline rows can only be deleted from record grids.
func (g *Grid) RequestRowDeletion(index int) error {
	if index < 0 || index >= len(g.rows) {
		return errors.Wrapf(ErrRowNotFound, "row #%d", index)
	}
	r := g.rows[index]
	if !r.added && (g.mode != RecordCentric || !g.canEdit(r)) {
		return errors.Wrapf(ErrRowNotDeletable, "row %q", r.key)
	}
	g.deletion = &deletion{row: r.key}
	return nil
}

// AddColumn appends a user added category column and returns its key.
// On a grid loaded without rows, the current entities are added as rows.
func (g *Grid) AddColumn(col Column) (string, error) {
	if g.mode != EntityCentric {
		return "", errors.Wrap(ErrUnsupported, "adding columns")
	}
	if !g.editable {
		return "", ErrReadOnly
	}

	label := strings.TrimSpace(col.Label)
	category, ok := g.resolveCategory(col.Category, label)
	if !ok {
		name := col.Category
		if name == "" {
			name = label
		}
		g.report("", fmt.Sprintf("unknown category %q", name))
		return "", errors.Wrapf(ErrInvalidInput, "category %q", name)
	}
	if catLabel := g.opts.Categories[category]; catLabel != "" {
		label = catLabel
	} else if label == "" {
		label = category
	}

	date := strings.TrimSpace(col.Date)
	if date != "" {
		t, err := time.Parse(dateLayout, date)
		if err != nil {
			g.report("", fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
			return "", errors.Wrapf(ErrInvalidDate, "%q", date)
		}
		date = t.Format(dateLayout)
	}

	for _, c := range g.columns {
		if c.Kind != KindCategory || c.Date != date {
			continue
		}
		if c.Category == category || strings.EqualFold(c.Label, label) {
			g.report("", fmt.Sprintf("column %s already exists", columnTitle(label, date)))
			return "", errors.Wrapf(ErrDuplicateColumn, "%q", CategoryKey(category, date))
		}
	}

	added := CategoryColumn(category, label, date)
	added.Deletable = true
	added.Added = true
	c := g.appendColumn(added)
	for key := range g.editing {
		g.pending[cellKey{row: key, col: c.Key}] = ""
	}

	if g.baselineRows == 0 {
		if _, err := g.AddAllRows(g.opts.CurrentEntities); err != nil {
			return "", err
		}
	}
	return c.Key, nil
}

func columnTitle(label, date string) string {
	if date == "" {
		return label
	}
	return label + " (" + date + ")"
}

// RequestColumnDeletion marks a user added column for deletion until ConfirmDeletion or CancelDeletion.
func (g *Grid) RequestColumnDeletion(key string) error {
	col, ok := g.colIdx[key]
	if !ok {
		return errors.Wrapf(ErrColumnNotFound, "column %q", key)
	}
	if !col.Added || !col.Deletable {
		return errors.Wrapf(ErrColumnNotDeletable, "column %q", key)
	}
	g.deletion = &deletion{column: key}
	return nil
}

// ConfirmDeletion applies the deletion awaiting confirmation.
// Removing a row or column also drops every pending, edited and added value referencing it.
func (g *Grid) ConfirmDeletion() error {
	d := g.deletion
	if d == nil {
		return ErrNoPendingDeletion
	}
	g.deletion = nil
	if d.column != "" {
		g.removeColumn(d.column)
	} else {
		g.removeRow(d.row)
	}
	return nil
}

// CancelDeletion restores the row or column awaiting deletion.
func (g *Grid) CancelDeletion() error {
	if g.deletion == nil {
		return ErrNoPendingDeletion
	}
	g.deletion = nil
	return nil
}

func (g *Grid) removeRow(key string) {
	r, ok := g.rowIdx[key]
	if !ok {
		return
	}
	for i, rr := range g.rows {
		if rr == r {
			g.rows = append(g.rows[:i], g.rows[i+1:]...)
			break
		}
	}
	delete(g.rowIdx, key)
	delete(g.editing, key)
	for _, m := range []map[cellKey]string{g.pending, g.edited, g.added} {
		for ck := range m {
			if ck.row == key {
				delete(m, ck)
			}
		}
	}
	for ck := range g.baseline {
		if ck.row == key {
			delete(g.baseline, ck)
		}
	}
	if !r.added && r.serverID != "" {
		g.deleted = append(g.deleted, r)
	}
	if g.highlight == key {
		g.highlight = ""
	}
}

func (g *Grid) removeColumn(key string) {
	for i, c := range g.columns {
		if c.Key == key {
			g.columns = append(g.columns[:i], g.columns[i+1:]...)
			break
		}
	}
	delete(g.colIdx, key)
	for _, m := range []map[cellKey]string{g.pending, g.edited, g.added} {
		for ck := range m {
			if ck.col == key {
				delete(m, ck)
			}
		}
	}
}
