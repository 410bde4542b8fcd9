// Package grid implements the state controller behind editable grade sheets.
//
// A Grid holds server-confirmed cells (the baseline), per-row edit buffers, rows
// and columns added client side, and queued deletions. Closing a row's edit mode
// reconciles its buffer into the edited (baseline exists) or added (no baseline)
// collections; Save validates both and emits one Batch of disjoint
// updated/added/deleted mutations, or nothing at all.
//
// A Grid is not safe for concurrent use.
package grid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Mode selects how rows and columns are interpreted.
type Mode int

const (
	// EntityCentric grids have one row per entity (student) and one column per category (grade type, date).
	EntityCentric Mode = iota
	// RecordCentric grids have one row per record and typed field columns.
	RecordCentric
)

func (m Mode) String() string {
	if m == RecordCentric {
		return "record"
	}
	return "entity"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

type ColumnKind int

const (
	KindIdentity ColumnKind = iota
	KindCategory
	KindField
)

func (k ColumnKind) MarshalText() ([]byte, error) {
	switch k {
	case KindIdentity:
		return []byte("identity"), nil
	case KindCategory:
		return []byte("category"), nil
	}
	return []byte("field"), nil
}

type FieldType int

const (
	FieldText FieldType = iota
	FieldNumber
	FieldDate
	FieldCategory
)

func (t FieldType) MarshalText() ([]byte, error) {
	switch t {
	case FieldNumber:
		return []byte("number"), nil
	case FieldDate:
		return []byte("date"), nil
	case FieldCategory:
		return []byte("category"), nil
	}
	return []byte("text"), nil
}

// IdentityColumn is the key of the entity column of EntityCentric grids.
const IdentityColumn = "entity"

// PulseDuration is how long a row stays highlighted after an error was reported on it.
const PulseDuration = 5 * time.Second

type Column struct {
	Key       string     `json:"key"`
	Kind      ColumnKind `json:"kind"`
	Label     string     `json:"label"`
	Category  string     `json:"category,omitempty"`
	Date      string     `json:"date,omitempty"`
	Field     string     `json:"field,omitempty"`
	Type      FieldType  `json:"type"`
	Required  bool       `json:"required,omitempty"`
	Editable  bool       `json:"editable"`
	Deletable bool       `json:"deletable"`
	Added     bool       `json:"added,omitempty"`
}

// CategoryKey is the stable key of the column holding category values at date.
func CategoryKey(category, date string) string {
	if date == "" {
		return category
	}
	return category + "@" + date
}

// CategoryColumn returns an editable category column.
func CategoryColumn(category, label, date string) Column {
	return Column{
		Key:      CategoryKey(category, date),
		Kind:     KindCategory,
		Label:    label,
		Category: category,
		Date:     date,
		Type:     FieldNumber,
		Editable: true,
	}
}

func (col Column) fieldName() string {
	if col.Field != "" {
		return col.Field
	}
	return col.Key
}

type Entity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Editable bool   `json:"editable,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Observation is one baseline cell of an EntityCentric grid.
type Observation struct {
	ID       string
	Entity   string
	Category string
	Date     string
	Value    string
}

// Record is one baseline row of a RecordCentric grid; Values are keyed by column key.
type Record struct {
	ID       string
	Values   map[string]string
	Editable bool
	Disabled bool
}

type Options struct {
	// Entities is the full entity catalog used to name rows and resolve identities.
	Entities []Entity
	// CurrentEntities populate an empty grid when its first category column is added.
	CurrentEntities []string
	// Categories maps category ids to labels.
	Categories map[string]string
	Scale      Scale
}

type Input struct {
	Mode          Mode
	IdentityLabel string
	Entities      []Entity
	Columns       []Column
	Observations  []Observation
	Records       []Record
	Defaults      map[string]string
	Options       Options
	Editable      bool
}

// Callbacks connect a Grid to its caller. All of them are optional.
type Callbacks struct {
	OnSave  func(ctx context.Context, batch Batch) error
	OnError func(msg string)
	OnFocus func(row string)
}

type Mutation struct {
	ID       string            `json:"id,omitempty"`
	Row      string            `json:"row"`
	Entity   string            `json:"entity,omitempty"`
	Category string            `json:"category,omitempty"`
	Date     time.Time         `json:"date,omitempty"`
	Value    float64           `json:"value"`
	Fields   map[string]string `json:"fields,omitempty"`
}

type Batch struct {
	Updated []Mutation `json:"updated"`
	Added   []Mutation `json:"added"`
	Deleted []Mutation `json:"deleted"`
}

func (b Batch) Len() int { return len(b.Updated) + len(b.Added) + len(b.Deleted) }

type row struct {
	key      string
	entity   string
	serverID string
	added    bool
	editable bool
	disabled bool
}

type cellKey struct {
	row, col string
}

type baselineCell struct {
	id    string
	value string
}

type deletion struct {
	row    string
	column string
}

type Grid struct {
	cb       Callbacks
	now      func() time.Time
	mode     Mode
	editable bool
	defaults map[string]string
	opts     Options
	names    map[string]string // entity id -> name

	columns []*Column
	colIdx  map[string]*Column
	rows    []*row
	rowIdx  map[string]*row
	seq     int

	baseline     map[cellKey]baselineCell
	baselineRows int

	pending map[cellKey]string
	editing map[string]bool
	edited  map[cellKey]string
	added   map[cellKey]string
	deleted []*row

	deletion       *deletion
	highlight      string
	highlightUntil time.Time
}

// New returns an empty EntityCentric Grid; call Load to give it a baseline.
func New(cb Callbacks) *Grid {
	g := &Grid{cb: cb, now: time.Now}
	g.reset(Input{})
	return g
}

func (g *Grid) Mode() Mode { return g.mode }

func (g *Grid) reset(in Input) {
	g.mode = in.Mode
	g.editable = in.Editable
	g.defaults = make(map[string]string, len(in.Defaults))
	for k, v := range in.Defaults {
		g.defaults[k] = v
	}
	g.opts = in.Options
	if g.opts.Scale.isZero() {
		g.opts.Scale = DefaultScale
	}
	g.names = make(map[string]string, len(in.Options.Entities)+len(in.Entities))
	for _, e := range in.Options.Entities {
		g.names[e.ID] = e.Name
	}
	for _, e := range in.Entities {
		if e.Name != "" {
			g.names[e.ID] = e.Name
		}
	}

	g.columns = nil
	g.colIdx = make(map[string]*Column)
	g.rows = nil
	g.rowIdx = make(map[string]*row)
	g.seq = 0
	g.baseline = make(map[cellKey]baselineCell)
	g.baselineRows = 0
	g.pending = make(map[cellKey]string)
	g.editing = make(map[string]bool)
	g.edited = make(map[cellKey]string)
	g.added = make(map[cellKey]string)
	g.deleted = nil
	g.deletion = nil
	g.highlight = ""
	g.highlightUntil = time.Time{}
}

// Load replaces the baseline wholesale. Every pending edit, added row or column and queued deletion is discarded.
func (g *Grid) Load(in Input) error {
	g.reset(in)

	var err error
	switch in.Mode {
	case EntityCentric:
		err = g.loadEntities(in)
	case RecordCentric:
		err = g.loadRecords(in)
	default:
		err = errors.Wrapf(ErrInvalidInput, "unknown mode %d", in.Mode)
	}
	if err != nil {
		g.reset(Input{})
		return err
	}
	g.baselineRows = len(g.rows)
	return nil
}

func (g *Grid) loadEntities(in Input) error {
	label := in.IdentityLabel
	if label == "" {
		label = "Entity"
	}
	g.appendColumn(Column{Key: IdentityColumn, Kind: KindIdentity, Label: label})

	for _, col := range in.Columns {
		if col.Kind != KindCategory {
			return errors.Wrapf(ErrInvalidInput, "column %q: entity grids only take category columns", col.Label)
		}
		col.Key = CategoryKey(col.Category, col.Date)
		col.Type = FieldNumber
		col.Added = false
		if col.Label == "" {
			col.Label = g.opts.Categories[col.Category]
		}
		if _, ok := g.colIdx[col.Key]; ok {
			return errors.Wrapf(ErrInvalidInput, "duplicate column %q", col.Key)
		}
		g.appendColumn(col)
	}

	for _, e := range in.Entities {
		if e.ID == "" {
			return errors.Wrap(ErrInvalidInput, "entity without id")
		}
		if _, ok := g.rowIdx[e.ID]; ok {
			return errors.Wrapf(ErrInvalidInput, "duplicate entity %q", e.ID)
		}
		g.appendRow(&row{key: e.ID, entity: e.ID, editable: e.Editable, disabled: e.Disabled})
	}

	for _, obs := range in.Observations {
		if obs.Entity == "" || obs.Category == "" {
			return errors.Wrapf(ErrInvalidInput, "observation %q without entity or category", obs.ID)
		}
		if _, ok := g.rowIdx[obs.Entity]; !ok {
			g.appendRow(&row{key: obs.Entity, entity: obs.Entity})
		}
		key := CategoryKey(obs.Category, obs.Date)
		if _, ok := g.colIdx[key]; !ok {
			g.appendColumn(CategoryColumn(obs.Category, g.opts.Categories[obs.Category], obs.Date))
		}
		g.baseline[cellKey{row: obs.Entity, col: key}] = baselineCell{id: obs.ID, value: obs.Value}
	}
	return nil
}

func (g *Grid) loadRecords(in Input) error {
	for _, col := range in.Columns {
		if col.Kind != KindField || col.Key == "" {
			return errors.Wrapf(ErrInvalidInput, "column %q: record grids only take keyed field columns", col.Label)
		}
		if _, ok := g.colIdx[col.Key]; ok {
			return errors.Wrapf(ErrInvalidInput, "duplicate column %q", col.Key)
		}
		col.Added = false
		g.appendColumn(col)
	}

	for _, rec := range in.Records {
		if rec.ID == "" {
			return errors.Wrap(ErrInvalidInput, "record without id")
		}
		if _, ok := g.rowIdx[rec.ID]; ok {
			return errors.Wrapf(ErrInvalidInput, "duplicate record %q", rec.ID)
		}
		g.appendRow(&row{key: rec.ID, serverID: rec.ID, editable: rec.Editable, disabled: rec.Disabled})
		for _, col := range g.columns {
			g.baseline[cellKey{row: rec.ID, col: col.Key}] = baselineCell{id: rec.ID, value: rec.Values[col.Key]}
		}
	}
	return nil
}

func (g *Grid) appendColumn(col Column) *Column {
	c := &col
	g.columns = append(g.columns, c)
	g.colIdx[c.Key] = c
	return c
}

func (g *Grid) appendRow(r *row) {
	g.rows = append(g.rows, r)
	g.rowIdx[r.key] = r
}

func (g *Grid) newRowKey() string {
	for {
		g.seq++
		key := fmt.Sprintf("+%d", g.seq)
		if _, ok := g.rowIdx[key]; !ok {
			return key
		}
	}
}

func (g *Grid) entityName(id string) string {
	if name, ok := g.names[id]; ok && name != "" {
		return name
	}
	return id
}

func (g *Grid) rowLabel(r *row) string {
	if g.mode == EntityCentric {
		if r.entity == "" {
			return "new row"
		}
		return g.entityName(r.entity)
	}
	for i, rr := range g.rows {
		if rr == r {
			return fmt.Sprintf("row %d", i+1)
		}
	}
	return r.key
}

// resolveCategory matches id, or label when id is empty, against the category catalog.
// Without a catalog any non-empty id or label is accepted.
func (g *Grid) resolveCategory(id, label string) (string, bool) {
	id, label = strings.TrimSpace(id), strings.TrimSpace(label)
	if len(g.opts.Categories) == 0 {
		if id != "" {
			return id, true
		}
		return label, label != ""
	}
	if _, ok := g.opts.Categories[id]; ok {
		return id, true
	}
	name := id
	if name == "" {
		name = label
	}
	for catID, catLabel := range g.opts.Categories {
		if strings.EqualFold(catLabel, name) {
			return catID, true
		}
	}
	return "", false
}

// resolveEntity matches value against the entity catalog by id, then by name.
// Without a catalog any non-empty value is accepted as an id.
func (g *Grid) resolveEntity(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	if len(g.opts.Entities) == 0 {
		return value, true
	}
	for _, e := range g.opts.Entities {
		if e.ID == value {
			return e.ID, true
		}
	}
	for _, e := range g.opts.Entities {
		if strings.EqualFold(e.Name, value) {
			return e.ID, true
		}
	}
	return "", false
}

// report surfaces msg to the caller and highlights row. It always returns false so callers can abort with it.
func (g *Grid) report(rowKey, msg string) bool {
	if g.cb.OnError != nil {
		g.cb.OnError(msg)
	}
	if rowKey != "" {
		g.highlight = rowKey
		g.highlightUntil = g.now().Add(PulseDuration)
		if g.cb.OnFocus != nil {
			g.cb.OnFocus(rowKey)
		}
	}
	return false
}

// Highlighted returns the row an error was last reported on, while its pulse lasts.
func (g *Grid) Highlighted() (string, bool) {
	if g.highlight == "" || !g.now().Before(g.highlightUntil) {
		return "", false
	}
	return g.highlight, true
}

// CurrentEntities returns the candidate pool AddAllRows uses by default.
func (g *Grid) CurrentEntities() []string {
	return append([]string(nil), g.opts.CurrentEntities...)
}
