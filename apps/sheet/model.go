package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/grade"
	"github.com/trezcool/miescuela/core/grid"
)

const (
	minColumnWidth = 6
	maxColumnWidth = 24
)

var writeFileFunc = os.WriteFile // mockable

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	dirtyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	promptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(0, 1)
)

type inputMode int

const (
	inputNone inputMode = iota
	inputCell
	inputColumn
)

type (
	savedMsg struct {
		saved bool
		err   error
	}

	reloadedMsg struct {
		err error
	}

	exportedMsg struct {
		path string
		err  error
	}
)

// model edits one grade sheet. Row i of the table is row i of the sheet's grid.
type model struct {
	ctx       context.Context
	svc       *grade.Service
	sheet     *grade.Sheet
	view      grade.SheetView
	exportDir string

	table table.Model
	input textinput.Model
	help  help.Model
	keys  keyMap

	mode      inputMode
	editRow   string
	editCol   string
	col       int
	status    string
	err       string
	quitArmed bool
}

func newModel(ctx context.Context, svc *grade.Service, sh *grade.Sheet, exportDir string) model {
	t := table.New(table.WithFocused(true), table.WithHeight(15))
	t.SetStyles(tableStyles())

	in := textinput.New()
	in.CharLimit = 120

	m := model{
		ctx:       ctx,
		svc:       svc,
		sheet:     sh,
		exportDir: exportDir,
		table:     t,
		input:     in,
		help:      help.New(),
		keys:      defaultKeyMap(),
	}
	m.refresh()
	return m
}

func tableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#F0F0F0")).
		Background(lipgloss.Color("#3A3A3A")).
		Bold(false)
	return styles
}

func columnTitle(col grid.Column) string {
	if col.Date == "" {
		return col.Label
	}
	return col.Label + " " + col.Date
}

func rowMarker(r grid.RowView) string {
	switch r.State {
	case grid.StateEditing:
		return "> "
	case grid.StatePendingDeletion:
		return "x "
	}
	if r.Added {
		return "+ "
	}
	return "  "
}

// refresh snapshots the sheet and rebuilds the table from it.
func (m *model) refresh() {
	m.view = m.sheet.View()
	if len(m.view.Notices) > 0 {
		m.err = strings.Join(m.view.Notices, "\n")
	}

	g := m.view.Grid
	if m.col >= len(g.Columns) {
		m.col = len(g.Columns) - 1
	}
	if m.col < 0 {
		m.col = 0
	}

	widths := make([]int, len(g.Columns))
	rows := make([]table.Row, 0, len(g.Rows))
	for _, r := range g.Rows {
		row := make(table.Row, len(g.Columns))
		for i, c := range r.Cells {
			value := c.Value
			if i == 0 {
				value = rowMarker(r) + value
			}
			if c.Dirty {
				value += "*"
			}
			row[i] = value
			if w := lipgloss.Width(value); w > widths[i] {
				widths[i] = w
			}
		}
		rows = append(rows, row)
	}

	cols := make([]table.Column, 0, len(g.Columns))
	for i, c := range g.Columns {
		title := columnTitle(c)
		if i == m.col {
			title = "[" + title + "]"
		}
		w := widths[i]
		if tw := lipgloss.Width(title); tw > w {
			w = tw
		}
		if w < minColumnWidth {
			w = minColumnWidth
		}
		if w > maxColumnWidth {
			w = maxColumnWidth
		}
		cols = append(cols, table.Column{Title: title, Width: w})
	}

	// clear rows before swapping columns: rows render against the current columns
	m.table.SetRows(nil)
	m.table.SetColumns(cols)
	m.table.SetRows(rows)

	cursor := m.table.Cursor()
	if m.view.Focus != "" {
		for i, r := range g.Rows {
			if r.Key == m.view.Focus {
				cursor = i
				break
			}
		}
	}
	if cursor >= len(rows) {
		cursor = len(rows) - 1
	}
	if cursor < 0 {
		cursor = 0
	}
	m.table.SetCursor(cursor)
}

func (m model) selectedRow() (grid.RowView, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.view.Grid.Rows) {
		return grid.RowView{}, false
	}
	return m.view.Grid.Rows[i], true
}

func (m model) selectedColumn() (grid.Column, bool) {
	if m.col < 0 || m.col >= len(m.view.Grid.Columns) {
		return grid.Column{}, false
	}
	return m.view.Grid.Columns[m.col], true
}

// apply runs fn on the sheet's grid and refreshes the table.
func (m *model) apply(fn func(g *grid.Grid) error) {
	err := m.sheet.With(fn)
	m.refresh()
	if err != nil && m.err == "" {
		m.err = err.Error()
	}
}

// parseColumn reads "label [YYYY-MM-DD]" into a column to add.
func parseColumn(s string) grid.Column {
	fields := strings.Fields(s)
	if n := len(fields); n > 1 {
		if _, err := core.ParseDate(fields[n-1]); err == nil {
			return grid.Column{Label: strings.Join(fields[:n-1], " "), Date: fields[n-1]}
		}
	}
	return grid.Column{Label: strings.Join(fields, " ")}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		if h := msg.Height - 8; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case savedMsg:
		m.refresh()
		switch {
		case msg.err != nil:
			if m.err == "" {
				m.err = "save failed: " + msg.err.Error()
			}
		case msg.saved:
			m.status = "saved"
		default:
			m.status = "nothing to save"
		}
		return m, nil

	case reloadedMsg:
		m.refresh()
		if msg.err != nil {
			m.err = "reload failed: " + msg.err.Error()
		} else {
			m.status = "reloaded"
		}
		return m, nil

	case exportedMsg:
		if msg.err != nil {
			m.err = "export failed: " + msg.err.Error()
		} else {
			m.status = "exported to " + msg.path
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = inputNone
		m.input.Blur()
		return m, nil

	case tea.KeyEnter:
		value := m.input.Value()
		mode := m.mode
		m.mode = inputNone
		m.input.Blur()
		m.status, m.err = "", ""

		if mode == inputCell {
			row, col := m.editRow, m.editCol
			m.apply(func(g *grid.Grid) error { return g.UpdateCell(value, row, col) })
			return m, nil
		}
		var added string
		m.apply(func(g *grid.Grid) error {
			var err error
			added, err = g.AddColumn(parseColumn(value))
			return err
		})
		if added != "" {
			for i, c := range m.view.Grid.Columns {
				if c.Key == added {
					m.col = i
				}
			}
			m.refresh()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status, m.err = "", ""

	if key.Matches(msg, m.keys.Quit) {
		if m.view.Grid.HasChanges && !m.quitArmed {
			m.quitArmed = true
			m.status = "unsaved changes, press q again to quit"
			return m, nil
		}
		return m, tea.Quit
	}
	m.quitArmed = false

	if m.view.Grid.PendingDeletion != nil {
		switch {
		case key.Matches(msg, m.keys.Confirm):
			m.apply(func(g *grid.Grid) error { return g.ConfirmDeletion() })
		case key.Matches(msg, m.keys.Cancel):
			m.apply(func(g *grid.Grid) error { return g.CancelDeletion() })
		default:
			m.status = "press y to delete or n to keep it"
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Left):
		if m.col > 0 {
			m.col--
			m.refresh()
		}

	case key.Matches(msg, m.keys.Right):
		if m.col < len(m.view.Grid.Columns)-1 {
			m.col++
			m.refresh()
		}

	case key.Matches(msg, m.keys.ToggleEdit):
		if r, ok := m.selectedRow(); ok {
			m.apply(func(g *grid.Grid) error { return g.ToggleRowEdit(r.Key) })
		}

	case key.Matches(msg, m.keys.EditCell):
		r, ok := m.selectedRow()
		col, colOK := m.selectedColumn()
		if !ok || !colOK {
			return m, nil
		}
		if r.State != grid.StateEditing {
			m.err = "press e to edit the row first"
			return m, nil
		}
		m.editRow, m.editCol = r.Key, col.Key
		m.mode = inputCell
		m.input.Placeholder = columnTitle(col)
		for _, c := range r.Cells {
			if c.Column == col.Key {
				m.input.SetValue(c.Value)
			}
		}
		m.input.Focus()
		return m, textinput.Blink

	case key.Matches(msg, m.keys.AddRow):
		var added bool
		m.apply(func(g *grid.Grid) error {
			_, err := g.AddRow()
			added = err == nil
			return err
		})
		if added {
			m.table.SetCursor(len(m.view.Grid.Rows) - 1)
		}

	case key.Matches(msg, m.keys.AddAllRows):
		var n int
		m.apply(func(g *grid.Grid) error {
			var err error
			n, err = g.AddAllRows(g.CurrentEntities())
			return err
		})
		if m.err == "" {
			m.status = fmt.Sprintf("added %d rows", n)
		}

	case key.Matches(msg, m.keys.AddColumn):
		m.mode = inputColumn
		m.input.SetValue("")
		m.input.Placeholder = "type and date, e.g. oral 2024-03-08"
		m.input.Focus()
		return m, textinput.Blink

	case key.Matches(msg, m.keys.DeleteRow):
		index := m.table.Cursor()
		m.apply(func(g *grid.Grid) error { return g.RequestRowDeletion(index) })

	case key.Matches(msg, m.keys.DeleteColumn):
		if col, ok := m.selectedColumn(); ok {
			m.apply(func(g *grid.Grid) error { return g.RequestColumnDeletion(col.Key) })
		}

	case key.Matches(msg, m.keys.Save):
		m.status = "saving..."
		return m, m.saveCmd()

	case key.Matches(msg, m.keys.Reload):
		return m, m.reloadCmd()

	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) saveCmd() tea.Cmd {
	ctx, svc, sh := m.ctx, m.svc, m.sheet
	return func() tea.Msg {
		saved, err := svc.SaveSheet(ctx, sh)
		return savedMsg{saved: saved, err: err}
	}
}

func (m model) reloadCmd() tea.Cmd {
	ctx, svc, sh := m.ctx, m.svc, m.sheet
	return func() tea.Msg {
		return reloadedMsg{err: svc.Reload(ctx, sh)}
	}
}

func (m model) exportCmd() tea.Cmd {
	svc, sh := m.svc, m.sheet
	path := filepath.Join(m.exportDir, sh.ExportFilename())
	return func() tea.Msg {
		buf, err := svc.ExportSheet(sh)
		if err != nil {
			return exportedMsg{err: err}
		}
		return exportedMsg{path: path, err: writeFileFunc(path, buf.Bytes(), 0o644)}
	}
}

func (m model) View() string {
	var b strings.Builder

	g := m.view.Grid
	b.WriteString(titleStyle.Render(m.view.Title))
	switch {
	case !g.Editable:
		b.WriteString(mutedStyle.Render("  read only"))
	case g.HasChanges:
		b.WriteString(dirtyStyle.Render("  unsaved changes"))
	}
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	switch m.mode {
	case inputCell:
		b.WriteString(promptStyle.Render("Value: " + m.input.View()))
		b.WriteString("\n")
	case inputColumn:
		b.WriteString(promptStyle.Render("New column: " + m.input.View()))
		b.WriteString("\n")
	}

	if pd := g.PendingDeletion; pd != nil {
		what := "column " + pd.Column
		if pd.Row != "" {
			what = "row " + pd.Row
			for _, r := range g.Rows {
				if r.Key == pd.Row && r.Label != "" {
					what = "row " + r.Label
				}
			}
		} else {
			for _, c := range g.Columns {
				if c.Key == pd.Column {
					what = "column " + columnTitle(c)
				}
			}
		}
		b.WriteString(dirtyStyle.Render(fmt.Sprintf("Delete %s? (y/n)", what)))
		b.WriteString("\n")
	}
	if m.err != "" {
		b.WriteString(errorStyle.Render(m.err))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(m.help.View(m.keys))
	return b.String()
}
