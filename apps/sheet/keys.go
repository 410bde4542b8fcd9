package main

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Left         key.Binding
	Right        key.Binding
	ToggleEdit   key.Binding
	EditCell     key.Binding
	AddRow       key.Binding
	AddAllRows   key.Binding
	AddColumn    key.Binding
	DeleteRow    key.Binding
	DeleteColumn key.Binding
	Confirm      key.Binding
	Cancel       key.Binding
	Save         key.Binding
	Reload       key.Binding
	Export       key.Binding
	Help         key.Binding
	Quit         key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Left:         key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "prev column")),
		Right:        key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next column")),
		ToggleEdit:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit/close row")),
		EditCell:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit cell")),
		AddRow:       key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add row")),
		AddAllRows:   key.NewBinding(key.WithKeys("A"), key.WithHelp("A", "add all students")),
		AddColumn:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "add column")),
		DeleteRow:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete row")),
		DeleteColumn: key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "delete column")),
		Confirm:      key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "confirm")),
		Cancel:       key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "cancel")),
		Save:         key.NewBinding(key.WithKeys("s", "ctrl+s"), key.WithHelp("s", "save")),
		Reload:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Export:       key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "export xlsx")),
		Help:         key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:         key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ToggleEdit, k.EditCell, k.Save, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Left, k.Right, k.ToggleEdit, k.EditCell},
		{k.AddRow, k.AddAllRows, k.AddColumn},
		{k.DeleteRow, k.DeleteColumn, k.Confirm, k.Cancel},
		{k.Save, k.Reload, k.Export, k.Quit},
	}
}
