package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up          key.Binding
	Down        key.Binding
	Enter       key.Binding
	Back        key.Binding
	Toggle      key.Binding
	RangeToggle key.Binding
	CheckAll    key.Binding
	UncheckAll  key.Binding
	More        key.Binding
	Pick        key.Binding
	MoveHere    key.Binding
	CopyHere    key.Binding
	ClearPicked key.Binding
	Delete      key.Binding
	Refresh     key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Enter:       key.NewBinding(key.WithKeys("enter", "l"), key.WithHelp("enter", "open folder")),
		Back:        key.NewBinding(key.WithKeys("backspace", "h"), key.WithHelp("bksp", "up one level")),
		Toggle:      key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle checkbox")),
		RangeToggle: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "toggle range")),
		CheckAll:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "check all")),
		UncheckAll:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "uncheck all")),
		More:        key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "load more")),
		Pick:        key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pick checked")),
		MoveHere:    key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "move picked here")),
		CopyHere:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy picked here")),
		ClearPicked: key.NewBinding(key.WithKeys("C"), key.WithHelp("C", "clear picked")),
		Delete:      key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete checked")),
		Refresh:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Pick, k.MoveHere, k.Delete, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter, k.Back, k.More, k.Refresh},
		{k.Toggle, k.RangeToggle, k.CheckAll, k.UncheckAll},
		{k.Pick, k.MoveHere, k.CopyHere, k.ClearPicked, k.Delete},
		{k.Help, k.Quit},
	}
}
