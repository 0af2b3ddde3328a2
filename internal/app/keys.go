package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the console-wide bindings. Board keys work from any page
// unless the page is capturing text.
type KeyMap struct {
	ToggleFocus key.Binding
	BoardPicker key.Binding
	NextBoard   key.Binding
	PrevBoard   key.Binding
	Refresh     key.Binding
	Help        key.Binding
	Quit        key.Binding
}

var GlobalKeys = KeyMap{
	ToggleFocus: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "toggle focus")),
	BoardPicker: key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "choose board")),
	NextBoard:   key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next free board")),
	PrevBoard:   key.NewBinding(key.WithKeys("["), key.WithHelp("[", "previous free board")),
	Refresh:     key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh session")),
	Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// All lists the bindings in help order.
func (k KeyMap) All() []key.Binding {
	return []key.Binding{k.ToggleFocus, k.BoardPicker, k.NextBoard, k.PrevBoard, k.Refresh, k.Help, k.Quit}
}
