package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/benchlab/internal/api"
)

// PageID identifies each page in the console.
type PageID int

const (
	BoardsPage PageID = iota
	SketchPage
	MonitorPage
	HistoryPage
)

var PageOrder = []PageID{
	BoardsPage,
	SketchPage,
	MonitorPage,
	HistoryPage,
}

// Page is the interface every page in the console implements.
type Page interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Page, tea.Cmd)
	View() string
	Name() string
	ShortHelp() []key.Binding
	SetSize(width, height int)
}

// InputCapturer is an optional interface for pages with text inputs.
// When InputCaptured returns true, the console forwards all keys directly
// to the page instead of processing shortcuts like q, ?, left, etc.
type InputCapturer interface {
	InputCaptured() bool
}

// BoardSelectedMsg is broadcast to all pages when a board is selected.
type BoardSelectedMsg struct {
	Board string
}

// SessionMsg carries a refreshed session status.
type SessionMsg struct {
	Session api.SessionResponse
	Err     error
}

// OpenPickerMsg asks the console to show a picker overlay. OnSelect turns
// the chosen value into the message broadcast to the pages.
type OpenPickerMsg struct {
	Title    string
	Noun     string
	Items    []PickerItem
	OnSelect func(value string) tea.Msg
}
