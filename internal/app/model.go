package app

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/benchlab/internal/api"
	"github.com/buckleypaul/benchlab/internal/arbiter"
	"github.com/buckleypaul/benchlab/internal/lab"
	"github.com/buckleypaul/benchlab/internal/session"
	"github.com/buckleypaul/benchlab/internal/ui"
)

// sessionRefresh is how often the session status is re-fetched.
const sessionRefresh = 5 * time.Second

type FocusArea int

const (
	FocusSidebar FocusArea = iota
	FocusContent
)

// SessionSource fetches the session status.
type SessionSource interface {
	Session(ctx context.Context) (api.SessionResponse, error)
}

type tickMsg time.Time

type Model struct {
	pages      map[PageID]Page
	activePage PageID
	focus      FocusArea
	width      int
	height     int
	showHelp   bool

	source        SessionSource
	session       *api.SessionResponse
	sessionErr    error
	lastFetch     time.Time
	now           func() time.Time
	selectedBoard string

	picker         *Picker
	pickerOnSelect func(string) tea.Msg
}

func New(pages map[PageID]Page, source SessionSource) Model {
	return Model{
		pages:  pages,
		source: source,
		now:    time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetchSession(), tick()}
	for _, p := range m.pages {
		if cmd := p.Init(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetchSession() tea.Cmd {
	src := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := src.Session(ctx)
		return SessionMsg{Session: s, Err: err}
	}
}

// remaining is the time left before the stop firmware is flashed.
func (m Model) remaining() time.Duration {
	if m.session == nil {
		return 0
	}
	end, err := session.ParseTime(m.session.EffectiveEnd)
	if err != nil {
		return 0
	}
	return end.Sub(m.now())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		contentWidth := m.width - sidebarWidth
		contentHeight := m.height - 2 - 1 // status bar + session bar
		for _, p := range m.pages {
			p.SetSize(contentWidth, contentHeight)
		}
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{tick()}
		if m.now().Sub(m.lastFetch) >= sessionRefresh {
			m.lastFetch = m.now()
			cmds = append(cmds, m.fetchSession())
		}
		return m, tea.Batch(cmds...)

	case SessionMsg:
		m.sessionErr = msg.Err
		cmds := []tea.Cmd{m.broadcast(msg)}
		if msg.Err == nil {
			s := msg.Session
			m.session = &s
			if m.selectedBoard == "" && len(s.Boards) > 0 {
				m.selectedBoard = s.Boards[0].ID
				cmds = append(cmds, m.broadcast(BoardSelectedMsg{Board: m.selectedBoard}))
			}
		}
		return m, tea.Batch(cmds...)

	case OpenPickerMsg:
		m.picker = NewPicker(msg.Title, msg.Noun)
		m.picker.SetItems(msg.Items)
		m.picker.SetSize(m.width-sidebarWidth, m.height-2-1)
		m.pickerOnSelect = msg.OnSelect
		return m, nil

	case PickerSelectedMsg:
		onSelect := m.pickerOnSelect
		m.picker = nil
		m.pickerOnSelect = nil
		if onSelect == nil {
			return m, nil
		}
		next := onSelect(msg.Value)
		return m, func() tea.Msg { return next }

	case PickerClosedMsg:
		m.picker = nil
		m.pickerOnSelect = nil
		return m, nil

	case BoardSelectedMsg:
		m.selectedBoard = msg.Board
		return m, m.broadcast(msg)

	case tea.KeyMsg:
		if m.picker != nil {
			var cmd tea.Cmd
			m.picker, cmd = m.picker.Update(msg)
			return m, cmd
		}

		// When a page has an active text input, forward all keys
		// directly to the page. Only ctrl+c still quits.
		if m.focus == FocusContent {
			if ic, ok := m.pages[m.activePage].(InputCapturer); ok && ic.InputCaptured() {
				if msg.String() == "ctrl+c" {
					return m, tea.Quit
				}
				return m, m.updateActive(msg)
			}
		}

		switch {
		case key.Matches(msg, GlobalKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, GlobalKeys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, GlobalKeys.ToggleFocus):
			if m.focus == FocusSidebar {
				m.focus = FocusContent
			} else {
				m.focus = FocusSidebar
			}
			return m, nil
		case key.Matches(msg, GlobalKeys.NextBoard):
			return m.cycleBoard(1)
		case key.Matches(msg, GlobalKeys.PrevBoard):
			return m.cycleBoard(-1)
		case key.Matches(msg, GlobalKeys.Refresh):
			m.lastFetch = m.now()
			return m, m.fetchSession()
		}

		if m.focus == FocusSidebar {
			if key.Matches(msg, GlobalKeys.BoardPicker) {
				return m, m.openBoardPicker()
			}
			switch msg.String() {
			case "up":
				m.prevPage()
			case "down":
				m.nextPage()
			case "enter", "right":
				m.focus = FocusContent
			}
			return m, nil
		}

		if msg.String() == "left" {
			m.focus = FocusSidebar
			return m, nil
		}
		return m, m.updateActive(msg)
	}

	// Command results reach every page so the one that started the
	// command sees its response.
	return m, m.broadcast(msg)
}

// idle reports whether a board can take a new operation.
func idle(b lab.BoardStatus) bool {
	return b.State == arbiter.Idle.String()
}

func (m Model) openBoardPicker() tea.Cmd {
	if m.session == nil || len(m.session.Boards) == 0 {
		return nil
	}
	items := make([]PickerItem, 0, len(m.session.Boards))
	for _, b := range m.session.Boards {
		detail := b.FQBN
		if b.Device != "" {
			detail = b.Device + "  " + detail
		}
		items = append(items, PickerItem{
			Label:   b.ID + " " + b.Name,
			Value:   b.ID,
			Detail:  detail,
			State:   b.State,
			Default: b.ID == m.selectedBoard,
			Busy:    !idle(b),
		})
	}
	return func() tea.Msg {
		return OpenPickerMsg{
			Title: "Select Board",
			Noun:  "boards",
			Items: items,
			OnSelect: func(v string) tea.Msg {
				return BoardSelectedMsg{Board: v}
			},
		}
	}
}

// cycleBoard selects the next idle board after the current one, wrapping
// around. Busy boards are skipped.
func (m Model) cycleBoard(step int) (tea.Model, tea.Cmd) {
	if m.session == nil {
		return m, nil
	}
	boards := m.session.Boards
	n := len(boards)
	at := -1
	for i, b := range boards {
		if b.ID == m.selectedBoard {
			at = i
		}
	}
	if at < 0 && step < 0 {
		at = 0
	}
	for k := 1; k <= n; k++ {
		b := boards[((at+step*k)%n+n)%n]
		if b.ID != m.selectedBoard && idle(b) {
			m.selectedBoard = b.ID
			msg := BoardSelectedMsg{Board: b.ID}
			return m, m.broadcast(msg)
		}
	}
	return m, nil
}

func (m Model) updateActive(msg tea.Msg) tea.Cmd {
	page := m.pages[m.activePage]
	newPage, cmd := page.Update(msg)
	m.pages[m.activePage] = newPage
	return cmd
}

func (m Model) broadcast(msg tea.Msg) tea.Cmd {
	var cmds []tea.Cmd
	for id, page := range m.pages {
		newPage, cmd := page.Update(msg)
		m.pages[id] = newPage
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	contentWidth := m.width - sidebarWidth
	contentHeight := m.height - 2 - 1 // status bar + session bar

	page := m.pages[m.activePage]

	sessionBar := renderSessionBar(m.session, m.remaining(), m.selectedBoard, m.width, m.focus == FocusSidebar)
	var boards []lab.BoardStatus
	if m.session != nil {
		boards = m.session.Boards
	}
	sidebar := renderSidebar(PageOrder, m.activePage, m.pages, boards, m.selectedBoard, contentHeight, m.focus == FocusSidebar)

	body := page.View()
	if m.showHelp {
		body = renderHelp(page.ShortHelp())
	} else if m.sessionErr != nil && m.session == nil {
		body = ui.ErrorStyle.Render("Cannot reach the lab: " + m.sessionErr.Error())
	}
	content := ui.ContentStyle.
		Width(contentWidth).
		Height(contentHeight).
		Render(body)

	if m.picker != nil {
		m.picker.SetSize(contentWidth, contentHeight)
		content = lipgloss.Place(
			contentWidth, contentHeight,
			lipgloss.Center, lipgloss.Center,
			m.picker.View(),
		)
	}

	statusBar := renderStatusBar(page.ShortHelp(), m.width, m.focus)

	return renderLayout(sessionBar, sidebar, content, statusBar)
}

func (m *Model) nextPage() {
	for i, id := range PageOrder {
		if id == m.activePage {
			m.activePage = PageOrder[(i+1)%len(PageOrder)]
			return
		}
	}
}

func (m *Model) prevPage() {
	for i, id := range PageOrder {
		if id == m.activePage {
			m.activePage = PageOrder[(i-1+len(PageOrder))%len(PageOrder)]
			return
		}
	}
}
