package pages

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/benchlab/internal/app"
	"github.com/buckleypaul/benchlab/internal/lab"
	"github.com/buckleypaul/benchlab/internal/ui"
)

// BoardsPage lists the lab boards and resets the lab.
type BoardsPage struct {
	client   Client
	boards   []lab.BoardStatus
	selected string
	cursor   int

	confirmReset bool
	resetting    bool
	message      string

	width, height int
}

func NewBoardsPage(c Client) *BoardsPage {
	return &BoardsPage{client: c}
}

func (p *BoardsPage) Init() tea.Cmd { return nil }

func (p *BoardsPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case app.SessionMsg:
		if msg.Err == nil {
			p.boards = msg.Session.Boards
			p.cursor = min(p.cursor, max(len(p.boards)-1, 0))
		}
		return p, nil

	case app.BoardSelectedMsg:
		p.selected = msg.Board
		return p, nil

	case resetDoneMsg:
		p.resetting = false
		switch {
		case msg.Err != nil:
			p.message = ui.ErrorStyle.Render("Reset failed: " + msg.Err.Error())
		case msg.Result.Cleanup != "":
			p.message = ui.ErrorStyle.Render("Hub power cycled, stop firmware failed: " + msg.Result.Cleanup)
		default:
			p.message = ui.SuccessStyle.Render("Lab reset: hub power cycled and stop firmware flashed")
		}
		return p, nil

	case tea.KeyMsg:
		return p.handleKey(msg)
	}
	return p, nil
}

func (p *BoardsPage) handleKey(msg tea.KeyMsg) (app.Page, tea.Cmd) {
	if p.confirmReset {
		p.confirmReset = false
		if msg.String() == "y" {
			p.resetting = true
			p.message = "Resetting lab..."
			return p, reset(p.client)
		}
		p.message = ""
		return p, nil
	}

	switch msg.String() {
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.boards)-1 {
			p.cursor++
		}
	case "enter":
		if p.cursor < len(p.boards) {
			id := p.boards[p.cursor].ID
			return p, func() tea.Msg { return app.BoardSelectedMsg{Board: id} }
		}
	case "R":
		if !p.resetting {
			p.confirmReset = true
			p.message = ui.AccentStyle.Render("Power-cycle the hub and stop every board? [y/N]")
		}
	}
	return p, nil
}

func (p *BoardsPage) View() string {
	var b strings.Builder
	b.WriteString(ui.Title("Boards"))
	b.WriteString("\n")

	if len(p.boards) == 0 {
		b.WriteString(ui.DimStyle.Render("No boards yet."))
		return b.String()
	}

	fmt.Fprintf(&b, "  %-10s %-18s %-22s %-14s %s\n", "ID", "NAME", "FQBN", "DEVICE", "STATE")
	for i, bs := range p.boards {
		cursor := "  "
		if i == p.cursor {
			cursor = ui.AccentStyle.Render("> ")
		}
		id := bs.ID
		if id == p.selected {
			id = ui.BoldStyle.Render(fmt.Sprintf("%-10s", id))
		} else {
			id = fmt.Sprintf("%-10s", id)
		}
		fmt.Fprintf(&b, "%s%s %-18s %-22s %-14s %s\n", cursor, id, bs.Name, bs.FQBN, bs.Device, ui.StateBadge(bs.State))
	}

	if p.message != "" {
		b.WriteString("\n")
		b.WriteString(p.message)
	}
	return b.String()
}

func (p *BoardsPage) Name() string { return "Boards" }

func (p *BoardsPage) ShortHelp() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reset lab")),
	}
}

func (p *BoardsPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}
