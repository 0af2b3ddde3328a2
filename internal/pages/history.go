package pages

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/benchlab/internal/app"
	"github.com/buckleypaul/benchlab/internal/store"
	"github.com/buckleypaul/benchlab/internal/ui"
)

// historyLimit is how many entries the page shows.
const historyLimit = 50

type historyEntry struct {
	at      time.Time
	kind    string
	board   string
	ok      bool
	details string
}

// HistoryPage shows the operations recorded in this lab.
type HistoryPage struct {
	client  Client
	entries []historyEntry
	loaded  bool
	message string

	width, height int
}

func NewHistoryPage(c Client) *HistoryPage {
	return &HistoryPage{client: c}
}

func (p *HistoryPage) Init() tea.Cmd { return fetchHistory(p.client) }

func (p *HistoryPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case historyMsg:
		p.loaded = true
		if msg.Err != nil {
			p.message = describeError(msg.Err)
			return p, nil
		}
		p.message = ""
		p.entries = flattenHistory(msg.History)
		return p, nil

	// Any finished operation adds a record.
	case compileDoneMsg, uploadDoneMsg, monitorDoneMsg, resetDoneMsg:
		return p, fetchHistory(p.client)

	case tea.KeyMsg:
		if msg.String() == "r" {
			return p, fetchHistory(p.client)
		}
	}
	return p, nil
}

// flattenHistory merges all record kinds, newest first.
func flattenHistory(h store.History) []historyEntry {
	var out []historyEntry
	for _, r := range h.Compiles {
		out = append(out, historyEntry{r.Timestamp, "compile", r.Board, r.Success, r.Duration})
	}
	for _, r := range h.Uploads {
		out = append(out, historyEntry{r.Timestamp, "upload/" + r.Target, r.Board, r.Success, r.Device})
	}
	for _, r := range h.Monitors {
		out = append(out, historyEntry{r.Timestamp, "monitor", r.Board, true, fmt.Sprintf("%d bytes @ %d", r.Bytes, r.BaudRate)})
	}
	for _, r := range h.Cleanups {
		details := r.Duration
		if len(r.Failed) > 0 {
			details = "failed: " + strings.Join(r.Failed, ", ")
		}
		out = append(out, historyEntry{r.Timestamp, "cleanup/" + r.Pass, "all", r.Success, details})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at.After(out[j].at) })
	if len(out) > historyLimit {
		out = out[:historyLimit]
	}
	return out
}

func (p *HistoryPage) View() string {
	var b strings.Builder
	b.WriteString(ui.Title("History"))
	b.WriteString("\n")

	if p.message != "" {
		b.WriteString(p.message)
		return b.String()
	}
	if !p.loaded {
		b.WriteString(ui.DimStyle.Render("Loading..."))
		return b.String()
	}
	if len(p.entries) == 0 {
		b.WriteString(ui.DimStyle.Render("Nothing recorded yet."))
		return b.String()
	}

	rows := max(p.height-4, 1)
	for i, e := range p.entries {
		if i >= rows {
			break
		}
		status := ui.SuccessStyle.Render("ok  ")
		if !e.ok {
			status = ui.ErrorStyle.Render("fail")
		}
		fmt.Fprintf(&b, "%s  %s  %-16s %-10s %s\n",
			ui.DimStyle.Render(e.at.Local().Format("15:04:05")), status, e.kind, e.board, ui.DimStyle.Render(e.details))
	}
	return b.String()
}

func (p *HistoryPage) Name() string { return "History" }

func (p *HistoryPage) ShortHelp() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	}
}

func (p *HistoryPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}
