package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/buckleypaul/benchlab/internal/api"
	"github.com/buckleypaul/benchlab/internal/lab"
	"github.com/buckleypaul/benchlab/internal/ui"
)

const sidebarWidth = 20 // 18 content + 2 border/padding

// renderSessionBar shows the booked user, the selected board and the time
// left before the boards are stopped.
func renderSessionBar(sess *api.SessionResponse, remaining time.Duration, selectedBoard string, width int, sidebarFocused bool) string {
	boardDisplay := selectedBoard
	if boardDisplay == "" {
		boardDisplay = "(none)"
	}

	var content string
	switch {
	case sess == nil:
		content = "Connecting..."
	case sess.Expired:
		content = fmt.Sprintf("User: %s  Board: %s  ", sess.User, boardDisplay) + ui.ErrorStyle.Render("session expired")
	default:
		content = fmt.Sprintf("User: %s  Board: %s  Time left: %s", sess.User, boardDisplay, ui.Countdown(remaining))
	}
	if sidebarFocused {
		content += ui.DimStyle.Render("  [b] change board")
	}
	return ui.StatusBarStyle.Width(width).Render(truncate.StringWithTail(content, uint(max(width-2, 0)), "…"))
}

// renderSidebar lists the pages and, below them, every board with a dot
// colored by its state. The selected board is marked.
func renderSidebar(pages []PageID, active PageID, pageMap map[PageID]Page, boards []lab.BoardStatus, selected string, height int, focused bool) string {
	var b strings.Builder
	if focused {
		b.WriteString(ui.BoldStyle.Render("benchlab [FOCUSED]"))
	} else {
		b.WriteString(ui.TitleStyle.Render("benchlab"))
	}
	b.WriteString("\n\n")

	for _, id := range pages {
		p := pageMap[id]
		if id == active {
			b.WriteString(ui.SidebarActiveStyle.Render("▸ " + p.Name()))
		} else {
			b.WriteString(ui.SidebarItemStyle.Render("  " + p.Name()))
		}
		b.WriteString("\n")
	}

	if len(boards) > 0 {
		b.WriteString("\n")
		b.WriteString(ui.DimStyle.Render("Boards"))
		b.WriteString("\n")
	}
	for _, bs := range boards {
		marker := "  "
		if bs.ID == selected {
			marker = "▸ "
		}
		b.WriteString(marker + ui.StateDot(bs.State) + " " + truncate.StringWithTail(bs.ID, sidebarWidth-7, "…"))
		b.WriteString("\n")
	}

	style := ui.SidebarStyle.Height(height)
	if focused {
		style = style.BorderForeground(ui.Primary)
	}
	return style.Render(b.String())
}

func renderStatusBar(pageHelp []key.Binding, width int, focus FocusArea) string {
	var parts []string

	if focus == FocusSidebar {
		parts = append(parts,
			ui.StatusKey("↑/↓", "navigate"),
			ui.StatusKey("enter", "select"),
			ui.StatusKey("b", "board"),
			ui.StatusKey("[/]", "cycle"),
		)
	} else {
		for _, kb := range pageHelp {
			if kb.Enabled() {
				parts = append(parts, ui.StatusKey(kb.Help().Key, kb.Help().Desc))
			}
		}
	}

	parts = append(parts,
		ui.StatusKey("tab", "focus"),
		ui.StatusKey("?", "help"),
		ui.StatusKey("q", "quit"),
	)

	return ui.StatusBarStyle.Width(width).Render(strings.Join(parts, "  "))
}

func renderHelp(pageHelp []key.Binding) string {
	var b strings.Builder
	b.WriteString(ui.Title("Keys"))
	b.WriteString("\n")
	all := append(GlobalKeys.All(), pageHelp...)
	for _, kb := range all {
		h := kb.Help()
		fmt.Fprintf(&b, "  %-8s %s\n", h.Key, ui.DimStyle.Render(h.Desc))
	}
	return b.String()
}

func renderLayout(sessionBar, sidebar, content, statusBar string) string {
	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, content)
	return lipgloss.JoinVertical(lipgloss.Left, sessionBar, main, statusBar)
}
