package pages

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wrap"

	"github.com/buckleypaul/benchlab/internal/ui"
)

// outputPane is a scrollable, hard-wrapped text area.
type outputPane struct {
	text     strings.Builder
	viewport viewport.Model
}

func newOutputPane() outputPane {
	return outputPane{viewport: viewport.New(0, 0)}
}

func (o *outputPane) Reset() {
	o.text.Reset()
	o.refresh()
}

func (o *outputPane) Write(s string) {
	o.text.WriteString(s)
	o.refresh()
	o.viewport.GotoBottom()
}

func (o *outputPane) String() string { return o.text.String() }

func (o *outputPane) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	o.viewport, cmd = o.viewport.Update(msg)
	return cmd
}

// View renders the pane inside a top border, resizing the viewport to fit.
func (o *outputPane) View(width, height int) string {
	contentWidth := max(width-3, 10)
	contentHeight := max(height-2, 3)

	oldWidth := o.viewport.Width
	o.viewport.Width = contentWidth
	o.viewport.Height = contentHeight
	if oldWidth != contentWidth {
		o.refresh()
	}

	style := lipgloss.NewStyle().
		Width(width).
		Height(height).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderTop(true).
		BorderForeground(ui.Surface).
		PaddingLeft(1)
	return style.Render(o.viewport.View())
}

func (o *outputPane) refresh() {
	content := o.text.String()
	if o.viewport.Width <= 0 {
		o.viewport.SetContent(content)
		return
	}
	// Hard wrap: compiler paths have no spaces to break on.
	lines := strings.Split(wrap.String(content, o.viewport.Width), "\n")
	for i, line := range lines {
		if ansi.PrintableRuneWidth(line) > o.viewport.Width {
			lines[i] = truncate.String(line, uint(o.viewport.Width))
		}
	}
	o.viewport.SetContent(strings.Join(lines, "\n"))
}
