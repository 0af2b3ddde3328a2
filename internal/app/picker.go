package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/buckleypaul/benchlab/internal/ui"
)

// PickerItem is one row of the selector: a board or an example sketch.
type PickerItem struct {
	Label  string
	Value  string
	Detail string // device and FQBN for boards, file name for examples
	State  string // board state; empty for examples

	// Default marks the row the cursor starts on.
	Default bool
	// Busy rows are listed but cannot be chosen.
	Busy bool
}

func (it PickerItem) haystack() string {
	return strings.ToLower(it.Label + " " + it.Value + " " + it.Detail)
}

// PickerSelectedMsg is sent when the user selects an item.
type PickerSelectedMsg struct {
	Value string
}

// PickerClosedMsg is sent when the user closes the picker without selecting.
type PickerClosedMsg struct{}

// Picker is the overlay used to choose a board or an example. Rows are
// narrowed by every whitespace-separated term typed into the filter.
type Picker struct {
	title    string
	noun     string
	items    []PickerItem
	filtered []PickerItem
	input    textinput.Model
	cursor   int
	width    int
}

const maxPickerRows = 10

// NewPicker creates a picker. noun names the items in the footer, e.g. "boards".
func NewPicker(title, noun string) *Picker {
	ti := textinput.New()
	ti.Placeholder = "filter by name, device or fqbn"
	ti.Prompt = "/ "
	ti.Focus()
	ti.CharLimit = 64

	return &Picker{title: title, noun: noun, input: ti}
}

// SetItems replaces the rows and puts the cursor on the default one.
func (p *Picker) SetItems(items []PickerItem) {
	p.items = items
	p.filter()
	for i, it := range p.filtered {
		if it.Default && !it.Busy {
			p.cursor = i
			return
		}
	}
}

func (p *Picker) SetSize(w, _ int) {
	p.width = w
}

// Selected returns the row under the cursor, if it can be chosen.
func (p *Picker) Selected() (PickerItem, bool) {
	if p.cursor < 0 || p.cursor >= len(p.filtered) {
		return PickerItem{}, false
	}
	it := p.filtered[p.cursor]
	return it, !it.Busy
}

func (p *Picker) Update(msg tea.Msg) (*Picker, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			return p, func() tea.Msg { return PickerClosedMsg{} }
		case "enter":
			it, ok := p.Selected()
			if !ok {
				return p, nil
			}
			return p, func() tea.Msg { return PickerSelectedMsg{Value: it.Value} }
		case "up", "ctrl+p":
			p.move(-1)
			return p, nil
		case "down", "ctrl+n":
			p.move(1)
			return p, nil
		}
	}

	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	p.filter()
	return p, cmd
}

// move steps the cursor over busy rows. It stays put when there is no
// free row in that direction.
func (p *Picker) move(step int) {
	for i := p.cursor + step; i >= 0 && i < len(p.filtered); i += step {
		if !p.filtered[i].Busy {
			p.cursor = i
			return
		}
	}
}

func (p *Picker) filter() {
	terms := strings.Fields(strings.ToLower(p.input.Value()))
	p.filtered = nil
	for _, it := range p.items {
		hay := it.haystack()
		match := true
		for _, t := range terms {
			if !strings.Contains(hay, t) {
				match = false
				break
			}
		}
		if match {
			p.filtered = append(p.filtered, it)
		}
	}

	p.cursor = min(p.cursor, len(p.filtered)-1)
	p.cursor = max(p.cursor, 0)
	if len(p.filtered) > 0 && p.filtered[p.cursor].Busy {
		at := p.cursor
		if p.move(1); p.cursor == at {
			p.move(-1)
		}
	}
}

func (p *Picker) busy() int {
	n := 0
	for _, it := range p.items {
		if it.Busy {
			n++
		}
	}
	return n
}

func (p *Picker) View() string {
	boxWidth := min(max(p.width-4, 36), 72)
	inner := boxWidth - 4

	var b strings.Builder
	p.input.Width = inner - 3
	b.WriteString(p.input.View())
	b.WriteString("\n\n")

	// Keep the cursor inside the visible window.
	start := max(p.cursor-maxPickerRows+1, 0)
	end := min(start+maxPickerRows, len(p.filtered))

	cursorStyle := lipgloss.NewStyle().Foreground(ui.Primary).Bold(true)
	for i := start; i < end; i++ {
		it := p.filtered[i]
		row := it.Label
		if it.State != "" {
			row += " " + ui.StateBadge(it.State)
		}
		if it.Detail != "" {
			row += "  " + ui.DimStyle.Render(it.Detail)
		}
		if it.Default {
			row += ui.DimStyle.Render("  (default)")
		}
		row = truncate.StringWithTail(row, uint(max(inner-2, 0)), "…")

		switch {
		case it.Busy:
			b.WriteString("  " + ui.DimStyle.Render(row))
		case i == p.cursor:
			b.WriteString(cursorStyle.Render("▸ ") + row)
		default:
			b.WriteString("  " + row)
		}
		b.WriteString("\n")
	}
	if len(p.filtered) == 0 {
		b.WriteString(ui.DimStyle.Render("  nothing matches"))
		b.WriteString("\n")
	}

	footer := fmt.Sprintf("%d/%d %s", len(p.filtered), len(p.items), p.noun)
	if n := p.busy(); n > 0 {
		footer += fmt.Sprintf(", %d busy", n)
	}
	b.WriteString("\n")
	b.WriteString(ui.DimStyle.Render(footer + "  esc:close"))

	return ui.Panel(ui.BoldStyle.Render(p.title), b.String(), boxWidth, 0, true)
}
