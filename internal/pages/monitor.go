package pages

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/benchlab/internal/app"
	"github.com/buckleypaul/benchlab/internal/ui"
)

const (
	monitorFieldBaud = iota
	monitorFieldSeconds
	monitorFieldCount
)

// MonitorPage captures the serial output of the selected board for a fixed
// number of seconds.
type MonitorPage struct {
	client Client
	board  string

	inputs  [monitorFieldCount]textinput.Model
	focused int
	editing bool

	running bool
	spinner spinner.Model
	output  outputPane
	message string

	width, height int
}

func NewMonitorPage(c Client, baudRate, seconds int) *MonitorPage {
	baud := textinput.New()
	baud.Prompt = "Baud rate: "
	baud.CharLimit = 7
	baud.SetValue(strconv.Itoa(baudRate))

	secs := textinput.New()
	secs.Prompt = "Seconds:   "
	secs.CharLimit = 3
	secs.SetValue(strconv.Itoa(seconds))

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &MonitorPage{
		client:  c,
		inputs:  [monitorFieldCount]textinput.Model{baud, secs},
		spinner: sp,
		output:  newOutputPane(),
	}
}

func (p *MonitorPage) Init() tea.Cmd { return nil }

// InputCaptured reports whether a parameter field is being edited.
func (p *MonitorPage) InputCaptured() bool { return p.editing }

func (p *MonitorPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case app.BoardSelectedMsg:
		p.board = msg.Board
		return p, nil

	case monitorDoneMsg:
		if !p.running {
			return p, nil
		}
		p.running = false
		if msg.Err != nil {
			p.message = describeError(msg.Err)
			return p, nil
		}
		r := msg.Result
		p.output.Write(r.Output)
		if r.Output == "" {
			p.message = ui.DimStyle.Render(fmt.Sprintf("No output from %s at %d baud", r.Device, r.BaudRate))
		} else {
			p.message = ui.SuccessBadge("captured") + ui.DimStyle.Render(fmt.Sprintf(" %d bytes from %s in %s", len(r.Output), r.Device, r.Duration))
		}
		return p, nil

	case spinner.TickMsg:
		if !p.running {
			return p, nil
		}
		var cmd tea.Cmd
		p.spinner, cmd = p.spinner.Update(msg)
		return p, cmd

	case tea.KeyMsg:
		return p.handleKey(msg)
	}
	return p, nil
}

func (p *MonitorPage) handleKey(msg tea.KeyMsg) (app.Page, tea.Cmd) {
	if p.editing {
		switch msg.String() {
		case "esc", "enter":
			p.editing = false
			p.inputs[p.focused].Blur()
			if msg.String() == "enter" {
				return p, p.start()
			}
			return p, nil
		case "up", "shift+tab":
			p.inputs[p.focused].Blur()
			p.focused = (p.focused + monitorFieldCount - 1) % monitorFieldCount
			return p, p.inputs[p.focused].Focus()
		case "down", "tab":
			p.inputs[p.focused].Blur()
			p.focused = (p.focused + 1) % monitorFieldCount
			return p, p.inputs[p.focused].Focus()
		}
		var cmd tea.Cmd
		p.inputs[p.focused], cmd = p.inputs[p.focused].Update(msg)
		return p, cmd
	}

	if p.running {
		return p, p.output.Update(msg)
	}

	switch msg.String() {
	case "e":
		p.editing = true
		return p, p.inputs[p.focused].Focus()
	case "m", "enter":
		return p, p.start()
	case "x":
		p.output.Reset()
		p.message = ""
		return p, nil
	}
	return p, p.output.Update(msg)
}

func (p *MonitorPage) start() tea.Cmd {
	if p.board == "" {
		p.message = "Select a board first"
		return nil
	}
	baud, err := strconv.Atoi(strings.TrimSpace(p.inputs[monitorFieldBaud].Value()))
	if err != nil || baud <= 0 {
		p.message = ui.ErrorStyle.Render("Invalid baud rate")
		return nil
	}
	secs, err := strconv.Atoi(strings.TrimSpace(p.inputs[monitorFieldSeconds].Value()))
	if err != nil || secs <= 0 {
		p.message = ui.ErrorStyle.Render("Invalid duration")
		return nil
	}

	p.running = true
	p.message = ""
	p.output.Reset()
	return tea.Batch(monitor(p.client, p.board, baud, secs), p.spinner.Tick)
}

func (p *MonitorPage) View() string {
	var b strings.Builder
	b.WriteString(ui.Title("Serial Monitor"))
	b.WriteString("\n")
	board := p.board
	if board == "" {
		board = ui.DimStyle.Render("(none)")
	}
	fmt.Fprintf(&b, "Board: %s\n", board)
	for _, in := range p.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if p.running {
		b.WriteString(p.spinner.View() + " capturing...\n")
	} else if p.message != "" {
		b.WriteString(p.message + "\n")
	}

	header := b.String()
	outHeight := max(p.height-strings.Count(header, "\n")-2, 5)
	return header + "\n" + p.output.View(p.width, outHeight)
}

func (p *MonitorPage) Name() string { return "Monitor" }

func (p *MonitorPage) ShortHelp() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "capture")),
		key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
		key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear")),
	}
}

func (p *MonitorPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}
