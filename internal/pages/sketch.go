package pages

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/benchlab/internal/api"
	"github.com/buckleypaul/benchlab/internal/app"
	"github.com/buckleypaul/benchlab/internal/toolchain"
	"github.com/buckleypaul/benchlab/internal/ui"
)

// loadExampleMsg is produced by the example picker.
type loadExampleMsg struct {
	File string
}

// SketchPage loads a sketch, compiles it and uploads it to the selected
// board.
type SketchPage struct {
	client Client
	board  string

	source     string
	sourceName string

	fileInput textinput.Model
	opening   bool

	running string // operation in flight, "" when idle
	spinner spinner.Model
	output  outputPane
	message string

	// wantPicker is set when the examples were requested by the user, as
	// opposed to the automatic load of the default example.
	wantPicker bool

	width, height int
}

func NewSketchPage(c Client) *SketchPage {
	fi := textinput.New()
	fi.Placeholder = "path/to/sketch.ino"
	fi.CharLimit = 512
	fi.Prompt = "Open: "

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &SketchPage{
		client:    c,
		fileInput: fi,
		spinner:   sp,
		output:    newOutputPane(),
	}
}

func (p *SketchPage) Init() tea.Cmd { return nil }

// InputCaptured reports whether the file prompt has focus.
func (p *SketchPage) InputCaptured() bool { return p.opening }

func (p *SketchPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case app.BoardSelectedMsg:
		changed := msg.Board != p.board
		p.board = msg.Board
		if changed && p.source == "" {
			return p, fetchExamples(p.client, p.board)
		}
		return p, nil

	case examplesMsg:
		if msg.Board != p.board {
			return p, nil
		}
		if msg.Err != nil {
			p.message = ui.ErrorStyle.Render("Examples: " + msg.Err.Error())
			return p, nil
		}
		if p.wantPicker {
			p.wantPicker = false
			return p, p.openPicker(msg.List)
		}
		for _, ex := range msg.List.Examples {
			if ex.Default {
				return p, fetchExample(p.client, p.board, ex.File)
			}
		}
		return p, nil

	case loadExampleMsg:
		return p, fetchExample(p.client, p.board, msg.File)

	case exampleMsg:
		if msg.Err != nil {
			p.message = ui.ErrorStyle.Render("Example: " + msg.Err.Error())
			return p, nil
		}
		p.setSource(msg.Example.Name, msg.Example.Text)
		return p, nil

	case compileDoneMsg:
		if p.running != "compile" {
			return p, nil
		}
		p.running = ""
		p.showCompile(msg)
		return p, nil

	case suggestDoneMsg:
		if p.running != "suggest" {
			return p, nil
		}
		p.running = ""
		if msg.Err != nil {
			p.message = describeError(msg.Err)
			return p, nil
		}
		p.output.Write(msg.Result.Suggestion)
		p.message = ui.SuccessBadge("suggestion") + ui.DimStyle.Render(" for "+p.sourceName)
		return p, nil

	case uploadDoneMsg:
		if p.running != "upload" {
			return p, nil
		}
		p.running = ""
		p.showUpload(msg)
		return p, nil

	case spinner.TickMsg:
		if p.running == "" {
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

func (p *SketchPage) handleKey(msg tea.KeyMsg) (app.Page, tea.Cmd) {
	if p.opening {
		switch msg.String() {
		case "esc":
			p.opening = false
			p.fileInput.Blur()
			return p, nil
		case "enter":
			p.opening = false
			p.fileInput.Blur()
			p.openFile(p.fileInput.Value())
			return p, nil
		}
		var cmd tea.Cmd
		p.fileInput, cmd = p.fileInput.Update(msg)
		return p, cmd
	}

	if p.running != "" {
		return p, p.output.Update(msg)
	}

	switch msg.String() {
	case "e":
		if p.board == "" {
			return p, nil
		}
		p.wantPicker = true
		return p, fetchExamples(p.client, p.board)
	case "o":
		p.opening = true
		p.fileInput.SetValue("")
		return p, p.fileInput.Focus()
	case "c":
		return p, p.start("compile", compile(p.client, p.board, p.source))
	case "g":
		if p.source == "" {
			p.message = "Load a sketch first"
			return p, nil
		}
		return p, p.start("suggest", suggest(p.client, p.board, p.source))
	case "u":
		return p, p.start("upload", execute(p.client, p.board, toolchain.TargetUser))
	case "s":
		return p, p.start("upload", execute(p.client, p.board, toolchain.TargetStop))
	}
	return p, p.output.Update(msg)
}

func (p *SketchPage) start(op string, cmd tea.Cmd) tea.Cmd {
	if p.board == "" {
		p.message = "Select a board first"
		return nil
	}
	p.running = op
	p.message = ""
	p.output.Reset()
	return tea.Batch(cmd, p.spinner.Tick)
}

func (p *SketchPage) openPicker(list api.ExamplesResponse) tea.Cmd {
	items := make([]app.PickerItem, 0, len(list.Examples))
	for _, ex := range list.Examples {
		items = append(items, app.PickerItem{Label: ex.Name, Value: ex.File, Detail: ex.File, Default: ex.Default})
	}
	return func() tea.Msg {
		return app.OpenPickerMsg{
			Title:    "Examples for " + list.Board,
			Noun:     "examples",
			Items:    items,
			OnSelect: func(v string) tea.Msg { return loadExampleMsg{File: v} },
		}
	}
}

func (p *SketchPage) openFile(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		p.message = ui.ErrorStyle.Render(err.Error())
		return
	}
	p.setSource(filepath.Base(path), string(data))
}

func (p *SketchPage) setSource(name, text string) {
	p.sourceName = name
	p.source = text
	p.message = fmt.Sprintf("Loaded %s (%d lines)", name, strings.Count(text, "\n")+1)
}

func (p *SketchPage) showCompile(msg compileDoneMsg) {
	if msg.Err != nil && !msg.Result.ToolFailed {
		p.message = describeError(msg.Err)
		return
	}
	r := msg.Result
	if r.Output != "" {
		p.output.Write(r.Output)
	}
	if r.Errors != "" {
		p.output.Write(r.Errors)
		p.message = ui.ErrorBadge("compile failed")
		return
	}
	p.message = ui.SuccessBadge("compiled") + ui.DimStyle.Render(" in "+r.Duration.String())
}

func (p *SketchPage) showUpload(msg uploadDoneMsg) {
	if msg.Err != nil && !msg.Result.ToolFailed {
		p.message = describeError(msg.Err)
		return
	}
	r := msg.Result
	if r.Output != "" {
		p.output.Write(r.Output)
	}
	if r.Errors != "" {
		p.output.Write(r.Errors)
		p.message = ui.ErrorBadge("upload failed")
		return
	}
	what := "sketch"
	if r.Target == toolchain.TargetStop {
		what = "stop firmware"
	}
	p.message = ui.SuccessBadge("uploaded") + ui.DimStyle.Render(fmt.Sprintf(" %s to %s", what, r.Device))
}

// describeError renders an API error for the status line.
func describeError(err error) string {
	switch api.Code(err) {
	case api.CodeBoardBusy:
		return ui.AccentStyle.Render("Board is busy, try again when the current operation finishes")
	case api.CodeSessionExpired:
		return ui.ErrorStyle.Render("The session has ended")
	case api.CodeSuggestDisabled:
		return ui.DimStyle.Render("Code suggestions are not available in this lab")
	}
	return ui.ErrorStyle.Render(err.Error())
}

func (p *SketchPage) View() string {
	var b strings.Builder
	b.WriteString(ui.Title("Sketch"))
	b.WriteString("\n")

	name := p.sourceName
	if name == "" {
		name = ui.DimStyle.Render("(no sketch loaded)")
	}
	fmt.Fprintf(&b, "Board:  %s\nSketch: %s\n\n", p.boardLabel(), name)

	if p.opening {
		b.WriteString(p.fileInput.View())
		b.WriteString("\n")
	}
	if p.running != "" {
		b.WriteString(p.spinner.View() + " " + p.running + "...\n")
	} else if p.message != "" {
		b.WriteString(p.message + "\n")
	}

	header := b.String()
	outHeight := max(p.height-strings.Count(header, "\n")-2, 5)
	return header + "\n" + p.output.View(p.width, outHeight)
}

func (p *SketchPage) boardLabel() string {
	if p.board == "" {
		return ui.DimStyle.Render("(none)")
	}
	return p.board
}

func (p *SketchPage) Name() string { return "Sketch" }

func (p *SketchPage) ShortHelp() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "examples")),
		key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open file")),
		key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "compile")),
		key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "suggest")),
		key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "upload")),
		key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
	}
}

func (p *SketchPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}
