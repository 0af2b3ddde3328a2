package pages

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/benchlab/internal/api"
	"github.com/buckleypaul/benchlab/internal/app"
	"github.com/buckleypaul/benchlab/internal/board"
	"github.com/buckleypaul/benchlab/internal/examples"
	"github.com/buckleypaul/benchlab/internal/lab"
	"github.com/buckleypaul/benchlab/internal/store"
	"github.com/buckleypaul/benchlab/internal/toolchain"
)

func isSpinnerTick(msg tea.Msg) bool {
	_, ok := msg.(spinner.TickMsg)
	return ok
}

// deliver feeds msgs back into page until no more messages are produced.
func deliver(t *testing.T, page app.Page, msgs ...tea.Msg) []tea.Msg {
	t.Helper()
	var unhandled []tea.Msg
	for len(msgs) > 0 {
		msg := msgs[0]
		msgs = msgs[1:]
		switch msg.(type) {
		case app.OpenPickerMsg, app.BoardSelectedMsg:
			unhandled = append(unhandled, msg)
			continue
		}
		var cmd tea.Cmd
		page, cmd = page.Update(msg)
		msgs = append(msgs, runCmd(cmd)...)
	}
	return unhandled
}

func newSketch(t *testing.T, c *fakeClient) *SketchPage {
	t.Helper()
	p := NewSketchPage(c)
	p.SetSize(80, 30)
	return p
}

func TestSketchLoadsDefaultExampleOnBoardSelect(t *testing.T) {
	c := &fakeClient{
		examples: []examples.Example{
			{File: "Blink.ino", Name: "Blink"},
			{File: "New_Sketch.ino", Name: "New Sketch", Default: true},
		},
		texts: map[string]string{"New_Sketch.ino": "void setup() {}\nvoid loop() {}"},
	}
	p := newSketch(t, c)

	_, cmd := p.Update(app.BoardSelectedMsg{Board: "Board_1"})
	deliver(t, p, runCmd(cmd)...)

	if p.sourceName != "New Sketch" || !strings.Contains(p.source, "void loop") {
		t.Fatalf("default example not loaded: %q %q", p.sourceName, p.source)
	}
}

func TestSketchExamplePicker(t *testing.T) {
	c := &fakeClient{
		examples: []examples.Example{{File: "Blink.ino", Name: "Blink"}, {File: "New_Sketch.ino", Name: "New Sketch", Default: true}},
		texts:    map[string]string{"Blink.ino": "// blink"},
	}
	p := newSketch(t, c)
	p.board = "Board_1"

	_, cmd := p.Update(keyPress("e"))
	unhandled := deliver(t, p, runCmd(cmd)...)
	if len(unhandled) != 1 {
		t.Fatalf("expected a picker request, got %#v", unhandled)
	}
	open, ok := unhandled[0].(app.OpenPickerMsg)
	if !ok || len(open.Items) != 2 || open.Items[0].Value != "Blink.ino" {
		t.Fatalf("unexpected picker %#v", unhandled[0])
	}
	if open.Items[0].Default || !open.Items[1].Default {
		t.Fatalf("default example not marked: %+v", open.Items)
	}

	deliver(t, p, open.OnSelect("Blink.ino"))
	if p.source != "// blink" {
		t.Fatalf("source = %q", p.source)
	}
}

func TestSketchCompileAndUpload(t *testing.T) {
	c := &fakeClient{compileRes: toolchain.CompileResult{Duration: time.Second}}
	p := newSketch(t, c)
	p.board = "Board_1"
	p.setSource("Blink", "void setup() {}")

	_, cmd := p.Update(keyPress("c"))
	if p.running != "compile" {
		t.Fatal("compile not started")
	}
	deliver(t, p, runCmd(cmd)...)
	if p.running != "" || len(c.compiled) != 1 || c.compiled[0] != "void setup() {}" {
		t.Fatalf("compile not sent: %+v", c.compiled)
	}
	if !strings.Contains(p.message, "compiled") {
		t.Errorf("message = %q", p.message)
	}

	_, cmd = p.Update(keyPress("u"))
	deliver(t, p, runCmd(cmd)...)
	_, cmd = p.Update(keyPress("s"))
	deliver(t, p, runCmd(cmd)...)
	if len(c.uploads) != 2 || c.uploads[0] != toolchain.TargetUser || c.uploads[1] != toolchain.TargetStop {
		t.Fatalf("uploads = %v", c.uploads)
	}
	if !strings.Contains(p.message, "stop firmware") {
		t.Errorf("message = %q", p.message)
	}
}

func TestSketchShowsCompilerDiagnostics(t *testing.T) {
	c := &fakeClient{compileRes: toolchain.CompileResult{Errors: "sketch.ino:1:1: error: 'x' was not declared", ExitCode: 1}}
	p := newSketch(t, c)
	p.board = "Board_1"

	_, cmd := p.Update(keyPress("c"))
	deliver(t, p, runCmd(cmd)...)
	if !strings.Contains(p.output.String(), "was not declared") {
		t.Fatalf("output = %q", p.output.String())
	}
	if !strings.Contains(p.message, "compile failed") {
		t.Errorf("message = %q", p.message)
	}
}

func TestSketchSuggest(t *testing.T) {
	c := &fakeClient{}
	p := newSketch(t, c)
	p.board = "Board_1"

	if _, cmd := p.Update(keyPress("g")); cmd != nil || len(c.suggested) != 0 {
		t.Fatal("suggestion requested without a sketch")
	}

	p.setSource("Blink", "int led = 13;")
	_, cmd := p.Update(keyPress("g"))
	if p.running != "suggest" {
		t.Fatal("suggestion not started")
	}
	deliver(t, p, runCmd(cmd)...)
	if len(c.suggested) != 1 || c.suggested[0] != "int led = 13;" {
		t.Fatalf("suggested = %v", c.suggested)
	}
	if !strings.Contains(p.output.String(), "Use const for pin numbers.") {
		t.Fatalf("output = %q", p.output.String())
	}
}

func TestSketchSuggestDisabled(t *testing.T) {
	c := &fakeClient{suggestErr: &api.Error{Status: 503, Response: api.ErrorResponse{Code: api.CodeSuggestDisabled}}}
	p := newSketch(t, c)
	p.board = "Board_1"
	p.setSource("Blink", "int led = 13;")

	_, cmd := p.Update(keyPress("g"))
	deliver(t, p, runCmd(cmd)...)
	if !strings.Contains(p.message, "not available") {
		t.Fatalf("message = %q", p.message)
	}
}

func TestSketchBusyBoard(t *testing.T) {
	c := &fakeClient{uploadErr: &api.Error{Status: 409, Response: api.ErrorResponse{Code: api.CodeBoardBusy}}}
	p := newSketch(t, c)
	p.board = "Board_1"

	_, cmd := p.Update(keyPress("u"))
	deliver(t, p, runCmd(cmd)...)
	if !strings.Contains(p.message, "busy") {
		t.Fatalf("message = %q", p.message)
	}
}

func TestSketchRequiresBoard(t *testing.T) {
	c := &fakeClient{}
	p := newSketch(t, c)
	if _, cmd := p.Update(keyPress("c")); cmd != nil {
		t.Fatal("compile started without a board")
	}
	if len(c.compiled) != 0 {
		t.Fatal("compile sent without a board")
	}
}

func TestSketchOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Mine.ino")
	if err := os.WriteFile(path, []byte("// mine\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := newSketch(t, &fakeClient{})

	p.Update(keyPress("o"))
	if !p.InputCaptured() {
		t.Fatal("file prompt should capture input")
	}
	p.fileInput.SetValue(path)
	p.Update(keyPress("enter"))
	if p.InputCaptured() || p.sourceName != "Mine.ino" || p.source != "// mine\n" {
		t.Fatalf("file not loaded: %q %q", p.sourceName, p.source)
	}
}

func TestMonitorCapture(t *testing.T) {
	c := &fakeClient{monitorRes: toolchain.MonitorResult{Device: "/dev/ttyACM0", Output: "hello\n", Duration: 10 * time.Second}}
	p := NewMonitorPage(c, 9600, 10)
	p.SetSize(80, 30)
	p.Update(app.BoardSelectedMsg{Board: "Board_1"})

	_, cmd := p.Update(keyPress("m"))
	deliver(t, p, runCmd(cmd)...)

	if len(c.monitors) != 1 || c.monitors[0] != [2]int{9600, 10} {
		t.Fatalf("monitor calls = %v", c.monitors)
	}
	if p.output.String() != "hello\n" {
		t.Fatalf("output = %q", p.output.String())
	}
}

func TestMonitorRejectsInvalidParameters(t *testing.T) {
	c := &fakeClient{}
	p := NewMonitorPage(c, 9600, 10)
	p.Update(app.BoardSelectedMsg{Board: "Board_1"})
	p.inputs[monitorFieldSeconds].SetValue("abc")

	if _, cmd := p.Update(keyPress("m")); cmd != nil {
		t.Fatal("capture started with invalid duration")
	}
	if !strings.Contains(p.message, "Invalid") {
		t.Fatalf("message = %q", p.message)
	}
}

func TestBoardsResetNeedsConfirmation(t *testing.T) {
	c := &fakeClient{}
	p := NewBoardsPage(c)

	p.Update(keyPress("R"))
	if _, cmd := p.Update(keyPress("n")); cmd != nil {
		t.Fatal("reset ran without confirmation")
	}

	p.Update(keyPress("R"))
	_, cmd := p.Update(keyPress("y"))
	deliver(t, p, runCmd(cmd)...)
	if c.resets != 1 {
		t.Fatalf("resets = %d", c.resets)
	}
	if !strings.Contains(p.message, "Lab reset") {
		t.Fatalf("message = %q", p.message)
	}
}

func TestBoardsSelect(t *testing.T) {
	p := NewBoardsPage(&fakeClient{})
	sess := api.SessionResponse{Status: lab.Status{Boards: []lab.BoardStatus{
		{Board: board.Board{Config: board.Config{ID: "Board_1"}}, State: "idle"},
		{Board: board.Board{Config: board.Config{ID: "Board_2"}}, State: "compiling"},
	}}}
	p.Update(app.SessionMsg{Session: sess})
	p.Update(keyPress("down"))

	_, cmd := p.Update(keyPress("enter"))
	msgs := runCmd(cmd)
	if len(msgs) != 1 || msgs[0] != (app.BoardSelectedMsg{Board: "Board_2"}) {
		t.Fatalf("msgs = %#v", msgs)
	}
	if !strings.Contains(p.View(), "compiling") {
		t.Error("state not rendered")
	}
}

func TestFlattenHistoryNewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	h := store.History{
		Compiles: []store.CompileRecord{{Board: "Board_1", Timestamp: base, Success: true}},
		Uploads:  []store.UploadRecord{{Board: "Board_1", Target: "user", Timestamp: base.Add(time.Minute), Success: true}},
		Cleanups: []store.CleanupRecord{{Pass: "startup", Timestamp: base.Add(-time.Minute), Failed: []string{"Board_2"}}},
	}
	got := flattenHistory(h)
	if len(got) != 3 {
		t.Fatalf("got %d entries", len(got))
	}
	if got[0].kind != "upload/user" || got[2].kind != "cleanup/startup" {
		t.Fatalf("order = %s, %s, %s", got[0].kind, got[1].kind, got[2].kind)
	}
	if !strings.Contains(got[2].details, "Board_2") {
		t.Errorf("details = %q", got[2].details)
	}
}

func TestHistoryRefreshesAfterOperations(t *testing.T) {
	c := &fakeClient{history: store.History{Compiles: []store.CompileRecord{{Board: "Board_1", Timestamp: time.Now(), Success: true}}}}
	p := NewHistoryPage(c)
	p.SetSize(80, 20)

	_, cmd := p.Update(compileDoneMsg{})
	deliver(t, p, runCmd(cmd)...)
	if len(p.entries) != 1 {
		t.Fatalf("entries = %+v", p.entries)
	}
}

func TestDescribeError(t *testing.T) {
	expired := &api.Error{Status: 410, Response: api.ErrorResponse{Code: api.CodeSessionExpired}}
	if !strings.Contains(describeError(expired), "ended") {
		t.Error("expired session not described")
	}
	if !strings.Contains(describeError(errors.New("dial tcp: refused")), "refused") {
		t.Error("plain error text dropped")
	}
}
