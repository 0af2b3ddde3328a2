package pages

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/benchlab/internal/api"
	"github.com/buckleypaul/benchlab/internal/examples"
	"github.com/buckleypaul/benchlab/internal/lab"
	"github.com/buckleypaul/benchlab/internal/store"
	"github.com/buckleypaul/benchlab/internal/toolchain"
)

type fakeClient struct {
	mu sync.Mutex

	examples   []examples.Example
	texts      map[string]string
	compileRes toolchain.CompileResult
	compileErr error
	uploadErr  error
	monitorRes toolchain.MonitorResult
	history    store.History
	suggestErr error

	compiled  []string
	suggested []string
	uploads  []toolchain.Target
	monitors [][2]int
	resets   int
}

func (f *fakeClient) Examples(_ context.Context, board string) (api.ExamplesResponse, error) {
	return api.ExamplesResponse{Board: board, Examples: f.examples}, nil
}

func (f *fakeClient) Example(_ context.Context, board, file string) (api.ExampleResponse, error) {
	text, ok := f.texts[file]
	if !ok {
		return api.ExampleResponse{}, &api.Error{Status: 404, Response: api.ErrorResponse{Code: api.CodeNotFound, Error: "example not found"}}
	}
	return api.ExampleResponse{Board: board, File: file, Name: examples.DisplayName(file), Text: text}, nil
}

func (f *fakeClient) Compile(_ context.Context, board, text string) (toolchain.CompileResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compiled = append(f.compiled, text)
	res := f.compileRes
	res.Board = board
	return res, f.compileErr
}

func (f *fakeClient) Suggest(_ context.Context, board, text string) (api.SuggestResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggested = append(f.suggested, text)
	if f.suggestErr != nil {
		return api.SuggestResponse{}, f.suggestErr
	}
	return api.SuggestResponse{Board: board, Suggestion: "Use const for pin numbers."}, nil
}

func (f *fakeClient) Execute(_ context.Context, board string, target toolchain.Target) (toolchain.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, target)
	return toolchain.UploadResult{Board: board, Target: target, Device: "/dev/ttyACM0"}, f.uploadErr
}

func (f *fakeClient) Monitor(_ context.Context, board string, baudRate, seconds int) (toolchain.MonitorResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitors = append(f.monitors, [2]int{baudRate, seconds})
	res := f.monitorRes
	res.Board = board
	res.BaudRate = baudRate
	return res, nil
}

func (f *fakeClient) Reset(context.Context) (lab.ResetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return lab.ResetResult{}, nil
}

func (f *fakeClient) History(context.Context) (store.History, error) {
	return f.history, nil
}

// runCmd executes cmd and returns the messages it produces, flattening
// batches. Spinner ticks are dropped.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	switch m := msg.(type) {
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range m {
			out = append(out, runCmd(c)...)
		}
		return out
	case nil:
		return nil
	}
	if isSpinnerTick(msg) {
		return nil
	}
	return []tea.Msg{msg}
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}
