package pages

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/benchlab/internal/api"
	"github.com/buckleypaul/benchlab/internal/lab"
	"github.com/buckleypaul/benchlab/internal/store"
	"github.com/buckleypaul/benchlab/internal/toolchain"
)

// requestTimeout bounds every API call the console makes. Compiles and
// captures are the slowest.
const requestTimeout = 3 * time.Minute

// Client is the part of the lab API the console uses. *api.Client
// implements it.
type Client interface {
	Examples(ctx context.Context, board string) (api.ExamplesResponse, error)
	Example(ctx context.Context, board, file string) (api.ExampleResponse, error)
	Compile(ctx context.Context, board, text string) (toolchain.CompileResult, error)
	Suggest(ctx context.Context, board, text string) (api.SuggestResponse, error)
	Execute(ctx context.Context, board string, target toolchain.Target) (toolchain.UploadResult, error)
	Monitor(ctx context.Context, board string, baudRate, seconds int) (toolchain.MonitorResult, error)
	Reset(ctx context.Context) (lab.ResetResult, error)
	History(ctx context.Context) (store.History, error)
}

var _ Client = (*api.Client)(nil)

type examplesMsg struct {
	Board string
	List  api.ExamplesResponse
	Err   error
}

type exampleMsg struct {
	Example api.ExampleResponse
	Err     error
}

type compileDoneMsg struct {
	Result toolchain.CompileResult
	Err    error
}

type suggestDoneMsg struct {
	Result api.SuggestResponse
	Err    error
}

type uploadDoneMsg struct {
	Result toolchain.UploadResult
	Err    error
}

type monitorDoneMsg struct {
	Result toolchain.MonitorResult
	Err    error
}

type resetDoneMsg struct {
	Result lab.ResetResult
	Err    error
}

type historyMsg struct {
	History store.History
	Err     error
}

// call runs fn with a bounded context and wraps its result into a message.
func call[T any](fn func(ctx context.Context) (T, error), wrap func(T, error) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		v, err := fn(ctx)
		return wrap(v, err)
	}
}

func fetchExamples(c Client, board string) tea.Cmd {
	return call(
		func(ctx context.Context) (api.ExamplesResponse, error) { return c.Examples(ctx, board) },
		func(v api.ExamplesResponse, err error) tea.Msg { return examplesMsg{Board: board, List: v, Err: err} },
	)
}

func fetchExample(c Client, board, file string) tea.Cmd {
	return call(
		func(ctx context.Context) (api.ExampleResponse, error) { return c.Example(ctx, board, file) },
		func(v api.ExampleResponse, err error) tea.Msg { return exampleMsg{Example: v, Err: err} },
	)
}

func compile(c Client, board, text string) tea.Cmd {
	return call(
		func(ctx context.Context) (toolchain.CompileResult, error) { return c.Compile(ctx, board, text) },
		func(v toolchain.CompileResult, err error) tea.Msg { return compileDoneMsg{Result: v, Err: err} },
	)
}

func suggest(c Client, board, text string) tea.Cmd {
	return call(
		func(ctx context.Context) (api.SuggestResponse, error) { return c.Suggest(ctx, board, text) },
		func(v api.SuggestResponse, err error) tea.Msg { return suggestDoneMsg{Result: v, Err: err} },
	)
}

func execute(c Client, board string, target toolchain.Target) tea.Cmd {
	return call(
		func(ctx context.Context) (toolchain.UploadResult, error) { return c.Execute(ctx, board, target) },
		func(v toolchain.UploadResult, err error) tea.Msg { return uploadDoneMsg{Result: v, Err: err} },
	)
}

func monitor(c Client, board string, baudRate, seconds int) tea.Cmd {
	return call(
		func(ctx context.Context) (toolchain.MonitorResult, error) { return c.Monitor(ctx, board, baudRate, seconds) },
		func(v toolchain.MonitorResult, err error) tea.Msg { return monitorDoneMsg{Result: v, Err: err} },
	)
}

func reset(c Client) tea.Cmd {
	return call(
		func(ctx context.Context) (lab.ResetResult, error) { return c.Reset(ctx) },
		func(v lab.ResetResult, err error) tea.Msg { return resetDoneMsg{Result: v, Err: err} },
	)
}

func fetchHistory(c Client) tea.Cmd {
	return call(
		func(ctx context.Context) (store.History, error) { return c.History(ctx) },
		func(v store.History, err error) tea.Msg { return historyMsg{History: v, Err: err} },
	)
}
