package toolchain

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/buckleypaul/benchlab/internal/board"
)

type runCall struct {
	name string
	args []string
}

// fakeRunner records calls and lets each test decide the outcome.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []runCall
	result Result
	err    error
	// onRun runs before the result is returned, e.g. to drop a build artifact.
	onRun func(name string, args []string)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (Result, error) {
	copied := append([]string(nil), args...)
	f.mu.Lock()
	f.calls = append(f.calls, runCall{name: name, args: copied})
	onRun := f.onRun
	res, err := f.result, f.err
	f.mu.Unlock()
	if onRun != nil {
		onRun(name, copied)
	}
	return res, err
}

func (f *fakeRunner) lastCall(t *testing.T) runCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("expected at least one command")
	}
	return f.calls[len(f.calls)-1]
}

type fakeResolver struct {
	mu      sync.Mutex
	handles map[string]string
}

func (f *fakeResolver) set(id, handle string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handles[id] = handle
}

func (f *fakeResolver) ResolveHandles(_ context.Context, _ []board.Board) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.handles))
	for k, v := range f.handles {
		out[k] = v
	}
	return out, nil
}

// fakeStream is a monitor session backed by a pipe; Kill closes the pipe.
type fakeStream struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	mu     sync.Mutex
	killed bool
}

func newFakeStream() *fakeStream {
	r, w := io.Pipe()
	return &fakeStream{r: r, w: w}
}

func (s *fakeStream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *fakeStream) Kill() error {
	s.mu.Lock()
	s.killed = true
	s.mu.Unlock()
	return s.r.CloseWithError(io.ErrClosedPipe)
}

func (s *fakeStream) wasKilled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed
}

type fakeTerminal struct {
	mu     sync.Mutex
	specs  []MonitorSpec
	stream *fakeStream
	err    error
	// feed runs in its own goroutine with the stream's writer.
	feed func(w *io.PipeWriter)
}

func (f *fakeTerminal) Start(_ context.Context, spec MonitorSpec) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	if f.err != nil {
		return nil, f.err
	}
	f.stream = newFakeStream()
	if f.feed != nil {
		go f.feed(f.stream.w)
	}
	return f.stream, nil
}

func testRegistry(t *testing.T, res board.HandleResolver) *board.Registry {
	t.Helper()
	r, err := board.NewRegistry([]board.Board{
		{Config: board.Config{ID: "Board_1", Name: "UNO R3", FQBN: "arduino:avr:uno", USBPort: "1"}, SerialNumber: "SN1", Handle: "ttyACM0"},
		{Config: board.Config{ID: "Board_2", Name: "UNO R3", FQBN: "arduino:avr:uno", USBPort: "2"}, SerialNumber: "SN2", Handle: "ttyACM1"},
	}, res, nil)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// writeFile creates path with its parent directories.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
