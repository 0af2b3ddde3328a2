package enumerate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/buckleypaul/benchlab/internal/board"
	"github.com/buckleypaul/benchlab/internal/serial"
	"github.com/buckleypaul/benchlab/internal/toolchain"
)

func staticSource(log string) Source {
	return SourceFunc(func(context.Context) (string, error) { return log, nil })
}

var labBoards = []board.Config{
	{ID: "Board_1", Name: "Arduino Uno", FQBN: "arduino:avr:uno", USBPort: "2"},
	{ID: "Board_2", Name: "Arduino Nano", FQBN: "arduino:avr:nano", USBPort: "3"},
}

func TestResolve(t *testing.T) {
	e := New(staticSource(kernelLog))
	boards, err := e.Resolve(context.Background(), labBoards)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(boards) != 2 {
		t.Fatalf("got %d boards", len(boards))
	}
	if b := boards[0]; b.SerialNumber != "95037323535351803130" || b.Handle != "ttyACM0" {
		t.Errorf("Board_1 = %+v", b)
	}
	if b := boards[1]; b.SerialNumber != "A10KZ4XB" || b.Handle != "ttyUSB0" {
		t.Errorf("Board_2 = %+v", b)
	}
}

func TestResolveMissingBoard(t *testing.T) {
	cfgs := append(labBoards, board.Config{ID: "Board_3", FQBN: "arduino:avr:uno", USBPort: "4"})
	_, err := New(staticSource(kernelLog)).Resolve(context.Background(), cfgs)
	if !errors.Is(err, board.ErrBoardNotConnected) {
		t.Fatalf("expected ErrBoardNotConnected, got %v", err)
	}
	if !strings.Contains(err.Error(), "Board_3") || strings.Contains(err.Error(), "Board_1") {
		t.Fatalf("error should name only the missing board: %v", err)
	}
}

func TestInspectReportsPartialResults(t *testing.T) {
	cfgs := []board.Config{labBoards[0], {ID: "Board_3", FQBN: "arduino:avr:uno", USBPort: "4"}}
	boards, err := New(staticSource(kernelLog)).Inspect(context.Background(), cfgs)
	if err != nil {
		t.Fatal(err)
	}
	if len(boards) != 2 {
		t.Fatalf("got %d boards", len(boards))
	}
	if !boards[0].Valid() {
		t.Errorf("Board_1 should be found: %+v", boards[0])
	}
	if boards[1].Valid() || boards[1].SerialNumber != "" {
		t.Errorf("Board_3 should be empty: %+v", boards[1])
	}
}

func TestResolveCustomHub(t *testing.T) {
	log := strings.ReplaceAll(kernelLog, "1-1", "3-2")
	boards, err := New(staticSource(log), WithHub("3-2")).Resolve(context.Background(), labBoards)
	if err != nil {
		t.Fatal(err)
	}
	if boards[0].Handle != "ttyACM0" {
		t.Fatalf("unexpected %+v", boards[0])
	}
}

type staticLister []serial.PortInfo

func (s staticLister) ListPorts() ([]serial.PortInfo, error) { return s, nil }

func TestPortListerOverridesStaleHandle(t *testing.T) {
	ports := staticLister{{Name: "/dev/ttyACM3", IsUSB: true, SerialNumber: "95037323535351803130"}}
	boards, err := New(staticSource(kernelLog), WithPortLister(ports)).Resolve(context.Background(), labBoards)
	if err != nil {
		t.Fatal(err)
	}
	if boards[0].Handle != "ttyACM3" {
		t.Fatalf("Board_1 handle = %q, want OS listing ttyACM3", boards[0].Handle)
	}
	if boards[1].Handle != "ttyUSB0" {
		t.Fatalf("Board_2 not in listing, should keep log handle: %q", boards[1].Handle)
	}
}

type switchSource struct {
	mu  sync.Mutex
	log string
}

func (s *switchSource) set(log string) {
	s.mu.Lock()
	s.log = log
	s.mu.Unlock()
}

func (s *switchSource) Snapshot(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log, nil
}

func TestResolveHandlesFeedsRegistry(t *testing.T) {
	src := &switchSource{log: kernelLog}
	e := New(src)
	boards, err := e.Resolve(context.Background(), labBoards)
	if err != nil {
		t.Fatal(err)
	}
	reg, err := board.NewRegistry(boards, e, nil)
	if err != nil {
		t.Fatal(err)
	}

	src.set(kernelLog + "[ 99.0] cdc_acm 1-1.2:1.0: ttyACM5: USB ACM device\n")
	b, err := reg.Refresh(context.Background(), "Board_1")
	if err != nil {
		t.Fatal(err)
	}
	if b.Handle != "ttyACM5" || b.SerialNumber != "95037323535351803130" {
		t.Fatalf("after refresh %+v", b)
	}
}

type fakeRunner struct {
	res toolchain.Result
	err error
}

func (f fakeRunner) Run(context.Context, string, ...string) (toolchain.Result, error) {
	return f.res, f.err
}

func TestKernelLogSource(t *testing.T) {
	out, err := KernelLog{Runner: fakeRunner{res: toolchain.Result{Stdout: kernelLog}}}.Snapshot(context.Background())
	if err != nil || out != kernelLog {
		t.Fatalf("Snapshot = %q, %v", out, err)
	}

	_, err = KernelLog{Runner: fakeRunner{res: toolchain.Result{
		Stderr:   "dmesg: read kernel buffer failed: Operation not permitted\n",
		ExitCode: 1,
	}}}.Snapshot(context.Background())
	if err == nil || !strings.Contains(err.Error(), "not permitted") {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kern.log")
	if err := os.WriteFile(path, []byte(kernelLog), 0o644); err != nil {
		t.Fatal(err)
	}
	boards, err := New(FileSource{Path: path}).Resolve(context.Background(), labBoards[:1])
	if err != nil {
		t.Fatal(err)
	}
	if boards[0].Handle != "ttyACM0" {
		t.Fatalf("unexpected %+v", boards[0])
	}
}
