package serial

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/buckleypaul/benchlab/internal/toolchain"
)

// pipePort is a serial.Port whose reads come from an in-memory pipe.
type pipePort struct {
	serial.Port
	r *io.PipeReader
}

func (p *pipePort) Read(b []byte) (int, error) { return p.r.Read(b) }
func (p *pipePort) Close() error               { return p.r.Close() }

func TestTerminalCapture(t *testing.T) {
	r, w := io.Pipe()
	var gotMode *serial.Mode
	term := Terminal{Open: func(name string, mode *serial.Mode) (serial.Port, error) {
		if name != "/dev/ttyACM0" {
			t.Errorf("opened %q", name)
		}
		gotMode = mode
		return &pipePort{r: r}, nil
	}}
	go w.Write([]byte("Hello\n"))

	res, err := toolchain.Capture(context.Background(), term, toolchain.MonitorSpec{Device: "/dev/ttyACM0", BaudRate: 115200}, 200*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "Hello\n" || !res.TimedOut {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotMode == nil || gotMode.BaudRate != 115200 || gotMode.DataBits != 8 {
		t.Fatalf("mode = %+v", gotMode)
	}
}

func TestTerminalOpenFailure(t *testing.T) {
	term := Terminal{Open: func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("permission denied")
	}}
	_, err := toolchain.Capture(context.Background(), term, toolchain.MonitorSpec{Device: "/dev/ttyACM9"}, time.Second)
	if !errors.Is(err, toolchain.ErrToolInvocationFailed) {
		t.Fatalf("expected ErrToolInvocationFailed, got %v", err)
	}
}
