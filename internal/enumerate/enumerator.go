package enumerate

import (
	"context"
	"fmt"
	"strings"

	"github.com/buckleypaul/benchlab/internal/board"
	"github.com/buckleypaul/benchlab/internal/logging"
	"github.com/buckleypaul/benchlab/internal/serial"
)

// DefaultHub is the USB hub path the lab boards hang off.
const DefaultHub = "1-1"

// Enumerator maps configured boards to serial numbers and device handles.
type Enumerator struct {
	source Source
	hub    string
	ports  serial.Lister
	logger *logging.Logger
}

// Option configures an Enumerator.
type Option func(*Enumerator)

// WithHub overrides the hub path prefix.
func WithHub(hub string) Option {
	return func(e *Enumerator) {
		if hub != "" {
			e.hub = hub
		}
	}
}

// WithPortLister cross-checks handles against the OS serial port list.
// When the OS reports a board's serial number on a different tty than the
// kernel log, the OS listing wins.
func WithPortLister(l serial.Lister) Option {
	return func(e *Enumerator) { e.ports = l }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Enumerator) { e.logger = l }
}

// New creates an Enumerator reading from source.
func New(source Source, opts ...Option) *Enumerator {
	e := &Enumerator{source: source, hub: DefaultHub}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger).WithComponent("enumerate")
	return e
}

// Hub returns the hub path prefix.
func (e *Enumerator) Hub() string { return e.hub }

// Inspect reads one log snapshot and fills in whatever it finds for each
// configured board. Boards that were not found are returned with empty
// fields; see Board.Valid.
func (e *Enumerator) Inspect(ctx context.Context, cfgs []board.Config) ([]board.Board, error) {
	log, err := e.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ports := e.listPorts()

	boards := make([]board.Board, 0, len(cfgs))
	for _, cfg := range cfgs {
		b := board.Board{Config: cfg}
		path := cfg.USBPath(e.hub)
		b.SerialNumber, _ = FindSerialNumber(log, path)
		b.Handle, _ = FindDeviceHandle(log, path)
		b.Handle = e.verify(b, ports)
		boards = append(boards, b)
	}
	return boards, nil
}

// Resolve identifies every configured board from one log snapshot. It fails
// with board.ErrBoardNotConnected naming each board that lacks a serial
// number or device handle.
func (e *Enumerator) Resolve(ctx context.Context, cfgs []board.Config) ([]board.Board, error) {
	found, err := e.Inspect(ctx, cfgs)
	if err != nil {
		return nil, err
	}

	boards := make([]board.Board, 0, len(found))
	var missing []string
	for _, b := range found {
		path := b.USBPath(e.hub)
		if !b.Valid() {
			var what []string
			if b.SerialNumber == "" {
				what = append(what, "serial number")
			}
			if b.Handle == "" {
				what = append(what, "device handle")
			}
			missing = append(missing, fmt.Sprintf("%s at %s (no %s)", b.ID, path, strings.Join(what, ", ")))
			continue
		}
		e.logger.Info("board identified", "board", b.ID, "usb_path", path, "serial", b.SerialNumber, "handle", b.Handle)
		boards = append(boards, b)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", board.ErrBoardNotConnected, strings.Join(missing, "; "))
	}
	return boards, nil
}

// ResolveHandles re-reads device handles for already identified boards.
// Serial numbers are not re-read.
func (e *Enumerator) ResolveHandles(ctx context.Context, boards []board.Board) (map[string]string, error) {
	log, err := e.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ports := e.listPorts()

	out := make(map[string]string, len(boards))
	for _, b := range boards {
		h, _ := FindDeviceHandle(log, b.USBPath(e.hub))
		b.Handle = h
		if h = e.verify(b, ports); h != "" {
			out[b.ID] = h
		}
	}
	return out, nil
}

func (e *Enumerator) listPorts() []serial.PortInfo {
	if e.ports == nil {
		return nil
	}
	ports, err := e.ports.ListPorts()
	if err != nil {
		e.logger.Warn("serial port listing failed", "error", err)
		return nil
	}
	return ports
}

// verify returns the handle to use for b given the OS port listing.
func (e *Enumerator) verify(b board.Board, ports []serial.PortInfo) string {
	if len(ports) == 0 {
		return b.Handle
	}
	p, ok := serial.FindBySerial(ports, b.SerialNumber)
	if !ok {
		return b.Handle
	}
	if h := p.Handle(); h != b.Handle {
		e.logger.Warn("kernel log handle differs from port listing", "board", b.ID, "log", b.Handle, "os", h)
		return h
	}
	return b.Handle
}
