package serial

import (
	"context"
	"sync"

	"go.bug.st/serial"

	"github.com/buckleypaul/benchlab/internal/toolchain"
)

// Terminal reads a board's console by opening the device directly instead
// of running arduino-cli monitor.
type Terminal struct {
	// Open defaults to serial.Open.
	Open func(name string, mode *serial.Mode) (serial.Port, error)
}

// Start opens spec.Device at spec.BaudRate, 8N1.
func (t Terminal) Start(_ context.Context, spec toolchain.MonitorSpec) (toolchain.Stream, error) {
	open := t.Open
	if open == nil {
		open = serial.Open
	}

	mode := &serial.Mode{
		BaudRate: spec.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := open(spec.Device, mode)
	if err != nil {
		return nil, err
	}
	return &portStream{port: port}, nil
}

type portStream struct {
	port serial.Port
	once sync.Once
	err  error
}

func (s *portStream) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

// Kill closes the port, which unblocks a pending Read.
func (s *portStream) Kill() error {
	s.once.Do(func() {
		s.err = s.port.Close()
	})
	return s.err
}
