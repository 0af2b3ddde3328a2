package toolchain

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// PTYTerminal runs the monitor command attached to a pseudo-terminal.
// arduino-cli monitor refuses to stream to a plain pipe.
type PTYTerminal struct {
	Env *Env
}

// Start launches spec.Command under a new pty.
func (t PTYTerminal) Start(_ context.Context, spec MonitorSpec) (Stream, error) {
	cmd := exec.Command(t.Env.Resolve(spec.Command), spec.Args...)
	t.Env.apply(cmd)

	f, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}
	return &ptyStream{cmd: cmd, pty: f}, nil
}

type ptyStream struct {
	cmd  *exec.Cmd
	pty  *os.File
	once sync.Once
	err  error
}

// Read reads from the pty master. Linux reports EIO once the child exits,
// which ends the capture like EOF would.
func (s *ptyStream) Read(p []byte) (int, error) {
	return s.pty.Read(p)
}

// Kill terminates the monitor process and closes the pty.
func (s *ptyStream) Kill() error {
	s.once.Do(func() {
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.err = err
		}
		s.pty.Close()
		_ = s.cmd.Wait()
	})
	return s.err
}
