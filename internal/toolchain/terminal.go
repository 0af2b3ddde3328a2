package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// killGrace bounds how long Capture waits for the reader to drain after the
// stream was killed.
const killGrace = 2 * time.Second

// MonitorSpec describes one serial-monitor session.
type MonitorSpec struct {
	Board    string
	Device   string
	BaudRate int
	Command  string
	Args     []string
}

// Stream is a running monitor. Read returns what the device prints; Kill
// forcibly ends the session and must unblock a pending Read.
type Stream interface {
	io.Reader
	Kill() error
}

// Terminal starts monitor sessions.
type Terminal interface {
	Start(ctx context.Context, spec MonitorSpec) (Stream, error)
}

// CaptureResult is the text read from a monitor session.
type CaptureResult struct {
	Output   string
	TimedOut bool // the deadline ended the capture, the normal case
	Duration time.Duration
}

// Capture runs a monitor session for at most d and returns everything read.
// Reaching the deadline is not an error: the stream is killed and the text
// captured so far is returned.
func Capture(ctx context.Context, term Terminal, spec MonitorSpec, d time.Duration) (CaptureResult, error) {
	start := time.Now()
	stream, err := term.Start(ctx, spec)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("%w: monitor %s: %v", ErrToolInvocationFailed, spec.Device, err)
	}

	var buf lockedBuffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(&buf, stream)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	timedOut := false
	select {
	case <-done:
	case <-timer.C:
		timedOut = true
	case <-ctx.Done():
		timedOut = true
	}

	killErr := stream.Kill()
	if timedOut {
		select {
		case <-done:
		case <-time.After(killGrace):
		}
	}

	res := CaptureResult{
		Output:   buf.String(),
		TimedOut: timedOut,
		Duration: time.Since(start),
	}
	if killErr != nil && timedOut {
		return res, fmt.Errorf("kill monitor %s: %w", spec.Device, killErr)
	}
	return res, nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
