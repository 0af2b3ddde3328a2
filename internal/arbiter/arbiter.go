// Package arbiter gates toolchain operations so that at most one runs per
// board at a time.
//
// User requests call TryAcquire and are rejected with ErrBoardBusy while the
// board is in use; the session watchdog calls Acquire and waits its turn.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/buckleypaul/benchlab/internal/board"
)

// State is the operation currently running on a board.
type State int32

const (
	Idle State = iota
	Compiling
	Uploading
	Monitoring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Compiling:
		return "compiling"
	case Uploading:
		return "uploading"
	case Monitoring:
		return "monitoring"
	default:
		return "unknown"
	}
}

// ErrBoardBusy is returned when a board already has an operation in flight.
var ErrBoardBusy = errors.New("board busy")

// BusyError reports which operation holds the board.
type BusyError struct {
	Board string
	State State
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("board %s is busy (%s)", e.Board, e.State)
}

// Is makes errors.Is(err, ErrBoardBusy) match.
func (e *BusyError) Is(target error) bool {
	return target == ErrBoardBusy
}

type slot struct {
	lock  chan struct{}
	state atomic.Int32
}

// Arbiter holds one slot per board. The set of boards is fixed at creation.
type Arbiter struct {
	slots    map[string]*slot
	observer func(id string, s State)
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithObserver registers fn to be called on every state transition.
func WithObserver(fn func(id string, s State)) Option {
	return func(a *Arbiter) { a.observer = fn }
}

// New creates an Arbiter with every board Idle.
func New(ids []string, opts ...Option) *Arbiter {
	a := &Arbiter{slots: make(map[string]*slot, len(ids))}
	for _, id := range ids {
		a.slots[id] = &slot{lock: make(chan struct{}, 1)}
	}
	for _, opt := range opts {
		opt(a)
	}
	for _, id := range ids {
		a.notify(id, Idle)
	}
	return a
}

// TryAcquire takes the board for op without waiting. The returned release
// function puts the board back to Idle; calling it more than once is safe.
func (a *Arbiter) TryAcquire(id string, op State) (func(), error) {
	s, err := a.slot(id, op)
	if err != nil {
		return nil, err
	}
	select {
	case s.lock <- struct{}{}:
		return a.enter(id, s, op), nil
	default:
		return nil, &BusyError{Board: id, State: State(s.state.Load())}
	}
}

// Acquire takes the board for op, waiting until it is Idle or ctx is done.
func (a *Arbiter) Acquire(ctx context.Context, id string, op State) (func(), error) {
	s, err := a.slot(id, op)
	if err != nil {
		return nil, err
	}
	select {
	case s.lock <- struct{}{}:
		return a.enter(id, s, op), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State returns the current state of a board.
func (a *Arbiter) State(id string) (State, error) {
	s, ok := a.slots[id]
	if !ok {
		return Idle, fmt.Errorf("%w: %q", board.ErrUnknownBoard, id)
	}
	return State(s.state.Load()), nil
}

// Snapshot returns the state of every board.
func (a *Arbiter) Snapshot() map[string]State {
	out := make(map[string]State, len(a.slots))
	for id, s := range a.slots {
		out[id] = State(s.state.Load())
	}
	return out
}

func (a *Arbiter) slot(id string, op State) (*slot, error) {
	if op == Idle {
		return nil, fmt.Errorf("cannot acquire board %s for idle", id)
	}
	s, ok := a.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", board.ErrUnknownBoard, id)
	}
	return s, nil
}

func (a *Arbiter) enter(id string, s *slot, op State) func() {
	s.state.Store(int32(op))
	a.notify(id, op)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.state.Store(int32(Idle))
			a.notify(id, Idle)
			<-s.lock
		})
	}
}

func (a *Arbiter) notify(id string, st State) {
	if a.observer != nil {
		a.observer(id, st)
	}
}
