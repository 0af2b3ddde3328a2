package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/buckleypaul/benchlab/internal/logging"
)

// Cleanup pass names.
const (
	PassStartup = "startup"
	PassExpiry  = "expiry"
)

// Cleaner deploys the stop firmware to every board.
type Cleaner interface {
	StopAll(ctx context.Context, reason string) error
}

// Clock is the time source of the watchdog.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Watchdog runs the two cleanup passes of a session: one immediately and one
// at the effective end of the window.
type Watchdog struct {
	cleaner Cleaner
	window  Window
	clock   Clock
	logger  *logging.Logger

	passes   atomic.Int32
	finished atomic.Bool
	done     chan struct{}
}

// NewWatchdog creates a watchdog. A nil clock uses the wall clock.
func NewWatchdog(cleaner Cleaner, window Window, clock Clock, logger *logging.Logger) *Watchdog {
	if clock == nil {
		clock = RealClock()
	}
	return &Watchdog{
		cleaner: cleaner,
		window:  window,
		clock:   clock,
		logger:  logging.OrNop(logger).WithComponent("watchdog"),
		done:    make(chan struct{}),
	}
}

// Start runs the watchdog in a new goroutine.
func (w *Watchdog) Start(ctx context.Context) {
	go w.Run(ctx)
}

// Run performs the startup pass, waits for the effective end and performs
// the expiry pass. It returns early with ctx.Err() if ctx is cancelled
// while waiting; the expiry pass is then left to the caller.
func (w *Watchdog) Run(ctx context.Context) error {
	defer close(w.done)

	w.pass(ctx, PassStartup)

	wait := w.window.EffectiveEnd.Sub(w.clock.Now())
	if wait > 0 {
		w.logger.Info("waiting for session end", "effective_end", w.window.EffectiveEndString(), "in", wait.Round(time.Second))
		select {
		case <-w.clock.After(wait):
		case <-ctx.Done():
			w.logger.Warn("watchdog cancelled before session end", "error", ctx.Err())
			return ctx.Err()
		}
	}

	w.pass(ctx, PassExpiry)
	w.finished.Store(true)
	return nil
}

// pass runs one cleanup pass. Failures are logged, never retried.
func (w *Watchdog) pass(ctx context.Context, name string) {
	w.passes.Add(1)
	start := w.clock.Now()
	if err := w.cleaner.StopAll(ctx, name); err != nil {
		w.logger.Error("cleanup pass failed", "pass", name, "error", err)
		return
	}
	w.logger.Info("cleanup pass complete", "pass", name, "duration", w.clock.Now().Sub(start))
}

// Passes returns how many cleanup passes have started.
func (w *Watchdog) Passes() int { return int(w.passes.Load()) }

// Finished reports whether the expiry pass has run.
func (w *Watchdog) Finished() bool { return w.finished.Load() }

// Done is closed when Run returns.
func (w *Watchdog) Done() <-chan struct{} { return w.done }
