// Package lab ties the board registry, the arbiter and the toolchain
// gateway into the operations a lab session offers.
package lab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/buckleypaul/benchlab/internal/arbiter"
	"github.com/buckleypaul/benchlab/internal/board"
	"github.com/buckleypaul/benchlab/internal/logging"
	"github.com/buckleypaul/benchlab/internal/metrics"
	"github.com/buckleypaul/benchlab/internal/session"
	"github.com/buckleypaul/benchlab/internal/store"
	"github.com/buckleypaul/benchlab/internal/toolchain"
)

// ErrSessionExpired is returned for user operations after the effective end
// of the session.
var ErrSessionExpired = errors.New("session expired")

// ResetSettle is how long the lab waits after a hub power cycle before
// flashing the stop firmware.
const ResetSettle = time.Second

// Operation names used in metrics and logs.
const (
	OpCompile = "compile"
	OpUpload  = "upload"
	OpMonitor = "monitor"
	OpReset   = "reset"
)

// Gateway is the toolchain used by the service.
type Gateway interface {
	Compile(ctx context.Context, id, source string) (toolchain.CompileResult, error)
	Upload(ctx context.Context, id string, target toolchain.Target) (toolchain.UploadResult, error)
	MonitorCapture(ctx context.Context, id string, baudRate int, d time.Duration) (toolchain.MonitorResult, error)
	PowerCycle(ctx context.Context) (toolchain.Result, error)
}

// Deps are the collaborators of a Service. Registry, Gateway and Window are
// required.
type Deps struct {
	SessionID string
	Registry  *board.Registry
	Gateway   Gateway
	Window    session.Window
	// Arbiter defaults to a new arbiter over the registry ids that reports
	// board states to Metrics.
	Arbiter *arbiter.Arbiter
	Store   *store.Store
	Metrics *metrics.Metrics
	Logger  *logging.Logger
	Now     func() time.Time
	Settle  time.Duration
}

// Service runs lab operations for one session.
type Service struct {
	sessionID string
	registry  *board.Registry
	arbiter   *arbiter.Arbiter
	gateway   Gateway
	window    session.Window
	store     *store.Store
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time
	settle    time.Duration
}

var stateNames = []string{
	arbiter.Idle.String(),
	arbiter.Compiling.String(),
	arbiter.Uploading.String(),
	arbiter.Monitoring.String(),
}

// New creates a Service.
func New(d Deps) *Service {
	s := &Service{
		sessionID: d.SessionID,
		registry:  d.Registry,
		arbiter:   d.Arbiter,
		gateway:   d.Gateway,
		window:    d.Window,
		store:     d.Store,
		metrics:   d.Metrics,
		logger:    logging.OrNop(d.Logger).WithComponent("lab"),
		now:       d.Now,
		settle:    d.Settle,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.settle == 0 {
		s.settle = ResetSettle
	}
	if s.arbiter == nil {
		m := s.metrics
		s.arbiter = arbiter.New(d.Registry.IDs(), arbiter.WithObserver(func(id string, st arbiter.State) {
			m.SetBoardState(id, st.String(), stateNames)
		}))
	}
	return s
}

// Window returns the session window.
func (s *Service) Window() session.Window { return s.window }

// Registry returns the board registry.
func (s *Service) Registry() *board.Registry { return s.registry }

// Arbiter returns the arbiter gating the boards.
func (s *Service) Arbiter() *arbiter.Arbiter { return s.arbiter }

func (s *Service) checkActive() error {
	if s.window.Expired(s.now()) {
		return fmt.Errorf("%w at %s", ErrSessionExpired, s.window.EffectiveEndString())
	}
	return nil
}

// acquire takes a board for a user operation, rejecting immediately when it
// is busy.
func (s *Service) acquire(id string, op arbiter.State, name string) (func(), error) {
	if err := s.checkActive(); err != nil {
		s.metrics.ObserveOperation(id, name, metrics.OutcomeExpired, 0)
		return nil, err
	}
	release, err := s.arbiter.TryAcquire(id, op)
	if err != nil {
		if errors.Is(err, arbiter.ErrBoardBusy) {
			s.metrics.ObserveOperation(id, name, metrics.OutcomeBusy, 0)
			s.logger.Info("board busy, request rejected", "board", id, "op", name, "error", err)
		}
		return nil, err
	}
	return release, nil
}

// Compile builds source for a board.
func (s *Service) Compile(ctx context.Context, id, source string) (toolchain.CompileResult, error) {
	release, err := s.acquire(id, arbiter.Compiling, OpCompile)
	if err != nil {
		return toolchain.CompileResult{Board: id}, err
	}
	defer release()

	started := s.now()
	res, err := s.gateway.Compile(ctx, id, source)
	s.metrics.ObserveOperation(id, OpCompile, outcome(err, res.OK()), res.Duration)
	s.record(func(st *store.Store) error {
		return st.AddCompile(store.CompileRecord{
			Session:   s.sessionID,
			Board:     id,
			Timestamp: started,
			Success:   err == nil && res.OK(),
			Duration:  res.Duration.Round(time.Millisecond).String(),
			ExitCode:  res.ExitCode,
			Errors:    res.Errors,
		})
	})
	s.logger.Info("compile finished", "board", id, "ok", res.OK(), "duration", res.Duration)
	return res, err
}

// Upload flashes a board with the user's last build or the stop firmware.
func (s *Service) Upload(ctx context.Context, id string, target toolchain.Target) (toolchain.UploadResult, error) {
	release, err := s.acquire(id, arbiter.Uploading, OpUpload)
	if err != nil {
		return toolchain.UploadResult{Board: id, Target: target}, err
	}
	defer release()
	return s.upload(ctx, id, target)
}

func (s *Service) upload(ctx context.Context, id string, target toolchain.Target) (toolchain.UploadResult, error) {
	started := s.now()
	res, err := s.gateway.Upload(ctx, id, target)
	s.metrics.ObserveOperation(id, OpUpload, outcome(err, res.OK()), res.Duration)
	s.record(func(st *store.Store) error {
		return st.AddUpload(store.UploadRecord{
			Session:    s.sessionID,
			Board:      id,
			Target:     string(target),
			Artifact:   res.Artifact,
			Device:     res.Device,
			Timestamp:  started,
			Success:    err == nil && res.OK(),
			Duration:   res.Duration.Round(time.Millisecond).String(),
			ToolFailed: res.ToolFailed,
		})
	})
	s.logger.Info("upload finished", "board", id, "target", target, "device", res.Device, "ok", err == nil && res.OK())
	return res, err
}

// Monitor captures a board's serial output for at most d.
func (s *Service) Monitor(ctx context.Context, id string, baudRate int, d time.Duration) (toolchain.MonitorResult, error) {
	release, err := s.acquire(id, arbiter.Monitoring, OpMonitor)
	if err != nil {
		return toolchain.MonitorResult{Board: id}, err
	}
	defer release()

	// A capture never runs past the effective end.
	d = min(d, s.window.Remaining(s.now()))
	if d <= 0 {
		s.metrics.ObserveOperation(id, OpMonitor, metrics.OutcomeExpired, 0)
		return toolchain.MonitorResult{Board: id}, fmt.Errorf("%w at %s", ErrSessionExpired, s.window.EffectiveEndString())
	}

	started := s.now()
	res, err := s.gateway.MonitorCapture(ctx, id, baudRate, d)
	s.metrics.ObserveOperation(id, OpMonitor, outcome(err, true), res.Duration)
	s.record(func(st *store.Store) error {
		rec := store.MonitorRecord{
			Session:   s.sessionID,
			Board:     id,
			Device:    res.Device,
			BaudRate:  baudRate,
			Timestamp: started,
			Duration:  res.Duration.Round(time.Millisecond).String(),
			TimedOut:  res.TimedOut,
			Bytes:     len(res.Output),
		}
		if res.Output != "" {
			path, err := st.SaveCapture(id, started, res.Output)
			if err != nil {
				return err
			}
			rec.LogFile = path
		}
		return st.AddMonitor(rec)
	})
	return res, err
}

// StopAll flashes the stop firmware to every board in parallel. Each board
// is waited for rather than rejected when busy, and the session expiry does
// not apply. The returned error joins the failures of all boards.
func (s *Service) StopAll(ctx context.Context, reason string) error {
	return s.stopAll(ctx, reason, true)
}

// stopAll runs a stop pass. With acquire unset the caller already holds
// every board.
func (s *Service) stopAll(ctx context.Context, reason string, acquire bool) error {
	started := s.now()
	var (
		mu     sync.Mutex
		failed []string
		errs   []error
	)
	fail := func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, id)
		errs = append(errs, fmt.Errorf("%s: %w", id, err))
	}

	var g errgroup.Group
	for _, id := range s.registry.IDs() {
		id := id
		g.Go(func() error {
			if acquire {
				release, err := s.arbiter.Acquire(ctx, id, arbiter.Uploading)
				if err != nil {
					fail(id, err)
					return nil
				}
				defer release()
			}

			res, err := s.upload(ctx, id, toolchain.TargetStop)
			if err == nil && !res.OK() {
				err = fmt.Errorf("stop firmware: %s", res.Errors)
			}
			if err != nil {
				s.logger.Error("stop firmware failed", "board", id, "pass", reason, "error", err)
				fail(id, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	outcomeName := metrics.OutcomeOK
	if len(failed) > 0 {
		outcomeName = metrics.OutcomeFailed
	}
	s.metrics.ObserveCleanup(reason, outcomeName)
	s.record(func(st *store.Store) error {
		return st.AddCleanup(store.CleanupRecord{
			Session:   s.sessionID,
			Pass:      reason,
			Timestamp: started,
			Success:   len(failed) == 0,
			Duration:  s.now().Sub(started).Round(time.Millisecond).String(),
			Failed:    failed,
		})
	})
	return errors.Join(errs...)
}

// ResetResult is the outcome of a lab reset.
type ResetResult struct {
	PowerCycle toolchain.Result `json:"power_cycle"`
	Cleanup    string           `json:"cleanup_error,omitempty"`
}

// Reset power-cycles the USB hub, waits for the boards to come back and
// flashes the stop firmware to all of them. Every board must be idle, and
// all of them stay held until the stop pass is done.
func (s *Service) Reset(ctx context.Context) (ResetResult, error) {
	if err := s.checkActive(); err != nil {
		return ResetResult{}, err
	}

	var releases []func()
	defer func() {
		for _, r := range releases {
			r()
		}
	}()
	for _, id := range s.registry.IDs() {
		release, err := s.arbiter.TryAcquire(id, arbiter.Uploading)
		if err != nil {
			s.metrics.ObserveOperation("all", OpReset, metrics.OutcomeBusy, 0)
			return ResetResult{}, err
		}
		releases = append(releases, release)
	}

	var out ResetResult
	res, err := s.gateway.PowerCycle(ctx)
	out.PowerCycle = res
	if err != nil {
		s.metrics.ObserveOperation("all", OpReset, metrics.OutcomeToolFailed, res.Duration)
		return out, err
	}
	s.logger.Info("usb hub power cycled", "exit_code", res.ExitCode)

	settle := time.NewTimer(s.settle)
	defer settle.Stop()
	select {
	case <-ctx.Done():
		s.metrics.ObserveOperation("all", OpReset, metrics.OutcomeError, res.Duration)
		return out, ctx.Err()
	case <-settle.C:
	}

	if err := s.stopAll(ctx, OpReset, false); err != nil {
		out.Cleanup = err.Error()
	}
	s.metrics.ObserveOperation("all", OpReset, outcome(nil, !res.Failed() && out.Cleanup == ""), res.Duration)
	return out, nil
}

// BoardStatus is the public view of one board.
type BoardStatus struct {
	board.Board
	Device string `json:"device"`
	State  string `json:"state"`
}

// Status is the public view of the session.
type Status struct {
	SessionID    string        `json:"session_id"`
	Start        string        `json:"start"`
	NominalEnd   string        `json:"nominal_end"`
	EffectiveEnd string        `json:"effective_end"`
	Remaining    float64       `json:"remaining_seconds"`
	Expired      bool          `json:"expired"`
	Boards       []BoardStatus `json:"boards"`
}

// Boards returns every board with its current state.
func (s *Service) Boards() []BoardStatus {
	states := s.arbiter.Snapshot()
	all := s.registry.All()
	out := make([]BoardStatus, 0, len(all))
	for _, b := range all {
		out = append(out, BoardStatus{Board: b, Device: b.DevicePath(), State: states[b.ID].String()})
	}
	return out
}

// Status returns the session window and board states.
func (s *Service) Status() Status {
	now := s.now()
	return Status{
		SessionID:    s.sessionID,
		Start:        session.FormatTime(s.window.Start),
		NominalEnd:   session.FormatTime(s.window.NominalEnd),
		EffectiveEnd: s.window.EffectiveEndString(),
		Remaining:    s.window.Remaining(now).Seconds(),
		Expired:      s.window.Expired(now),
		Boards:       s.Boards(),
	}
}

// History returns the recorded operations of the session.
func (s *Service) History() (store.History, error) {
	if s.store == nil {
		return store.History{}, nil
	}
	return s.store.History()
}

func (s *Service) record(fn func(*store.Store) error) {
	if s.store == nil {
		return
	}
	if err := fn(s.store); err != nil {
		s.logger.Warn("history write failed", "error", err)
	}
}

func outcome(err error, ok bool) string {
	switch {
	case errors.Is(err, toolchain.ErrToolInvocationFailed):
		return metrics.OutcomeToolFailed
	case err != nil:
		return metrics.OutcomeError
	case !ok:
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomeOK
	}
}
