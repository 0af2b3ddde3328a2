package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/buckleypaul/benchlab/internal/board"
	"github.com/buckleypaul/benchlab/internal/logging"
)

// ErrArtifactMissing is returned when there is no firmware to upload.
var ErrArtifactMissing = errors.New("firmware artifact missing")

// Target selects which firmware an upload deploys.
type Target string

const (
	// TargetUser deploys the board's most recent successful compile.
	TargetUser Target = "user"
	// TargetStop deploys the shared neutral firmware for the board's platform.
	TargetStop Target = "stop"
)

// ParseTarget validates an upload target name.
func ParseTarget(s string) (Target, error) {
	switch Target(strings.ToLower(strings.TrimSpace(s))) {
	case TargetUser:
		return TargetUser, nil
	case TargetStop:
		return TargetStop, nil
	default:
		return "", fmt.Errorf("unknown upload target %q", s)
	}
}

// CompileResult is the outcome of compiling a sketch for a board.
type CompileResult struct {
	Board      string        `json:"board"`
	Output     string        `json:"output"`
	Errors     string        `json:"error"`
	ExitCode   int           `json:"exit_code"`
	Duration   time.Duration `json:"duration"`
	ToolFailed bool          `json:"tool_failed"`
}

// OK reports whether the compile produced no diagnostics.
func (r CompileResult) OK() bool {
	return !r.ToolFailed && strings.TrimSpace(r.Errors) == ""
}

// UploadResult is the outcome of flashing a board.
type UploadResult struct {
	Board      string        `json:"board"`
	Target     Target        `json:"target"`
	Artifact   string        `json:"artifact"`
	Device     string        `json:"device"`
	Output     string        `json:"output"`
	Errors     string        `json:"error"`
	ExitCode   int           `json:"exit_code"`
	Duration   time.Duration `json:"duration"`
	ToolFailed bool          `json:"tool_failed"`
}

// OK reports whether the upload produced no diagnostics.
func (r UploadResult) OK() bool {
	return !r.ToolFailed && strings.TrimSpace(r.Errors) == ""
}

// MonitorResult is the text captured from a board's serial console.
type MonitorResult struct {
	Board    string        `json:"board"`
	Device   string        `json:"device"`
	BaudRate int           `json:"baud_rate"`
	Output   string        `json:"output"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Gateway runs the external toolchain against registry boards. It does no
// locking of its own; callers serialize per board through the arbiter.
type Gateway struct {
	registry *board.Registry
	ws       Workspace
	env      *Env
	runner   Runner
	term     Terminal
	logger   *logging.Logger

	powerHub   string
	powerDelay int

	mu        sync.Mutex
	lastBuild map[string]string
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithRunner replaces the command runner.
func WithRunner(r Runner) GatewayOption {
	return func(g *Gateway) { g.runner = r }
}

// WithTerminal replaces the serial monitor backend.
func WithTerminal(t Terminal) GatewayOption {
	return func(g *Gateway) { g.term = t }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// WithPowerHub sets the USB hub power-cycled by PowerCycle.
func WithPowerHub(hub string, delaySeconds int) GatewayOption {
	return func(g *Gateway) {
		g.powerHub = hub
		g.powerDelay = delaySeconds
	}
}

// NewGateway creates a Gateway. Without options it runs tools on the host
// and monitors through a pseudo-terminal.
func NewGateway(registry *board.Registry, ws Workspace, env *Env, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		registry:   registry,
		ws:         ws,
		env:        env,
		runner:     OSRunner{Env: env},
		term:       PTYTerminal{Env: env},
		powerHub:   "1-1",
		powerDelay: 2,
		lastBuild:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrNop(g.logger).WithComponent("toolchain")
	return g
}

// Compile writes source to the board's scratch sketch and builds it.
// Compiles run to completion even if ctx is cancelled.
func (g *Gateway) Compile(ctx context.Context, id, source string) (CompileResult, error) {
	b, err := g.registry.Get(id)
	if err != nil {
		return CompileResult{}, err
	}

	if err := os.MkdirAll(g.ws.SketchDir(id), 0o755); err != nil {
		return CompileResult{}, fmt.Errorf("create sketch dir: %w", err)
	}
	if err := os.WriteFile(g.ws.SketchFile(id), []byte(source), 0o644); err != nil {
		return CompileResult{}, fmt.Errorf("write sketch: %w", err)
	}

	args := CompileArgs(b.FQBN, g.ws.BuildDir(id), g.ws.CacheDir(id), g.ws.SketchDir(id))
	res, runErr := g.runner.Run(context.WithoutCancel(ctx), ToolArduinoCLI, args...)

	out := CompileResult{
		Board:    id,
		Output:   res.Stdout,
		Errors:   res.Diagnostics(ToolArduinoCLI),
		ExitCode: res.ExitCode,
		Duration: res.Duration,
	}
	if runErr != nil {
		out.ToolFailed = true
		return out, runErr
	}

	if !res.Failed() {
		if artifact, ok := g.ws.BuildArtifact(id); ok {
			g.mu.Lock()
			g.lastBuild[id] = artifact
			g.mu.Unlock()
		} else {
			g.logger.Warn("compile succeeded without a build artifact", "board", id, "build_dir", g.ws.BuildDir(id))
		}
	}
	g.logger.Debug("compile finished", "board", id, "exit_code", res.ExitCode, "duration", res.Duration)
	return out, nil
}

// ResolveArtifact returns the firmware file an upload of target would flash.
func (g *Gateway) ResolveArtifact(id string, target Target) (string, error) {
	b, err := g.registry.Get(id)
	if err != nil {
		return "", err
	}

	switch target {
	case TargetStop:
		p, ok := g.ws.StopArtifact(b.Config)
		if !ok {
			return "", fmt.Errorf("%w: no stop firmware for %s (expected %s)", ErrArtifactMissing, b.Platform(), p)
		}
		return p, nil
	case TargetUser:
		g.mu.Lock()
		p := g.lastBuild[id]
		g.mu.Unlock()
		if p == "" {
			return "", fmt.Errorf("%w: board %s has no successful compilation", ErrArtifactMissing, id)
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: %s", ErrArtifactMissing, p)
		}
		return p, nil
	default:
		return "", fmt.Errorf("unknown upload target %q", target)
	}
}

// Upload flashes target firmware to a board. The device handle is
// re-resolved first because the kernel may have renamed the device.
// Uploads run to completion even if ctx is cancelled.
func (g *Gateway) Upload(ctx context.Context, id string, target Target) (UploadResult, error) {
	b, err := g.registry.Refresh(ctx, id)
	if err != nil {
		return UploadResult{}, err
	}

	out := UploadResult{Board: id, Target: target, Device: b.DevicePath()}
	artifact, err := g.ResolveArtifact(id, target)
	if err != nil {
		if errors.Is(err, ErrArtifactMissing) {
			out.Errors = err.Error() + "\n"
			return out, nil
		}
		return out, err
	}
	out.Artifact = artifact

	res, runErr := g.runner.Run(context.WithoutCancel(ctx), ToolArduinoCLI, UploadArgs(b.DevicePath(), b.FQBN, artifact)...)
	out.Output = res.Stdout
	out.Errors = res.Diagnostics(ToolArduinoCLI)
	out.ExitCode = res.ExitCode
	out.Duration = res.Duration
	if runErr != nil {
		out.ToolFailed = true
		return out, runErr
	}
	g.logger.Debug("upload finished", "board", id, "target", target, "device", out.Device, "exit_code", res.ExitCode)
	return out, nil
}

// MonitorCapture captures a board's serial output for at most d.
func (g *Gateway) MonitorCapture(ctx context.Context, id string, baudRate int, d time.Duration) (MonitorResult, error) {
	b, err := g.registry.Refresh(ctx, id)
	if err != nil {
		return MonitorResult{}, err
	}

	spec := MonitorSpec{
		Board:    id,
		Device:   b.DevicePath(),
		BaudRate: baudRate,
		Command:  ToolArduinoCLI,
		Args:     MonitorArgs(b.DevicePath(), baudRate),
	}
	cr, err := Capture(ctx, g.term, spec, d)
	out := MonitorResult{
		Board:    id,
		Device:   spec.Device,
		BaudRate: baudRate,
		Output:   cr.Output,
		TimedOut: cr.TimedOut,
		Duration: cr.Duration,
	}
	return out, err
}

// PowerCycle switches the USB hub off and on again.
func (g *Gateway) PowerCycle(ctx context.Context) (Result, error) {
	return g.runner.Run(context.WithoutCancel(ctx), ToolUhubctl, PowerCycleArgs(g.powerHub, g.powerDelay)...)
}
