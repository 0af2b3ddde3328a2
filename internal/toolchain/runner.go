package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrToolInvocationFailed is returned when an external tool could not be run
// at all (missing executable, exec failure). Non-zero exits are not errors;
// they are reported through Result.
var ErrToolInvocationFailed = errors.New("tool invocation failed")

// Result captures the outcome of one external command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Failed reports whether the command signalled failure through its exit
// code or its diagnostic stream.
func (r Result) Failed() bool {
	return r.ExitCode != 0 || strings.TrimSpace(r.Stderr) != ""
}

// Diagnostics returns stderr, or a synthesized line when the tool failed
// without writing anything to stderr.
func (r Result) Diagnostics(name string) string {
	if strings.TrimSpace(r.Stderr) != "" || r.ExitCode == 0 {
		return r.Stderr
	}
	return fmt.Sprintf("%s exited with status %d\n", name, r.ExitCode)
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// OSRunner runs commands on the host with the toolchain environment applied.
type OSRunner struct {
	Env *Env
}

// Run executes name with args and waits for it to exit.
func (r OSRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, r.Env.Resolve(name), args...)
	r.Env.apply(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		if res.Stderr == "" {
			res.Stderr = err.Error() + "\n"
		}
		return res, fmt.Errorf("%w: %s: %v", ErrToolInvocationFailed, name, err)
	}
	return res, nil
}
