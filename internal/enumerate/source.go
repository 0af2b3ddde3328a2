package enumerate

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/buckleypaul/benchlab/internal/toolchain"
)

// Source returns a snapshot of the kernel log.
type Source interface {
	Snapshot(ctx context.Context) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (string, error)

// Snapshot implements Source.
func (f SourceFunc) Snapshot(ctx context.Context) (string, error) { return f(ctx) }

// KernelLog reads the kernel ring buffer with dmesg.
type KernelLog struct {
	Runner toolchain.Runner
}

// Snapshot runs dmesg once.
func (k KernelLog) Snapshot(ctx context.Context) (string, error) {
	res, err := k.Runner.Run(ctx, toolchain.ToolDmesg)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("dmesg: %s", strings.TrimSpace(res.Diagnostics(toolchain.ToolDmesg)))
	}
	return res.Stdout, nil
}

// FileSource reads a saved kernel log, e.g. /var/log/kern.log.
type FileSource struct {
	Path string
}

// Snapshot reads the whole file.
func (f FileSource) Snapshot(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("read kernel log: %w", err)
	}
	return string(data), nil
}
