package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/buckleypaul/benchlab/internal/board"
	"github.com/buckleypaul/benchlab/internal/config"
	"github.com/buckleypaul/benchlab/internal/enumerate"
	"github.com/buckleypaul/benchlab/internal/logging"
	"github.com/buckleypaul/benchlab/internal/serial"
	"github.com/buckleypaul/benchlab/internal/store"
	"github.com/buckleypaul/benchlab/internal/toolchain"
)

// runtime holds the collaborators shared by the commands that talk to
// boards.
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	env      *toolchain.Env
	ws       toolchain.Workspace
	enum     *enumerate.Enumerator
	registry *board.Registry
	gateway  *toolchain.Gateway
	store    *store.Store
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	dir := cfg.Logging.Dir
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.Lab.Root, dir)
	}
	return logging.NewLogger(dir, cfg.Logging.Level)
}

func newEnumerator(cfg *config.Config, env *toolchain.Env, logger *logging.Logger) *enumerate.Enumerator {
	var src enumerate.Source = enumerate.KernelLog{Runner: toolchain.OSRunner{Env: env}}
	if cfg.Enumeration.KernelLog != "" {
		src = enumerate.FileSource{Path: cfg.Enumeration.KernelLog}
	}
	opts := []enumerate.Option{
		enumerate.WithHub(cfg.Enumeration.Hub),
		enumerate.WithLogger(logger),
	}
	if cfg.Enumeration.VerifyPorts {
		opts = append(opts, enumerate.WithPortLister(serial.HostLister{}))
	}
	return enumerate.New(src, opts...)
}

// newRuntime prepares the workspace and identifies every configured board.
// It fails with board.ErrBoardNotConnected if any board is missing.
func newRuntime(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*runtime, error) {
	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		env:    toolchain.NewEnv(cfg.Toolchain.BinDir, cfg.ToolOverrides(), cfg.Toolchain.Env),
		ws:     toolchain.Workspace{Root: cfg.Lab.Root},
		store:  store.New(cfg.StatePath()),
	}

	ids := make([]string, 0, len(cfg.Boards))
	for _, b := range cfg.Boards {
		ids = append(ids, b.ID)
	}
	if err := rt.ws.Prepare(ids); err != nil {
		return nil, fmt.Errorf("prepare workspace: %w", err)
	}

	rt.enum = newEnumerator(cfg, rt.env, logger)
	boards, err := rt.enum.Resolve(ctx, cfg.Boards)
	if err != nil {
		return nil, err
	}
	rt.registry, err = board.NewRegistry(boards, rt.enum, logger)
	if err != nil {
		return nil, err
	}

	opts := []toolchain.GatewayOption{
		toolchain.WithLogger(logger),
		toolchain.WithPowerHub(cfg.Power.Hub, cfg.Power.DelaySeconds),
	}
	if cfg.Monitor.Backend == config.BackendSerial {
		opts = append(opts, toolchain.WithTerminal(serial.Terminal{}))
	}
	rt.gateway = toolchain.NewGateway(rt.registry, rt.ws, rt.env, opts...)
	return rt, nil
}
