package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/benchlab/internal/lab"
	"github.com/buckleypaul/benchlab/internal/metrics"
	"github.com/buckleypaul/benchlab/internal/session"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Flash the stop firmware to every board",
	Long: `Stop identifies the boards and flashes the precompiled stop firmware to all
of them, outside of a session. Use it to put the lab in a safe state after
a crash.`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	rt, err := newRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	now := time.Now()
	svc := lab.New(lab.Deps{
		SessionID: "manual",
		Registry:  rt.registry,
		Gateway:   rt.gateway,
		Window:    session.Window{Start: now, NominalEnd: now, EffectiveEnd: now},
		Store:     rt.store,
		Metrics:   metrics.New(nil),
		Logger:    logger,
	})
	if err := svc.StopAll(cmd.Context(), "manual"); err != nil {
		return err
	}
	cmd.Printf("stop firmware flashed to %d board(s)\n", len(rt.registry.IDs()))
	return nil
}
