package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/benchlab/internal/board"
	"github.com/buckleypaul/benchlab/internal/toolchain"
	"github.com/buckleypaul/benchlab/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that this host can run a lab session",
	Long: `Doctor checks the external tools, the precompiled stop firmware for every
board platform, that the lab root is writable and that every configured
board is visible in the kernel log.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	out := cmd.OutOrStdout()
	env := toolchain.NewEnv(cfg.Toolchain.BinDir, cfg.ToolOverrides(), cfg.Toolchain.Env)
	ws := toolchain.Workspace{Root: cfg.Lab.Root}
	health := ws.CheckHealth(env, cfg.Boards)
	printHealth(out, health)

	ok := health.OK()
	boards, err := newEnumerator(cfg, env, logger).Inspect(cmd.Context(), cfg.Boards)
	if err != nil {
		fmt.Fprintf(out, "%s kernel log: %v\n", ui.ErrorBadge("FAIL"), err)
		ok = false
	} else {
		ok = printBoards(out, boards) && ok
	}

	if attached, err := toolchain.ListAttached(cmd.Context(), toolchain.OSRunner{Env: env}); err == nil {
		fmt.Fprintf(out, "\narduino-cli sees %d attached board(s)\n", len(attached))
		for _, a := range attached {
			fmt.Fprintf(out, "  %-14s %-20s %s\n", a.Port, a.Name, a.FQBN)
		}
	}

	if !ok {
		return errors.New("lab host is not ready")
	}
	fmt.Fprintln(out, "\n"+ui.SuccessBadge("READY"))
	return nil
}

func printHealth(w io.Writer, h toolchain.WorkspaceHealth) {
	for _, t := range h.Tools {
		switch {
		case t.OK():
			fmt.Fprintf(w, "%s %s\n", ui.SuccessBadge(" OK "), t)
		case t.Required:
			fmt.Fprintf(w, "%s %s\n", ui.ErrorBadge("FAIL"), t)
		default:
			fmt.Fprintf(w, "%s %s (needed for lab reset)\n", ui.Badge("WARN", ui.Warning), t)
		}
	}
	for _, p := range h.MissingStopArtifacts {
		fmt.Fprintf(w, "%s no stop firmware for %s in compilations/precompiled\n", ui.ErrorBadge("FAIL"), p)
	}
	if !h.Writable {
		fmt.Fprintf(w, "%s lab root is not writable\n", ui.ErrorBadge("FAIL"))
	}
}

func printBoards(w io.Writer, boards []board.Board) bool {
	ok := true
	for _, b := range boards {
		if b.Valid() {
			fmt.Fprintf(w, "%s %s: %s (serial %s)\n", ui.SuccessBadge(" OK "), b.ID, b.DevicePath(), b.SerialNumber)
			continue
		}
		ok = false
		fmt.Fprintf(w, "%s %s: %v\n", ui.ErrorBadge("FAIL"), b.ID, board.ErrBoardNotConnected)
	}
	return ok
}
