package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/buckleypaul/benchlab/internal/board"
	"github.com/buckleypaul/benchlab/internal/toolchain"
	"github.com/buckleypaul/benchlab/internal/ui"
)

var boardsOutput string

var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "Show how the configured boards map to USB devices",
	Long: `Boards reads the kernel log once and shows, for each configured board,
the serial number and device handle found at its USB port. It does not
flash anything.`,
	RunE: runBoards,
}

func init() {
	boardsCmd.Flags().StringVarP(&boardsOutput, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(boardsCmd)
}

func runBoards(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	env := toolchain.NewEnv(cfg.Toolchain.BinDir, cfg.ToolOverrides(), cfg.Toolchain.Env)
	enum := newEnumerator(cfg, env, logger)
	boards, err := enum.Inspect(cmd.Context(), cfg.Boards)
	if err != nil {
		return err
	}
	return writeBoards(cmd.OutOrStdout(), boards, enum.Hub(), boardsOutput)
}

func writeBoards(w io.Writer, boards []board.Board, hub, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(boards)
	case "yaml":
		return yaml.NewEncoder(w).Encode(boards)
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ui.Subtle)).
		Headers("ID", "NAME", "FQBN", "USB PATH", "SERIAL", "DEVICE")
	for _, b := range boards {
		device := b.DevicePath()
		if !b.Valid() {
			device = ui.ErrorStyle.Render("not connected")
		}
		t.Row(b.ID, b.Name, b.FQBN, b.USBPath(hub), b.SerialNumber, device)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
