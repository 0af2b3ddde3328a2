package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/benchlab/internal/board"
	"github.com/buckleypaul/benchlab/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Init writes benchlab.yaml (or the file given with --config) with the
default settings and one example board. Edit the board list to match the
hub before running "benchlab doctor".`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configFile()
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := starterConfig()
	if err := config.Save(&cfg, path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	cmd.Printf("wrote %s\n", path)
	return nil
}

func starterConfig() config.Config {
	cfg := config.Defaults()
	cfg.Lab.ServerName = "lab-server"
	cfg.Lab.Name = "arduino"
	cfg.Boards = []board.Config{
		{ID: "Board_1", Name: "Arduino Uno", Model: "Uno", FQBN: "arduino:avr:uno", USBPort: "2"},
	}
	return cfg
}
