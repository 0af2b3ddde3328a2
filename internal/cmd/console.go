package cmd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/buckleypaul/benchlab/internal/api"
	"github.com/buckleypaul/benchlab/internal/app"
	"github.com/buckleypaul/benchlab/internal/config"
	"github.com/buckleypaul/benchlab/internal/pages"
)

var (
	consoleURL  string
	consoleUser string
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the terminal console of a running lab",
	Long: `Console connects to a lab served by "benchlab serve" and lets the booked
user load examples, compile, upload and capture serial output from the
terminal.`,
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().StringVar(&consoleURL, "url", "", "lab URL including the lab prefix (default from config)")
	consoleCmd.Flags().StringVar(&consoleUser, "user", "", "booked user email (default from config)")
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("console needs an interactive terminal")
	}

	url, user := consoleURL, consoleUser
	var cfg *config.Config
	if url == "" || user == "" {
		var err error
		cfg, err = loadConfig(cmd, nil)
		if err != nil {
			return fmt.Errorf("no --url/--user given and config unusable: %w", err)
		}
	}
	if url == "" {
		url = localURL(cfg)
	}
	if user == "" {
		user = cfg.Session.UserEmail
	}

	baud, secs := config.DefaultBaudRate, config.DefaultMonitorSeconds
	if cfg != nil {
		baud, secs = cfg.Monitor.BaudRate, cfg.Monitor.DefaultSeconds
	}

	client := api.NewClient(url, user)
	pageMap := map[app.PageID]app.Page{
		app.BoardsPage:  pages.NewBoardsPage(client),
		app.SketchPage:  pages.NewSketchPage(client),
		app.MonitorPage: pages.NewMonitorPage(client, baud, secs),
		app.HistoryPage: pages.NewHistoryPage(client),
	}

	p := tea.NewProgram(app.New(pageMap, client), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

// localURL is the lab URL on this host for cfg.
func localURL(cfg *config.Config) string {
	host, port, err := net.SplitHostPort(cfg.HTTP.Listen)
	if err != nil {
		host, port = "", strings.TrimPrefix(cfg.HTTP.Listen, ":")
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + cfg.URLPrefix()
}
