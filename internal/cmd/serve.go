package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/buckleypaul/benchlab/internal/config"
	"github.com/buckleypaul/benchlab/internal/examples"
	"github.com/buckleypaul/benchlab/internal/lab"
	"github.com/buckleypaul/benchlab/internal/logging"
	"github.com/buckleypaul/benchlab/internal/metrics"
	"github.com/buckleypaul/benchlab/internal/server"
	"github.com/buckleypaul/benchlab/internal/session"
	"github.com/buckleypaul/benchlab/internal/suggest"
)

// shutdownTimeout bounds graceful shutdown and the final cleanup pass.
const shutdownTimeout = 2 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a lab session",
	Long: `Serve identifies the boards, flashes the stop firmware to all of them and
serves the lab API until the session ends. The stop firmware is flashed
again shortly before the booked end time.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "address to listen on (overrides http.listen)")
	serveCmd.Flags().String("end-time", "", "session end time, e.g. 2024-01-01T12:00:00.000000Z (overrides END_TIME)")
	serveCmd.Flags().String("user", "", "email of the booked user (overrides USER_EMAIL)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"http.listen":        "listen",
		"session.end_time":   "end-time",
		"session.user_email": "user",
	})
	if err != nil {
		return err
	}
	if err := cfg.ValidateSession(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	sessionID := uuid.NewString()
	logger = logger.WithSession(sessionID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	window, err := session.NewWindow(time.Now(), cfg.Session.EndTime)
	if err != nil {
		return err
	}
	logger.Info("session starting",
		"start", session.FormatTime(window.Start),
		"end", session.FormatTime(window.NominalEnd),
		"effective_end", window.EffectiveEndString(),
		"boards", len(cfg.Boards),
	)

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}

	m := metrics.New(func() float64 { return window.Remaining(time.Now()).Seconds() })
	svc := lab.New(lab.Deps{
		SessionID: sessionID,
		Registry:  rt.registry,
		Gateway:   rt.gateway,
		Window:    window,
		Store:     rt.store,
		Metrics:   m,
		Logger:    logger,
		Settle:    cfg.Power.Settle(),
	})

	catalog := examples.New(rt.ws.ExamplesDir(), logger)
	if err := catalog.Watch(); err != nil {
		logger.Warn("example watcher disabled", "error", err)
	}
	defer catalog.Close()

	wdCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	wd := session.NewWatchdog(svc, window, nil, logger)
	wd.Start(wdCtx)

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           server.New(serverConfig(cfg, logger), svc, catalog, m, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "prefix", cfg.URLPrefix())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case <-wd.Done():
		logger.Info("session ended")
	case serveErr = <-errCh:
		logger.Error("http server failed", "error", serveErr)
	}

	stopWatchdog()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	// Stopped before the expiry pass ran: leave the boards running the stop
	// firmware anyway.
	if !wd.Finished() {
		if err := svc.StopAll(shutdownCtx, "shutdown"); err != nil {
			logger.Error("final cleanup failed", "error", err)
		}
	}
	<-wd.Done()

	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}

func serverConfig(cfg *config.Config, logger *logging.Logger) server.Config {
	sc := server.Config{
		Prefix:         cfg.URLPrefix(),
		UserEmail:      cfg.Session.UserEmail,
		EndTime:        cfg.Session.EndTime,
		CamURL:         cfg.Lab.CamURL,
		CookieName:     cfg.HTTP.CookieName,
		BaudRate:       cfg.Monitor.BaudRate,
		MonitorDefault: cfg.Monitor.DefaultDuration(),
		MonitorMax:     cfg.Monitor.MaxDuration(),
	}
	if cfg.Suggest.URL != "" {
		sc.Suggester = suggest.NewClient(cfg.Suggest.URL, cfg.Suggest.Action, cfg.Suggest.Timeout(), logger)
	}
	return sc
}
