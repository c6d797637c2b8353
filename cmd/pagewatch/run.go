package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagewatch/pagewatch/browser"
	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/logger"
	"github.com/pagewatch/pagewatch/notify"
	"github.com/pagewatch/pagewatch/runner"
	"github.com/pagewatch/pagewatch/schedule"
	"github.com/pagewatch/pagewatch/server"
	"github.com/pagewatch/pagewatch/state"
)

const shutdownTimeout = 30 * time.Second

var flagHeadful bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor",
	Long:  "Loads every watch from the config directory and runs them on their schedules until interrupted.",
	RunE:  runMonitor,
}

func init() {
	runCmd.Flags().BoolVar(&flagHeadful, "headful", false, "run the browser with a visible window")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}

	store, err := state.NewStore(settings.StateDir, logger.Logger)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(settings.ScreenshotDir, 0o755); err != nil {
		return err
	}

	launchOpts := browser.LaunchOptions{Headless: !flagHeadful}
	if settings.ProxyServer != "" {
		launchOpts.Proxy = &browser.ProxyOptions{
			Server:   settings.ProxyServer,
			Username: settings.ProxyUsername,
			Password: settings.ProxyPassword,
		}
	}
	b, err := browser.Launch(launchOpts)
	if err != nil {
		return err
	}
	defer b.Close()

	notifier := notify.NewRouter(settings, logger.Logger)
	r := runner.New(settings, b, store, notifier, logger.Logger)
	engine := schedule.NewEngine(settings, r, logger.Logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		return err
	}

	srv := server.New(settings.HealthPort, engine, r, logger.Logger)
	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Start() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Infow("Shutting down", "signal", s.String())
	case err := <-serverErr:
		if err != nil {
			logger.Errorw("Status server failed", "error", err)
		}
	}

	cancel()
	engine.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warnw("Status server shutdown failed", "error", err)
	}

	return nil
}
