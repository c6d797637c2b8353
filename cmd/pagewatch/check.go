package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagewatch/pagewatch/browser"
	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/logger"
	"github.com/pagewatch/pagewatch/notify"
	"github.com/pagewatch/pagewatch/runner"
	"github.com/pagewatch/pagewatch/state"
)

var flagNotify bool

var checkCmd = &cobra.Command{
	Use:   "check <watch-file>",
	Short: "Run a single watch once and print the result",
	Long:  "Executes one check of the given watch document immediately and prints the extracted data and changes as JSON. Notifications are suppressed unless --notify is set.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&flagNotify, "notify", false, "send notifications for detected changes")
}

func runCheck(cmd *cobra.Command, args []string) error {
	w, err := config.LoadFile(args[0])
	if err != nil {
		return err
	}

	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	if !flagNotify {
		// Blank transports so nothing can fire.
		settings.TelegramBotToken = ""
		settings.TelegramChatID = ""
		settings.NtfyURL = ""
		settings.WebhookURL = ""
		w.Notifications = nil
	}

	store, err := state.NewStore(settings.StateDir, logger.Logger)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(settings.ScreenshotDir, 0o755); err != nil {
		return err
	}

	// The browser is only launched when the watch needs it.
	var b browser.Browser
	if w.EffectiveFetchMode() == config.FetchModeBrowser {
		launchOpts := browser.LaunchOptions{Headless: !flagHeadful}
		if settings.ProxyServer != "" {
			launchOpts.Proxy = &browser.ProxyOptions{
				Server:   settings.ProxyServer,
				Username: settings.ProxyUsername,
				Password: settings.ProxyPassword,
			}
		}
		if b, err = browser.Launch(launchOpts); err != nil {
			return err
		}
		defer b.Close()
	}

	notifier := notify.NewRouter(settings, logger.Logger)
	r := runner.New(settings, b, store, notifier, logger.Logger)

	res := r.Run(cmd.Context(), w)

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !res.Success {
		os.Exit(1)
	}
	return nil
}
