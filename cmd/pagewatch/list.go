package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pagewatch/pagewatch/config"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured watches",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}

	watches, invalid, err := config.LoadDir(settings.ConfigDir)
	if err != nil {
		return err
	}

	data := pterm.TableData{
		{"ID", "Name", "URL", "Schedule", "Mode", "Enabled"},
	}
	for _, w := range watches {
		schedule := w.Schedule
		if schedule == "" {
			schedule = w.Interval(settings.CheckInterval()).String()
		}
		enabled := "yes"
		if !w.IsEnabled() {
			enabled = "no"
		}
		data = append(data, []string{
			w.WatchID(), w.Name, w.URL, schedule, w.EffectiveFetchMode(), enabled,
		})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	for name, loadErr := range invalid {
		pterm.Error.Printf("%s: %v\n", name, loadErr)
	}
	fmt.Printf("\n%d watches (%d invalid files)\n", len(watches), len(invalid))
	return nil
}
