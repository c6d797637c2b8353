package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/errors"
)

var validateCmd = &cobra.Command{
	Use:   "validate [watch-file...]",
	Short: "Validate watch documents",
	Long:  "Validates the given watch files, or every document in the config directory when no arguments are given.",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		failed := 0
		for _, path := range args {
			if _, err := config.LoadFile(path); err != nil {
				pterm.Error.Printf("%s: %v\n", path, err)
				failed++
				continue
			}
			pterm.Success.Printf("%s\n", path)
		}
		if failed > 0 {
			return errors.Newf("%d of %d files invalid", failed, len(args))
		}
		return nil
	}

	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}

	watches, invalid, err := config.LoadDir(settings.ConfigDir)
	if err != nil {
		return err
	}
	for name, loadErr := range invalid {
		pterm.Error.Printf("%s: %v\n", name, loadErr)
	}
	for _, w := range watches {
		pterm.Success.Printf("%s (%s)\n", w.SourceFile, w.WatchID())
	}

	fmt.Printf("\n%d valid, %d invalid\n", len(watches), len(invalid))
	if len(invalid) > 0 {
		return errors.Newf("%d invalid watch documents", len(invalid))
	}
	return nil
}
