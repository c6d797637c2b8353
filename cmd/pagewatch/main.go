// Command pagewatch monitors web pages for changes: it loads declarative
// watch documents, checks each page on its schedule, and notifies on change.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/pagewatch/pagewatch/logger"
)

var (
	flagJSON    bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "pagewatch",
	Short: "Web page change monitor",
	Long: `pagewatch watches web pages for changes.

Each watch is a JSON or YAML document declaring a page to load, actions to
perform, data to extract, how to compare it against the last run, and where
to send notifications.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(flagJSON); err != nil {
			return err
		}
		if flagVerbose {
			return logger.SetLevel(zapcore.DebugLevel)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON log output")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug log output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
