// Package cmd wires the sheetsage commands: the API server, the interactive
// terminal client, and one-shot operations against a running server.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetsage/sheetsage/internal/log"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "sheetsage",
	Short: "Ask questions about your spreadsheets in plain language",
	Long: `Sheetsage turns CSV and Excel files into a queryable database and
answers questions about them in plain language.

Running sheetsage without a subcommand starts the interactive chat.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

// newLogger builds the process logger. DEBUG in the environment works the
// same as --debug so the flag is not needed on every invocation.
func newLogger() log.Logger {
	return log.New(log.Config{Level: logLevel()})
}

func logLevel() slog.Level {
	if debugFlag || os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
