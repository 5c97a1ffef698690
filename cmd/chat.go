package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/sheetsage/sheetsage/internal/client"
	"github.com/sheetsage/sheetsage/internal/config"
	"github.com/sheetsage/sheetsage/internal/log"
	"github.com/sheetsage/sheetsage/internal/tui"
)

var (
	chatFlagChat    int64
	chatFlagDataset int64
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive terminal chat",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().Int64Var(&chatFlagChat, "chat", 0, "resume an existing chat by id")
	chatCmd.Flags().Int64Var(&chatFlagDataset, "dataset", 0, "pin questions to one dataset by id")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The alternate screen owns the terminal, so logs go to a file.
	logger, closeLog := chatLogger()
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc := client.New(cfg.APIBaseURL, logger)

	opts := tui.Options{}
	if chatFlagChat > 0 {
		opts.ChatID = &chatFlagChat
	}
	if chatFlagDataset > 0 {
		opts.DatasetID = &chatFlagDataset
	}

	model, err := tui.New(ctx, svc, logger, opts)
	if err != nil {
		return fmt.Errorf("initializing terminal ui: %w", err)
	}

	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("running terminal ui: %w", err)
	}
	return nil
}

// chatLogger logs to ~/.sheetsage/tui.log. Falls back to a no-op logger
// when the file cannot be opened.
func chatLogger() (log.Logger, func()) {
	home, err := os.UserHomeDir()
	if err != nil {
		return log.NewNop(), func() {}
	}
	path := filepath.Join(home, ".sheetsage", "tui.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return log.NewNop(), func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return log.NewNop(), func() {}
	}

	level := logLevel()
	return log.NewWithWriter(f, log.Config{Level: level}), func() { _ = f.Close() }
}
