package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sheetsage/sheetsage/internal/client"
	"github.com/sheetsage/sheetsage/internal/config"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a CSV or Excel file as a new dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	out := cmd.OutOrStdout()
	svc := client.New(cfg.APIBaseURL, logger)

	ds, err := svc.Upload(ctx, f, filepath.Base(path), func(percent int, status string) {
		fmt.Fprintf(out, "\r%3d%% %s", percent, status)
	})
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}

	fmt.Fprintf(out, "Dataset #%d: %s (%d rows, %d columns)\n",
		ds.ID, ds.FileName, ds.RowCount, len(ds.Columns))
	return nil
}
