package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sheetsage/sheetsage/internal/client"
	"github.com/sheetsage/sheetsage/internal/config"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Manage uploaded datasets",
	RunE:  runDatasetsList,
}

var datasetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded datasets",
	RunE:  runDatasetsList,
}

var datasetsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a dataset and its table",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetsRm,
}

var datasetsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Remove catalog entries whose tables are gone",
	RunE:  runDatasetsSync,
}

func init() {
	datasetsCmd.AddCommand(datasetsListCmd, datasetsRmCmd, datasetsSyncCmd)
	rootCmd.AddCommand(datasetsCmd)
}

// newAPIClient loads config and returns the client commands talk through.
func newAPIClient() (*client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return client.New(cfg.APIBaseURL, newLogger()), nil
}

func runDatasetsList(cmd *cobra.Command, args []string) error {
	svc, err := newAPIClient()
	if err != nil {
		return err
	}

	datasets, err := svc.ListDatasets(context.Background())
	if err != nil {
		return fmt.Errorf("listing datasets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(datasets) == 0 {
		fmt.Fprintln(out, "No datasets uploaded yet. Use: sheetsage upload <file>")
		return nil
	}

	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"ID", "File", "Type", "Rows", "Columns", "Uploaded"})
	for _, ds := range datasets {
		w.AppendRow(table.Row{
			ds.ID, ds.FileName, ds.FileType, ds.RowCount,
			strings.Join(ds.Columns, ", "),
			ds.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprintln(out, w.Render())
	return nil
}

func runDatasetsSync(cmd *cobra.Command, args []string) error {
	svc, err := newAPIClient()
	if err != nil {
		return err
	}

	removed, err := svc.SyncDatasets(context.Background())
	if err != nil {
		return fmt.Errorf("syncing datasets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(removed) == 0 {
		fmt.Fprintln(out, "Catalog is in sync.")
		return nil
	}
	for _, id := range removed {
		fmt.Fprintf(out, "Removed stale dataset #%d\n", id)
	}
	return nil
}

func runDatasetsRm(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid dataset id %q", args[0])
	}

	svc, err := newAPIClient()
	if err != nil {
		return err
	}

	if err := svc.DeleteDataset(context.Background(), id); err != nil {
		return fmt.Errorf("deleting dataset %d: %w", id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted dataset #%d\n", id)
	return nil
}
