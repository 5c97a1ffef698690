package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "charm.land/bubbletea/v2"
)

type datasetListMsg struct {
	text string
}

type uploadDoneMsg struct {
	text string
	err  string
}

// listDatasets fetches the uploaded datasets and formats them as a system
// message.
func (m *Model) listDatasets() tea.Cmd {
	svc := m.svc
	ctx := m.ctx
	return func() tea.Msg {
		datasets, err := svc.ListDatasets(ctx)
		if err != nil {
			return datasetListMsg{text: "Failed to list datasets: " + err.Error()}
		}
		if len(datasets) == 0 {
			return datasetListMsg{text: "No datasets uploaded yet. Use /upload <path>."}
		}
		var b strings.Builder
		b.WriteString("Datasets:\n")
		for _, d := range datasets {
			fmt.Fprintf(&b, "  #%d %s (%d rows, %d columns)\n", d.ID, d.FileName, d.RowCount, len(d.Columns))
		}
		return datasetListMsg{text: strings.TrimRight(b.String(), "\n")}
	}
}

// uploadFile sends one local file to the service.
func (m *Model) uploadFile(path string) tea.Cmd {
	svc := m.svc
	ctx := m.ctx
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return uploadDoneMsg{err: "Cannot open " + path + ": " + err.Error()}
		}
		defer f.Close()

		ds, err := svc.Upload(ctx, f, filepath.Base(path), nil)
		if err != nil {
			return uploadDoneMsg{err: err.Error()}
		}
		return uploadDoneMsg{text: fmt.Sprintf("Uploaded %s: dataset #%d, %d rows. Ask away!",
			ds.FileName, ds.ID, ds.RowCount)}
	}
}
