package tui

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sheetsage/sheetsage/internal/viz"
)

// defaultPageSize is how many rows one table page shows.
const defaultPageSize = 20

// resultTable is one paginated result-set table on screen. Page keys act on
// the most recently rendered instance.
type resultTable struct {
	columns []string
	pager   *viz.Paginator
}

func newResultTable(columns []string, rows []map[string]any, pageSize int) *resultTable {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &resultTable{
		columns: columns,
		pager:   viz.NewPaginator(rows, pageSize),
	}
}

// Next flips to the next page, stopping at the last.
func (t *resultTable) Next() { t.pager.Next() }

// Previous flips back one page, stopping at the first.
func (t *resultTable) Previous() { t.pager.Previous() }

// Dispose implements viz.Disposable. Tables hold no external resources;
// dropping the reference is enough.
func (t *resultTable) Dispose() {}

// Render draws the current page with a pagination footer.
func (t *resultTable) Render(styles Styles) string {
	page := t.pager.View()

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, len(t.columns))
	for i, col := range t.columns {
		header[i] = viz.FormatLabel(col)
	}
	tw.AppendHeader(header)

	for _, row := range page.Rows {
		cells := make(table.Row, len(t.columns))
		for i, col := range t.columns {
			cells[i] = viz.FormatCell(row[col], col)
		}
		tw.AppendRow(cells)
	}

	var b strings.Builder
	b.WriteString(tw.Render())
	b.WriteString("\n")
	footer := fmt.Sprintf("Page %d/%d · %d rows", page.Page, page.TotalPages, page.TotalRows)
	if page.TotalPages > 1 {
		footer += "  ([ prev, ] next)"
	}
	b.WriteString(styles.TableNote.Render(footer))
	return b.String()
}
