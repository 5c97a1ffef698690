package tui

import (
	"strings"
	"testing"

	"github.com/sheetsage/sheetsage/internal/stream"
	"github.com/sheetsage/sheetsage/internal/viz"
)

func barMeta() *stream.Metadata {
	return &stream.Metadata{
		Columns: []string{"region", "total_sales"},
		Rows: []map[string]any{
			{"region": "North", "total_sales": float64(3100000)},
			{"region": "South", "total_sales": float64(1200000)},
			{"region": "East", "total_sales": float64(750000)},
		},
		VizType:  "bar",
		RowCount: 3,
	}
}

func TestRenderBarChart(t *testing.T) {
	meta := barMeta()
	plan := viz.SelectPlan(meta.VizType, meta.Columns, meta.Rows)
	out, table := renderVisualization(meta, plan, DefaultStyles(), defaultPageSize)
	if table != nil {
		t.Error("bar chart returned a table")
	}

	for _, want := range []string{"North", "South", "East", "₹31.00 L", "₹12.00 L", "█"} {
		if !strings.Contains(out, want) {
			t.Errorf("bar chart missing %q:\n%s", want, out)
		}
	}

	// The largest value owns the longest bar.
	lines := strings.Split(out, "\n")
	if len(lines) < 3 {
		t.Fatalf("bar chart has %d lines, want 3", len(lines))
	}
	if strings.Count(lines[0], "█") != maxBarWidth {
		t.Errorf("top bar width = %d, want %d", strings.Count(lines[0], "█"), maxBarWidth)
	}
	if strings.Count(lines[1], "█") >= strings.Count(lines[0], "█") {
		t.Error("second bar is not shorter than the first")
	}
}

func TestRenderPieChart(t *testing.T) {
	meta := &stream.Metadata{
		Columns: []string{"category", "share"},
		Rows: []map[string]any{
			{"category": "A", "share": float64(60)},
			{"category": "B", "share": float64(40)},
		},
		VizType: "pie",
	}
	plan := viz.SelectPlan(meta.VizType, meta.Columns, meta.Rows)
	out, _ := renderVisualization(meta, plan, DefaultStyles(), defaultPageSize)

	if !strings.Contains(out, "60.0%") || !strings.Contains(out, "40.0%") {
		t.Errorf("pie chart missing percentages:\n%s", out)
	}
}

func TestRenderLineChart(t *testing.T) {
	meta := &stream.Metadata{
		Columns: []string{"month", "revenue"},
		Rows: []map[string]any{
			{"month": "2024-01", "revenue": float64(100000)},
			{"month": "2024-02", "revenue": float64(300000)},
			{"month": "2024-03", "revenue": float64(200000)},
		},
		VizType: "line",
	}
	plan := viz.SelectPlan(meta.VizType, meta.Columns, meta.Rows)
	out, _ := renderVisualization(meta, plan, DefaultStyles(), defaultPageSize)

	if !strings.Contains(out, "Jan 2024 → Mar 2024") {
		t.Errorf("line chart missing endpoint labels:\n%s", out)
	}
	if !strings.Contains(out, "min ₹1.00 L") || !strings.Contains(out, "max ₹3.00 L") {
		t.Errorf("line chart missing range:\n%s", out)
	}
	// Three points, three sparkline cells, lowest and highest levels present.
	if !strings.Contains(out, string(sparkLevels[0])) || !strings.Contains(out, string(sparkLevels[len(sparkLevels)-1])) {
		t.Errorf("sparkline missing extremes:\n%s", out)
	}
}

func TestRenderSingleValue(t *testing.T) {
	meta := &stream.Metadata{
		Columns:  []string{"total_revenue"},
		Rows:     []map[string]any{{"total_revenue": float64(38850000)}},
		VizType:  "single_value",
		RowCount: 1,
	}
	plan := viz.SelectPlan(meta.VizType, meta.Columns, meta.Rows)
	out, _ := renderVisualization(meta, plan, DefaultStyles(), defaultPageSize)

	if !strings.Contains(out, "₹3.89 Cr") {
		t.Errorf("single value missing formatted amount:\n%s", out)
	}
}

func TestRenderVisualizationNone(t *testing.T) {
	meta := &stream.Metadata{Columns: []string{"answer"}, Rows: []map[string]any{{"answer": "yes"}}, VizType: "none"}
	plan := viz.SelectPlan(meta.VizType, meta.Columns, meta.Rows)
	out, table := renderVisualization(meta, plan, DefaultStyles(), defaultPageSize)
	if out != "" || table != nil {
		t.Errorf("none plan rendered something: %q", out)
	}
}

func TestPadRight(t *testing.T) {
	if got := padRight("ab", 4); got != "ab  " {
		t.Errorf("padRight = %q", got)
	}
	if got := padRight("北部", 4); got != "北部  " {
		t.Errorf("padRight multibyte = %q", got)
	}
	if got := padRight("abcdef", 4); got != "abcdef" {
		t.Errorf("padRight overlong = %q", got)
	}
}
