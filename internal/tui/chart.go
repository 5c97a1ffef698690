package tui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sheetsage/sheetsage/internal/stream"
	"github.com/sheetsage/sheetsage/internal/viz"
)

// maxBarWidth is the widest a bar gets, in cells.
const maxBarWidth = 40

// sparkLevels are the blocks a line chart scales values onto.
var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// renderVisualization draws the plan for one result set. The returned table
// is non-nil only for table plans; the caller wires it to the page keys.
func renderVisualization(meta *stream.Metadata, plan viz.Plan, styles Styles, pageSize int) (string, *resultTable) {
	switch plan.Kind {
	case viz.KindNone:
		return "", nil
	case viz.KindSingleValue:
		return renderSingleValue(meta, plan, styles), nil
	case viz.KindTable:
		t := newResultTable(meta.Columns, meta.Rows, pageSize)
		return t.Render(styles), t
	case viz.KindBar:
		return renderBarChart(plan, styles), nil
	case viz.KindLine:
		return renderLineChart(plan, styles), nil
	case viz.KindPie:
		return renderPieChart(plan, styles), nil
	default:
		return "", nil
	}
}

func renderSingleValue(meta *stream.Metadata, plan viz.Plan, styles Styles) string {
	if len(meta.Rows) == 0 {
		return ""
	}
	value := viz.FormatCell(meta.Rows[0][plan.ValueColumn], plan.ValueColumn)
	label := viz.FormatLabel(plan.ValueColumn)
	return styles.ChartLabel.Render(label) + "\n" + styles.BigValue.Render(value)
}

func renderBarChart(plan viz.Plan, styles Styles) string {
	labelWidth := 0
	for _, l := range plan.Labels {
		if n := utf8.RuneCountInString(l); n > labelWidth {
			labelWidth = n
		}
	}

	maxVal := 0.0
	for _, v := range plan.Values {
		if v > maxVal {
			maxVal = v
		}
	}

	var b strings.Builder
	for i, label := range plan.Labels {
		v := plan.Values[i]
		width := 0
		if maxVal > 0 && v > 0 {
			width = int(v / maxVal * maxBarWidth)
			if width == 0 {
				width = 1
			}
		}
		b.WriteString(styles.ChartLabel.Render(padRight(label, labelWidth)))
		b.WriteString(" ")
		b.WriteString(styles.ChartBar.Render(strings.Repeat("█", width)))
		b.WriteString(" ")
		b.WriteString(styles.ChartValue.Render(viz.FormatCell(v, plan.ValueColumn)))
		b.WriteString("\n")
	}
	writeTruncatedNote(&b, plan.Truncated, styles)
	return strings.TrimRight(b.String(), "\n")
}

// renderLineChart draws the series as a sparkline with its range and
// endpoints spelled out underneath.
func renderLineChart(plan viz.Plan, styles Styles) string {
	if len(plan.Values) == 0 {
		return ""
	}

	minVal, maxVal := plan.Values[0], plan.Values[0]
	for _, v := range plan.Values[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	spark := make([]rune, len(plan.Values))
	span := maxVal - minVal
	for i, v := range plan.Values {
		level := 0
		if span > 0 {
			level = int((v - minVal) / span * float64(len(sparkLevels)-1))
		}
		spark[i] = sparkLevels[level]
	}

	var b strings.Builder
	b.WriteString(styles.ChartBar.Render(string(spark)))
	b.WriteString("\n")
	b.WriteString(styles.ChartValue.Render(fmt.Sprintf("min %s · max %s",
		viz.FormatCell(minVal, plan.ValueColumn),
		viz.FormatCell(maxVal, plan.ValueColumn))))
	b.WriteString("\n")
	b.WriteString(styles.ChartLabel.Render(fmt.Sprintf("%s → %s",
		plan.Labels[0], plan.Labels[len(plan.Labels)-1])))
	b.WriteString("\n")
	writeTruncatedNote(&b, plan.Truncated, styles)
	return strings.TrimRight(b.String(), "\n")
}

func renderPieChart(plan viz.Plan, styles Styles) string {
	labelWidth := 0
	for _, l := range plan.Labels {
		if n := utf8.RuneCountInString(l); n > labelWidth {
			labelWidth = n
		}
	}

	const sliceWidth = 20
	var b strings.Builder
	for i, label := range plan.Labels {
		pct := plan.Percentages[i]
		filled := int(pct / 100 * sliceWidth)
		if filled > sliceWidth {
			filled = sliceWidth
		}
		b.WriteString(styles.ChartLabel.Render(padRight(label, labelWidth)))
		b.WriteString(" ")
		b.WriteString(styles.ChartBar.Render(strings.Repeat("█", filled)))
		b.WriteString(strings.Repeat("░", sliceWidth-filled))
		b.WriteString(" ")
		b.WriteString(styles.ChartValue.Render(fmt.Sprintf("%.1f%% (%s)",
			pct, viz.FormatCell(plan.Values[i], plan.ValueColumn))))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeTruncatedNote(b *strings.Builder, truncated int, styles Styles) {
	if truncated > 0 {
		b.WriteString(styles.TableNote.Render(fmt.Sprintf("(%d more rows not shown)", truncated)))
		b.WriteString("\n")
	}
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
