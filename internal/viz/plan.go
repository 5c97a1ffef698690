// Package viz decides how a tabular result set should be displayed and
// formats its values for humans. Everything here is pure: plans and page
// views are derived from rows, never mutate them, and carry no UI state.
// The one exception is Registry, which owns live chart instances.
package viz

import "strings"

// Kind enumerates renderable visualizations.
type Kind int

const (
	// KindNone renders nothing; the textual answer stands alone.
	KindNone Kind = iota
	// KindSingleValue renders one highlighted aggregate value.
	KindSingleValue
	// KindTable renders a paginated table.
	KindTable
	// KindBar renders a horizontal bar chart.
	KindBar
	// KindLine renders a line chart.
	KindLine
	// KindPie renders proportions of a whole.
	KindPie
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSingleValue:
		return "single_value"
	case KindTable:
		return "table"
	case KindBar:
		return "bar"
	case KindLine:
		return "line"
	case KindPie:
		return "pie"
	default:
		return "unknown"
	}
}

// Display caps per chart kind. Bar labels are long (joined columns), so the
// cap is tight; pies are expected to be small categorical sets and get none.
const (
	maxBarRows  = 20
	maxLineRows = 50
)

// Plan is the resolved rendering decision for one result set.
type Plan struct {
	Kind        Kind
	LabelColumn string // source of chart labels; joined names for bar charts
	ValueColumn string
	Labels      []string  // date-bucketed and truncated, ready to display
	Values      []float64 // non-numeric cells parse to 0
	Percentages []float64 // pie only: each slice's share of the total
	Truncated   int       // rows dropped by the display cap
}

// SelectPlan maps a visualization hint and result shape to a plan.
// Chart hints need at least two rows to draw anything meaningful; with
// fewer they fall back to a table.
func SelectPlan(hint string, columns []string, rows []map[string]any) Plan {
	if hint == "none" || len(columns) == 0 || len(rows) == 0 {
		return Plan{Kind: KindNone}
	}

	switch hint {
	case "single_value":
		col := columns[0]
		if len(columns) >= 2 {
			col = columns[len(columns)-1]
		}
		return Plan{Kind: KindSingleValue, ValueColumn: col}

	case "bar", "line", "pie":
		if len(rows) < 2 {
			return Plan{Kind: KindTable}
		}
		return chartPlan(hint, columns, rows)

	default:
		// "table" and anything unrecognized.
		return Plan{Kind: KindTable}
	}
}

func chartPlan(hint string, columns []string, rows []map[string]any) Plan {
	switch hint {
	case "bar":
		// Label is every column except the last, joined; value is the last.
		labelCols := columns[:len(columns)-1]
		if len(labelCols) == 0 {
			labelCols = columns[:1]
		}
		plan := Plan{
			Kind:        KindBar,
			LabelColumn: strings.Join(labelCols, " / "),
			ValueColumn: columns[len(columns)-1],
		}
		shown := rows
		if len(shown) > maxBarRows {
			plan.Truncated = len(shown) - maxBarRows
			shown = shown[:maxBarRows]
		}
		for _, row := range shown {
			parts := make([]string, 0, len(labelCols))
			for _, col := range labelCols {
				parts = append(parts, stringify(row[col]))
			}
			plan.Labels = append(plan.Labels, FormatLabel(strings.Join(parts, " / ")))
			plan.Values = append(plan.Values, toFloatOrZero(row[plan.ValueColumn]))
		}
		return plan

	case "line":
		plan := Plan{
			Kind:        KindLine,
			LabelColumn: columns[0],
			ValueColumn: valueColumnAfterFirst(columns),
		}
		shown := rows
		if len(shown) > maxLineRows {
			plan.Truncated = len(shown) - maxLineRows
			shown = shown[:maxLineRows]
		}
		for _, row := range shown {
			plan.Labels = append(plan.Labels, FormatLabel(stringify(row[plan.LabelColumn])))
			plan.Values = append(plan.Values, toFloatOrZero(row[plan.ValueColumn]))
		}
		return plan

	default: // pie
		plan := Plan{
			Kind:        KindPie,
			LabelColumn: columns[0],
			ValueColumn: valueColumnAfterFirst(columns),
		}
		var total float64
		for _, row := range rows {
			v := toFloatOrZero(row[plan.ValueColumn])
			plan.Labels = append(plan.Labels, FormatLabel(stringify(row[plan.LabelColumn])))
			plan.Values = append(plan.Values, v)
			total += v
		}
		plan.Percentages = make([]float64, len(plan.Values))
		if total > 0 {
			for i, v := range plan.Values {
				plan.Percentages[i] = v / total * 100
			}
		}
		return plan
	}
}

func valueColumnAfterFirst(columns []string) string {
	if len(columns) > 1 {
		return columns[1]
	}
	return columns[0]
}
