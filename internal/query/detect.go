package query

import (
	"regexp"
	"strings"

	"github.com/sheetsage/sheetsage/internal/stream"
)

// Keyword patterns for visualization detection. Compiled once at init.

var lineChartPatterns = compileAll(
	`\btrend\b`, `\bover\s+time\b`, `\bby\s+month\b`, `\bby\s+year\b`,
	`\bby\s+week\b`, `\bby\s+day\b`, `\bby\s+quarter\b`, `\bby\s+date\b`,
	`\bmonthly\b`, `\byearly\b`, `\bweekly\b`, `\bdaily\b`, `\bquarterly\b`,
	`\bhourly\b`, `\bper\s+month\b`, `\bper\s+year\b`, `\bper\s+day\b`,
	`\btime\s+series\b`, `\bgrowth\b`, `\bdecline\b`, `\bincrease\b`,
	`\bdecrease\b`, `\brise\b`, `\bfall\b`, `\bchange\b`,
	`\bhistor(y|ical)\b`, `\bprogress\b`, `\bevolution\b`,
	`\bforecast\b`, `\bprojection\b`, `\btrajectory\b`, `\bmomentum\b`,
	`\bhow\s+has\b`, `\bhow\s+did\b`, `\bover\s+the\s+(last|past)\b`,
	`\bacross\s+months\b`, `\bacross\s+years\b`, `\bthrough\s+time\b`,
	`\bseasonal\b`, `\bcumulative\b`, `\brolling\b`, `\bmoving\s+average\b`,
)

var barChartPatterns = compileAll(
	`\btop\s+\d+\b`, `\bbottom\s+\d+\b`, `\bbest\s+\d+\b`, `\bworst\s+\d+\b`,
	`\branking\b`, `\brank\b`, `\bleaders\b`, `\blaggards\b`,
	`\bhighest\b`, `\blowest\b`, `\bmost\b`, `\bleast\b`,
	`\bcompare\b`, `\bcomparison\b`, `\bvs\b`, `\bversus\b`,
	`\bdifference\b`, `\bgap\b`,
	`\bby\s+region\b`, `\bby\s+category\b`, `\bby\s+product\b`,
	`\bby\s+customer\b`, `\bby\s+name\b`, `\bby\s+type\b`,
	`\bby\s+department\b`, `\bby\s+manager\b`, `\bby\s+team\b`,
	`\bby\s+city\b`, `\bby\s+country\b`, `\bby\s+state\b`,
	`\bwhich\s+(regions?|products?|customers?)\b`, `\bwho\s+are\b`,
	`\blist\s+all\b`, `\bshow\s+all\b`,
)

var pieChartPatterns = compileAll(
	`\bdistribution\b`, `\bbreakdown\b`, `\bpercentage\b`, `\bshare\b`,
	`\bproportion\b`, `\bcomposition\b`, `\bsplit\b`,
	`\bpie\s+chart\b`, `\bdoughnut\b`,
	`\b%\s+of\b`, `\bpercent\b`, `\bfraction\b`,
	`\bmakeup\b`, `\bcontribution\b`, `\bratio\b`,
)

var dateColumnPatterns = compileAll(
	`date`, `time`, `month`, `year`, `week`, `day`, `period`,
	`quarter`, `created`, `updated`, `timestamp`,
)

var percentageColumnPatterns = compileAll(
	`percent`, `percentage`, `rate`, `ratio`, `share`,
	`proportion`, `pct`, `growth`, `change`,
)

// Values that read as time buckets: month names, 2024-01, Q1, FY 2025, 2024.
var sequentialPatterns = compileAll(
	`^(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)`,
	`^\d{4}[-/]\d{2}`,
	`^q[1-4]`,
	`^(fy\s*\d+|fiscal)`,
	`^\d{4}$`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	text = strings.ToLower(text)
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func hasDateColumn(columns []string) bool {
	for _, col := range columns {
		if matchesAny(col, dateColumnPatterns) {
			return true
		}
	}
	return false
}

// isNumericColumn samples the first ten rows; any non-numeric non-null value
// disqualifies the column.
func isNumericColumn(rows []map[string]any, column string) bool {
	if len(rows) == 0 {
		return false
	}
	for _, row := range rows[:min(10, len(rows))] {
		v := row[column]
		if v == nil {
			continue
		}
		switch v.(type) {
		case int, int32, int64, float32, float64:
		default:
			return false
		}
	}
	return true
}

func categoryCount(rows []map[string]any, column string) int {
	unique := make(map[string]struct{})
	for _, row := range rows {
		if v := row[column]; v != nil {
			unique[stringValue(v)] = struct{}{}
		}
	}
	return len(unique)
}

func isPercentageColumn(column string, rows []map[string]any) bool {
	if matchesAny(column, percentageColumnPatterns) {
		return true
	}
	// Numeric values confined to 0..100 read as percentages.
	var seen bool
	for _, row := range rows[:min(10, len(rows))] {
		v, ok := toNumber(row[column])
		if !ok {
			if row[column] != nil {
				return false
			}
			continue
		}
		if v < 0 || v > 100 {
			return false
		}
		seen = true
	}
	return seen
}

func isSequentialData(rows []map[string]any, column string) bool {
	if len(rows) < 3 {
		return false
	}
	sample := rows[:min(10, len(rows))]
	for _, p := range sequentialPatterns {
		matches := 0
		for _, row := range sample {
			if p.MatchString(strings.ToLower(stringValue(row[column]))) {
				matches++
			}
		}
		if matches*2 >= len(sample) {
			return true
		}
	}
	return false
}

func valuesSumTo100(rows []map[string]any, column string) bool {
	var total float64
	for _, row := range rows {
		if v, ok := toNumber(row[column]); ok {
			total += v
		}
	}
	return total >= 95 && total <= 105
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// rerenderHints maps explicit chart phrases to the hint they ask for.
var rerenderHints = []struct {
	hint    string
	phrases []string
}{
	{stream.VizPie, []string{"pie chart", "pie graph", "as pie", "in pie"}},
	{stream.VizLine, []string{"line chart", "line graph", "as line", "in line"}},
	{stream.VizBar, []string{"bar chart", "bar graph", "as bar", "in bar"}},
	{stream.VizTable, []string{"as a table", "as table", "in a table", "table format", "tabular"}},
}

// Words that point back at an earlier result rather than asking something new.
var deicticPatterns = compileAll(
	`\bthat\b`, `\bthis\b`, `\bit\b`, `\bsame\b`, `\binstead\b`,
	`\bprevious\b`, `\babove\b`, `\bagain\b`, `\bthose\b`, `\bthese\b`,
)

// VizChangeRequest reports whether the question asks to re-render an earlier
// result as a different chart, and which hint it asks for. It requires both
// an explicit chart phrase and a reference back to the prior result; "show
// me a pie chart of sales by region" is a fresh question, "show that as a
// pie chart" is not.
func VizChangeRequest(question string) (string, bool) {
	q := strings.ToLower(question)
	if !matchesAny(q, deicticPatterns) {
		return "", false
	}
	for _, r := range rerenderHints {
		if containsAny(q, r.phrases...) {
			return r.hint, true
		}
	}
	return "", false
}

// describeViz names a hint for the canned re-render answer.
func describeViz(hint string) string {
	switch hint {
	case stream.VizPie:
		return "pie chart"
	case stream.VizLine:
		return "line chart"
	case stream.VizBar:
		return "bar chart"
	default:
		return "table"
	}
}

// DetectVizType picks the visualization hint for a result set, from the
// question's phrasing first and the data's shape second.
//
// Returns one of the stream.Viz* hint strings.
func DetectVizType(question string, columns []string, rows []map[string]any) string {
	if len(rows) == 0 {
		return stream.VizTable
	}

	q := strings.ToLower(question)
	rowCount := len(rows)
	colCount := len(columns)

	// Explicit chart type requests win.
	if containsAny(q, "pie chart", "pie graph", "in pie", "as pie") && rowCount >= 2 {
		return stream.VizPie
	}
	if containsAny(q, "distribution", "breakdown", "split by", "share by") &&
		rowCount >= 2 && rowCount <= 15 {
		return stream.VizPie
	}
	if containsAny(q, "line chart", "line graph", "in line", "as line") && rowCount >= 2 {
		return stream.VizLine
	}
	if containsAny(q, "bar chart", "bar graph", "in bar", "as bar") && rowCount >= 2 {
		return stream.VizBar
	}
	if containsAny(q, "tabular", "table format", "in table", "as table", "show table",
		"list all", "show all", "all details", "full list", "complete list",
		"raw data", "detailed view", "spreadsheet", "export") {
		return stream.VizTable
	}
	// A generic chart request defaults to bar.
	if containsAny(q, " graph", " chart", "visuali") && rowCount >= 2 {
		return stream.VizBar
	}

	// One row with one or two columns is a single aggregate; the text answer
	// carries it, no visualization.
	if rowCount == 1 && colCount <= 2 {
		return stream.VizNone
	}

	if matchesAny(question, lineChartPatterns) &&
		(hasDateColumn(columns) || rowCount >= 3) {
		return stream.VizLine
	}
	if matchesAny(question, pieChartPatterns) &&
		rowCount >= 2 && rowCount <= 7 && colCount >= 2 {
		return stream.VizPie
	}
	if matchesAny(question, barChartPatterns) && rowCount >= 2 && colCount >= 2 {
		return stream.VizBar
	}

	// Fall back to the data's structure.
	if colCount >= 2 {
		first, second := columns[0], columns[1]

		if isSequentialData(rows, first) && isNumericColumn(rows, second) && rowCount >= 3 {
			return stream.VizLine
		}
		if hasDateColumn([]string{first}) && isNumericColumn(rows, second) && rowCount >= 3 {
			return stream.VizLine
		}
		if isPercentageColumn(second, rows) &&
			rowCount >= 2 && rowCount <= 7 && valuesSumTo100(rows, second) {
			return stream.VizPie
		}
		if isNumericColumn(rows, second) {
			if n := categoryCount(rows, first); n >= 2 && n <= 15 {
				return stream.VizBar
			}
		}
	}

	return stream.VizTable
}
