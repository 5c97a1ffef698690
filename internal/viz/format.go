package viz

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Placeholder is rendered for null cells.
const Placeholder = "—"

// maxLabelRunes bounds chart label width before ellipsis truncation.
const maxLabelRunes = 20

// printer groups plain numbers ("12,345"). Currency uses Indian grouping
// and the Cr/L magnitude abbreviations instead; see formatCurrency.
var printer = message.NewPrinter(language.English)

// Column-name keyword sets, checked by containment against the lower-cased
// name. Order matters: rank/id wins over currency, currency over percentage.
// The data source declares no per-column types, so names are all we have.
var (
	currencyKeywords   = []string{"value", "amount", "sales", "revenue", "profit", "cost", "price", "total"}
	percentageKeywords = []string{"percent", "pct", "rate", "ratio"}
	countKeywords      = []string{"count", "qty", "quantity", "units"}
	rankKeywords       = []string{"rank", "position", "index"}
)

var (
	fullDateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	yearMonthRe = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

// FormatCell turns a raw scalar into a display string using column-name
// heuristics. Non-numeric scalars pass through untouched; escaping for a
// given presentation surface is the renderer's concern, not this layer's.
func FormatCell(value any, column string) string {
	if value == nil {
		return Placeholder
	}
	num, ok := toFloat(value)
	if !ok {
		return stringify(value)
	}

	col := strings.ToLower(column)
	switch {
	case isRankColumn(col):
		return strconv.FormatInt(int64(math.Round(num)), 10)
	case containsAny(col, currencyKeywords):
		return formatCurrency(num)
	case containsAny(col, percentageKeywords):
		return fmt.Sprintf("%.2f%%", num)
	case containsAny(col, countKeywords):
		return printer.Sprintf("%d", int64(math.Round(num)))
	default:
		if num == math.Trunc(num) {
			return printer.Sprintf("%d", int64(num))
		}
		return printer.Sprintf("%.2f", num)
	}
}

// formatCurrency renders amounts the way the product's users read money:
// crores above 1e7, lakhs above 1e5, Indian digit grouping below that.
func formatCurrency(num float64) string {
	abs := math.Abs(num)
	switch {
	case abs >= 1e7:
		return fmt.Sprintf("₹%.2f Cr", num/1e7)
	case abs >= 1e5:
		return fmt.Sprintf("₹%.2f L", num/1e5)
	default:
		return "₹" + groupIndian(num)
	}
}

// groupIndian applies Indian digit grouping: the last three digits, then
// pairs ("1234567" → "12,34,567").
func groupIndian(num float64) string {
	neg := num < 0
	abs := math.Round(math.Abs(num)*100) / 100

	intPart := int64(abs)
	frac := abs - float64(intPart)

	digits := strconv.FormatInt(intPart, 10)
	var groups []string
	if len(digits) > 3 {
		head := digits[:len(digits)-3]
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		groups = append(groups, digits[len(digits)-3:])
	} else {
		groups = []string{digits}
	}

	out := strings.Join(groups, ",")
	if frac >= 0.005 {
		out += strings.TrimPrefix(fmt.Sprintf("%.2f", frac), "0")
	}
	if neg {
		out = "-" + out
	}
	return out
}

// FormatLabel prepares one chart label: date buckets become compact month
// forms, bare month numbers become month names, and anything overlong is
// cut with an ellipsis.
//
// A day of "01" is read as month-level aggregation (SQL date_trunc yields
// the first of the month), so the label shows "Mon YYYY" instead of a day.
func FormatLabel(s string) string {
	switch {
	case fullDateRe.MatchString(s):
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			break
		}
		if t.Day() == 1 {
			return t.Format("Jan 2006")
		}
		return t.Format("2 Jan")

	case yearMonthRe.MatchString(s):
		t, err := time.Parse("2006-01", s)
		if err != nil {
			break
		}
		return t.Format("Jan 2006")

	default:
		if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 12 {
			return time.Month(n).String()
		}
	}

	runes := []rune(s)
	if len(runes) > maxLabelRunes {
		return string(runes[:maxLabelRunes-1]) + "…"
	}
	return s
}

func isRankColumn(col string) bool {
	if containsAny(col, rankKeywords) {
		return true
	}
	return col == "id" || strings.HasSuffix(col, "_id") || strings.HasPrefix(col, "id_")
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// toFloat converts the scalar types a JSON result row can hold.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toFloatOrZero(value any) float64 {
	f, ok := toFloat(value)
	if !ok {
		return 0
	}
	return f
}

func stringify(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
