package dataset

import (
	"strconv"
	"strings"
	"time"
)

// ColumnType is the PostgreSQL type a column will be created with.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeBigInt
	TypeNumeric
	TypeDate
	TypeTimestamp
)

// SQL returns the PostgreSQL type name.
func (t ColumnType) SQL() string {
	switch t {
	case TypeBigInt:
		return "BIGINT"
	case TypeNumeric:
		return "NUMERIC"
	case TypeDate:
		return "DATE"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// inferSampleSize caps how many values per column feed inference.
const inferSampleSize = 200

// dateLayouts are the accepted date formats, most common first.
var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02-Jan-2006",
	"02 Jan 2006",
	"Jan 02, 2006",
	"02-01-06",
	"02/01/06",
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"02-01-2006 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02T15:04:05",
}

// InferColumnTypes analyzes each column's values and picks a PostgreSQL
// type. A column must be at least 80% parseable as a candidate type to get
// it; anything ambiguous stays TEXT.
func InferColumnTypes(t *Table) []ColumnType {
	types := make([]ColumnType, len(t.Columns))
	for i := range t.Columns {
		types[i] = inferColumn(t.Rows, i)
	}
	return types
}

func inferColumn(rows [][]string, col int) ColumnType {
	var sample []string
	for _, row := range rows {
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		sample = append(sample, v)
		if len(sample) == inferSampleSize {
			break
		}
	}
	if len(sample) == 0 {
		return TypeText
	}

	if ok, hasTime := isDateSample(sample); ok {
		if hasTime {
			return TypeTimestamp
		}
		return TypeDate
	}

	if isNumericSample(sample) {
		if isIntegerSample(sample) {
			return TypeBigInt
		}
		return TypeNumeric
	}

	return TypeText
}

// isDateSample reports whether at least 80% of the sample parses with one
// shared layout, and whether that layout carries a time component.
func isDateSample(sample []string) (ok, hasTime bool) {
	threshold := (len(sample)*8 + 9) / 10

	for _, layout := range dateLayouts {
		if countParsable(sample, layout) >= threshold {
			return true, false
		}
	}
	for _, layout := range timestampLayouts {
		if countParsable(sample, layout) >= threshold {
			return true, true
		}
	}
	return false, false
}

func countParsable(sample []string, layout string) int {
	n := 0
	for _, v := range sample {
		if _, err := time.Parse(layout, v); err == nil {
			n++
		}
	}
	return n
}

// isNumericSample requires every value to parse as a number. Comma
// separators are stripped; any letter disqualifies the column, so mixed
// IDs like "A1023" stay text.
func isNumericSample(sample []string) bool {
	for _, v := range sample {
		v = strings.ReplaceAll(v, ",", "")
		if strings.ContainsFunc(v, isLetter) {
			return false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
	}
	return true
}

func isIntegerSample(sample []string) bool {
	for _, v := range sample {
		v = strings.ReplaceAll(v, ",", "")
		if strings.Contains(v, ".") {
			return false
		}
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return false
		}
	}
	return true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// parseValue converts a raw cell to the typed value CopyFrom needs.
// Unparseable cells load as NULL rather than failing the whole upload.
func parseValue(raw string, t ColumnType) any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	switch t {
	case TypeBigInt:
		if n, err := strconv.ParseInt(strings.ReplaceAll(raw, ",", ""), 10, 64); err == nil {
			return n
		}
		return nil
	case TypeNumeric:
		if f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64); err == nil {
			return f
		}
		return nil
	case TypeDate:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts
			}
		}
		return nil
	case TypeTimestamp:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts
			}
		}
		return nil
	default:
		return raw
	}
}
