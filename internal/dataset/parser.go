// Package dataset ingests spreadsheet files into queryable PostgreSQL
// tables: parsing, header sanitizing, column type inference, and bulk load.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFile indicates a file extension no parser handles.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrEmptyFile indicates a file with no data rows.
	ErrEmptyFile = errors.New("file contains no data rows")
)

// Table is a parsed spreadsheet: a header row and string cells. Typing
// happens later, during inference.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Parser turns one file format into a Table.
type Parser interface {
	// Name is the short format name shown in progress messages ("CSV").
	Name() string
	Parse(r io.Reader) (*Table, error)
}

// ForFilename selects a parser by file extension.
func ForFilename(name string) (Parser, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return csvParser{}, nil
	case ".xlsx", ".xlsm", ".xls":
		return excelParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: .csv, .xlsx, .xlsm, .xls)", ErrUnsupportedFile, filepath.Ext(name))
	}
}

type csvParser struct{}

func (csvParser) Name() string { return "CSV" }

func (csvParser) Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	return tableFromRecords(records)
}

type excelParser struct{}

func (excelParser) Name() string { return "Excel" }

func (excelParser) Parse(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	// Only the first sheet is ingested.
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return tableFromRecords(rows)
}

// tableFromRecords splits header from data and pads ragged rows to the
// header width.
func tableFromRecords(records [][]string) (*Table, error) {
	if len(records) < 2 {
		return nil, ErrEmptyFile
	}

	columns := records[0]
	width := len(columns)
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < width {
			padded := make([]string, width)
			copy(padded, rec)
			rec = padded
		} else if len(rec) > width {
			rec = rec[:width]
		}
		rows = append(rows, rec)
	}

	return &Table{Columns: columns, Rows: rows}, nil
}
