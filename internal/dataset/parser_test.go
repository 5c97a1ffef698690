package dataset

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestForFilename(t *testing.T) {
	tests := []struct {
		filename string
		wantName string
		wantErr  bool
	}{
		{"sales.csv", "CSV", false},
		{"Sales Report.XLSX", "Excel", false},
		{"old.xls", "Excel", false},
		{"notes.txt", "", true},
		{"noextension", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			p, err := ForFilename(tt.filename)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFile) {
					t.Errorf("err = %v, want ErrUnsupportedFile", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ForFilename: %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("parser = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestCSVParse(t *testing.T) {
	t.Run("basic file", func(t *testing.T) {
		in := "Region,Sales\nNorth,100\nSouth,200\n"
		table, err := csvParser{}.Parse(strings.NewReader(in))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if len(table.Columns) != 2 || table.Columns[0] != "Region" {
			t.Errorf("columns = %v", table.Columns)
		}
		if len(table.Rows) != 2 || table.Rows[1][1] != "200" {
			t.Errorf("rows = %v", table.Rows)
		}
	})

	t.Run("ragged rows are padded", func(t *testing.T) {
		in := "a,b,c\n1,2\n1,2,3,4\n"
		table, err := csvParser{}.Parse(strings.NewReader(in))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		for i, row := range table.Rows {
			if len(row) != 3 {
				t.Errorf("row %d has %d cells, want 3", i, len(row))
			}
		}
		if table.Rows[0][2] != "" {
			t.Errorf("short row not padded: %v", table.Rows[0])
		}
	})

	t.Run("header only is empty", func(t *testing.T) {
		_, err := csvParser{}.Parse(strings.NewReader("a,b\n"))
		if !errors.Is(err, ErrEmptyFile) {
			t.Errorf("err = %v, want ErrEmptyFile", err)
		}
	})
}

func TestExcelParse(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range [][]any{
		{"Region", "Sales"},
		{"North", 100},
		{"South", 200},
	} {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	table, err := excelParser{}.Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(table.Columns) != 2 || table.Columns[1] != "Sales" {
		t.Errorf("columns = %v", table.Columns)
	}
	if len(table.Rows) != 2 || table.Rows[0][0] != "North" {
		t.Errorf("rows = %v", table.Rows)
	}
}

func TestSanitizeColumns(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			"spaces and case",
			[]string{"Order ID", "Total Sales (INR)"},
			[]string{"order_id", "total_sales_inr"},
		},
		{
			"empty becomes positional",
			[]string{"", "x"},
			[]string{"col_1", "x"},
		},
		{
			"duplicates get suffixes",
			[]string{"amount", "Amount", "AMOUNT"},
			[]string{"amount", "amount_2", "amount_3"},
		},
		{
			"leading digit prefixed",
			[]string{"2024 sales"},
			[]string{"col_2024_sales"},
		},
		{
			"unicode stripped",
			[]string{"café₹price"},
			[]string{"cafprice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeColumns(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("column %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNewTableName(t *testing.T) {
	a, b := NewTableName(), NewTableName()
	if !strings.HasPrefix(a, "ds_") || len(a) != 11 {
		t.Errorf("name = %q, want ds_ plus 8 hex chars", a)
	}
	if a == b {
		t.Error("two table names collide")
	}
}
