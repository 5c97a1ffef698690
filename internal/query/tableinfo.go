package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Column is one column of a dataset table, in ordinal position.
type Column struct {
	Name string
	Type string
}

// TableInfo is the schema context handed to the SQL prompt: column types in
// order, a few sample rows, and the distinct values of low-cardinality
// category columns.
type TableInfo struct {
	Columns        []Column
	SampleRows     []map[string]any
	DistinctValues map[string][]string
}

// categoryColumnKeywords mark text columns worth enumerating in the prompt.
var categoryColumnKeywords = []string{"month", "date", "year", "category", "type", "status", "region", "city"}

// GetTableInfo inspects a dataset table: types from information_schema, five
// sample rows, and up to twenty distinct values per category-like text
// column.
func GetTableInfo(ctx context.Context, pool *pgxpool.Pool, tableName string) (*TableInfo, error) {
	info := &TableInfo{DistinctValues: make(map[string][]string)}

	rows, err := pool.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`, tableName)
	if err != nil {
		return nil, fmt.Errorf("querying column types: %w", err)
	}
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning column type: %w", err)
		}
		info.Columns = append(info.Columns, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading column types: %w", err)
	}
	if len(info.Columns) == 0 {
		return nil, fmt.Errorf("table %q has no columns", tableName)
	}

	// Table names come from our own ingestion, but quote them anyway.
	_, samples, err := RunSQL(ctx, pool, fmt.Sprintf(`SELECT * FROM %s LIMIT 5`, quoteIdent(tableName)))
	if err != nil {
		return nil, fmt.Errorf("sampling table: %w", err)
	}
	info.SampleRows = samples

	for _, col := range info.Columns {
		if !isTextType(col.Type) || !isCategoryColumn(col.Name) {
			continue
		}
		values, err := distinctValues(ctx, pool, tableName, col.Name)
		if err != nil {
			return nil, err
		}
		if len(values) > 0 {
			info.DistinctValues[col.Name] = values
		}
	}

	return info, nil
}

func isTextType(dataType string) bool {
	switch dataType {
	case "text", "character varying", "varchar":
		return true
	}
	return false
}

func isCategoryColumn(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range categoryColumnKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func distinctValues(ctx context.Context, pool *pgxpool.Pool, tableName, column string) ([]string, error) {
	sql := fmt.Sprintf(`SELECT DISTINCT %s FROM %s ORDER BY %s LIMIT 20`,
		quoteIdent(column), quoteIdent(tableName), quoteIdent(column))
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("querying distinct values for %q: %w", column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v *string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning distinct value: %w", err)
		}
		if v != nil {
			values = append(values, *v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading distinct values: %w", err)
	}
	return values, nil
}

// quoteIdent double-quotes a PostgreSQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
