package dataset

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// nonIdentChars strips everything a sanitized column name may not contain.
var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]`)

// SanitizeColumns normalizes header names to lowercase snake_case and
// resolves the collisions that creates: empty names become col_N, duplicate
// names get a _2, _3 suffix.
func SanitizeColumns(columns []string) []string {
	out := make([]string, len(columns))
	seen := make(map[string]int, len(columns))

	for i, col := range columns {
		name := strings.ToLower(strings.TrimSpace(col))
		name = strings.ReplaceAll(name, " ", "_")
		name = nonIdentChars.ReplaceAllString(name, "")
		if name == "" {
			name = fmt.Sprintf("col_%d", i+1)
		}
		// Leading digits make the identifier need quoting everywhere.
		if name[0] >= '0' && name[0] <= '9' {
			name = "col_" + name
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		seen[name] = 1
		out[i] = name
	}
	return out
}

// NewTableName mints a fresh dataset table name, ds_ plus eight hex chars.
func NewTableName() string {
	return "ds_" + uuid.New().String()[:8]
}

// Progress receives upload progress updates, percent plus a status line.
type Progress func(percent int, status string)

// Ingestor loads parsed files into PostgreSQL and records their metadata.
type Ingestor struct {
	pool   *pgxpool.Pool
	store  *Store
	logger *slog.Logger
}

// NewIngestor creates an Ingestor writing through pool and store.
func NewIngestor(pool *pgxpool.Pool, store *Store, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{pool: pool, store: store, logger: logger}
}

// Ingest parses and loads one uploaded file. progress may be nil.
func (ing *Ingestor) Ingest(ctx context.Context, r io.Reader, filename string, progress Progress) (*Meta, error) {
	report := func(pct int, status string) {
		if progress != nil {
			progress(pct, status)
		}
	}

	report(1, "Starting upload...")

	parser, err := ForFilename(filename)
	if err != nil {
		return nil, err
	}

	report(30, fmt.Sprintf("Parsing %s file...", parser.Name()))

	table, err := parser.Parse(r)
	if err != nil {
		return nil, err
	}

	report(55, "Cleaning column names...")
	table.Columns = SanitizeColumns(table.Columns)

	report(60, fmt.Sprintf("Data cleaned (%d rows)", len(table.Rows)))

	types := InferColumnTypes(table)
	tableName := NewTableName()

	if err := ing.createTable(ctx, tableName, table.Columns, types); err != nil {
		return nil, err
	}

	report(75, "Saving to database...")

	inserted, err := ing.copyRows(ctx, tableName, table, types)
	if err != nil {
		// Leave no orphan table behind a failed load.
		if _, dropErr := ing.pool.Exec(ctx, "DROP TABLE IF EXISTS "+quoteIdent(tableName)); dropErr != nil {
			ing.logger.Error("dropping partial table failed", "table", tableName, "error", dropErr)
		}
		return nil, err
	}

	report(92, "Database save complete")
	report(95, "Saving metadata...")

	meta := &Meta{
		TableName: tableName,
		FileName:  filename,
		FileType:  strings.ToLower(parser.Name()),
		Columns:   table.Columns,
		RowCount:  inserted,
	}
	if err := ing.store.Save(ctx, meta); err != nil {
		return nil, err
	}

	ing.logger.Info("dataset ingested", "table", tableName, "rows", inserted, "file", filename)
	report(100, "Upload complete!")
	return meta, nil
}

func (ing *Ingestor) createTable(ctx context.Context, tableName string, columns []string, types []ColumnType) error {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = quoteIdent(col) + " " + types[i].SQL()
	}
	sql := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(tableName), strings.Join(defs, ", "))
	if _, err := ing.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("creating table %s: %w", tableName, err)
	}
	return nil
}

func (ing *Ingestor) copyRows(ctx context.Context, tableName string, table *Table, types []ColumnType) (int64, error) {
	rows := make([][]any, len(table.Rows))
	for i, raw := range table.Rows {
		typed := make([]any, len(raw))
		for j, cell := range raw {
			typed[j] = parseValue(cell, types[j])
		}
		rows[i] = typed
	}

	n, err := ing.pool.CopyFrom(ctx,
		pgx.Identifier{tableName},
		table.Columns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("loading rows into %s: %w", tableName, err)
	}
	return n, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
