//go:build integration
// +build integration

package dataset

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sheetsage/sheetsage/internal/query"
	"github.com/sheetsage/sheetsage/internal/testutil"
)

const salesCSV = `Region,Sales Amount,Order Date,Discount %
North,1200000,2024-01-15,10
South,"2,500,000",2024-02-20,15
East,750000,2024-03-05,5
West,3100000,2024-04-18,20
`

func TestIngestCSV(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	logger := testutil.DiscardLogger()
	store := NewStore(db.Pool, logger)
	ing := NewIngestor(db.Pool, store, logger)
	ctx := context.Background()

	var lastPct int
	meta, err := ing.Ingest(ctx, strings.NewReader(salesCSV), "sales.csv", func(pct int, status string) {
		if pct < lastPct {
			t.Errorf("progress went backwards: %d after %d (%s)", pct, lastPct, status)
		}
		lastPct = pct
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if lastPct != 100 {
		t.Errorf("final progress = %d, want 100", lastPct)
	}
	if meta.RowCount != 4 {
		t.Errorf("RowCount = %d, want 4", meta.RowCount)
	}
	if meta.FileType != "csv" {
		t.Errorf("FileType = %q, want csv", meta.FileType)
	}
	if !strings.HasPrefix(meta.TableName, "ds_") || len(meta.TableName) != 11 {
		t.Errorf("TableName = %q, want ds_ plus 8 chars", meta.TableName)
	}

	wantCols := []string{"region", "sales_amount", "order_date", "discount_"}
	if len(meta.Columns) != len(wantCols) {
		t.Fatalf("Columns = %v, want %v", meta.Columns, wantCols)
	}
	for i, c := range wantCols {
		if meta.Columns[i] != c {
			t.Errorf("Columns[%d] = %q, want %q", i, meta.Columns[i], c)
		}
	}

	// Numeric columns must come back typed; the quoted thousands value
	// must have survived the comma stripping.
	var total float64
	err = db.Pool.QueryRow(ctx, "SELECT SUM(sales_amount) FROM "+meta.TableName).Scan(&total)
	if err != nil {
		t.Fatalf("summing sales_amount: %v", err)
	}
	if total != 7550000 {
		t.Errorf("SUM(sales_amount) = %v, want 7550000", total)
	}

	var dates int
	err = db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+meta.TableName+" WHERE order_date >= DATE '2024-02-01'").Scan(&dates)
	if err != nil {
		t.Fatalf("filtering by order_date: %v", err)
	}
	if dates != 3 {
		t.Errorf("rows on or after 2024-02-01 = %d, want 3", dates)
	}
}

func TestIngestEmptyFile(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	logger := testutil.DiscardLogger()
	store := NewStore(db.Pool, logger)
	ing := NewIngestor(db.Pool, store, logger)

	_, err := ing.Ingest(context.Background(), strings.NewReader("only,a,header\n"), "empty.csv", nil)
	if !errors.Is(err, ErrEmptyFile) {
		t.Errorf("Ingest error = %v, want ErrEmptyFile", err)
	}
}

func TestStoreLifecycle(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	logger := testutil.DiscardLogger()
	store := NewStore(db.Pool, logger)
	ing := NewIngestor(db.Pool, store, logger)
	ctx := context.Background()

	meta, err := ing.Ingest(ctx, strings.NewReader(salesCSV), "sales.csv", nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	got, err := store.Get(ctx, meta.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TableName != meta.TableName {
		t.Errorf("Get TableName = %q, want %q", got.TableName, meta.TableName)
	}

	datasets, err := store.ListDatasets(ctx)
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if len(datasets) != 1 || datasets[0].ID != meta.ID {
		t.Fatalf("ListDatasets = %+v, want one entry with ID %d", datasets, meta.ID)
	}

	if err := store.Delete(ctx, meta.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, meta.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}

	// The data table must be gone too.
	var exists bool
	err = db.Pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)",
		meta.TableName,
	).Scan(&exists)
	if err != nil {
		t.Fatalf("checking table existence: %v", err)
	}
	if exists {
		t.Errorf("table %s still exists after delete", meta.TableName)
	}
}

func TestIngestedTableQueryable(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	logger := testutil.DiscardLogger()
	store := NewStore(db.Pool, logger)
	ing := NewIngestor(db.Pool, store, logger)
	ctx := context.Background()

	meta, err := ing.Ingest(ctx, strings.NewReader(salesCSV), "sales.csv", nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	info, err := query.GetTableInfo(ctx, db.Pool, meta.TableName)
	if err != nil {
		t.Fatalf("GetTableInfo: %v", err)
	}
	if len(info.Columns) != 4 {
		t.Fatalf("GetTableInfo columns = %d, want 4", len(info.Columns))
	}
	if info.Columns[0].Name != "region" {
		t.Errorf("first column = %q, want region", info.Columns[0].Name)
	}
	if len(info.SampleRows) != 4 {
		t.Errorf("sample rows = %d, want 4", len(info.SampleRows))
	}
	if vals, ok := info.DistinctValues["region"]; !ok || len(vals) != 4 {
		t.Errorf("distinct region values = %v, want 4 entries", vals)
	}

	cols, rows, err := query.RunSQL(ctx, db.Pool,
		"SELECT region, sales_amount FROM "+meta.TableName+" ORDER BY sales_amount DESC")
	if err != nil {
		t.Fatalf("RunSQL: %v", err)
	}
	if len(cols) != 2 || cols[0] != "region" {
		t.Errorf("columns = %v", cols)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[0]["region"] != "West" {
		t.Errorf("top region = %v, want West", rows[0]["region"])
	}
}

func TestStoreSync(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	logger := testutil.DiscardLogger()
	store := NewStore(db.Pool, logger)
	ing := NewIngestor(db.Pool, store, logger)
	ctx := context.Background()

	kept, err := ing.Ingest(ctx, strings.NewReader(salesCSV), "kept.csv", nil)
	if err != nil {
		t.Fatalf("Ingest kept: %v", err)
	}
	stale, err := ing.Ingest(ctx, strings.NewReader(salesCSV), "stale.csv", nil)
	if err != nil {
		t.Fatalf("Ingest stale: %v", err)
	}

	// Simulate a manual drop behind the catalog's back.
	if _, err := db.Pool.Exec(ctx, "DROP TABLE "+stale.TableName); err != nil {
		t.Fatalf("dropping table: %v", err)
	}

	removed, err := store.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(removed) != 1 || removed[0] != stale.ID {
		t.Errorf("removed = %v, want [%d]", removed, stale.ID)
	}

	if _, err := store.Get(ctx, stale.ID); err == nil {
		t.Error("stale dataset still in catalog after sync")
	}
	if _, err := store.Get(ctx, kept.ID); err != nil {
		t.Errorf("kept dataset lost by sync: %v", err)
	}
}
