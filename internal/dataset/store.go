package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheetsage/sheetsage/internal/query"
)

// ErrNotFound indicates the dataset does not exist.
var ErrNotFound = errors.New("dataset not found")

// Meta is the stored metadata of one ingested dataset.
type Meta struct {
	ID        int64
	TableName string
	FileName  string
	FileType  string
	Columns   []string
	RowCount  int64
	CreatedAt time.Time
}

// Store persists dataset metadata and implements the query catalog.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store over pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Save inserts the metadata row and fills in meta.ID and meta.CreatedAt.
func (s *Store) Save(ctx context.Context, meta *Meta) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO datasets (table_name, file_name, file_type, columns, row_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		meta.TableName, meta.FileName, meta.FileType, meta.Columns, meta.RowCount,
	).Scan(&meta.ID, &meta.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving dataset metadata: %w", err)
	}
	return nil
}

// List returns all datasets, newest first.
func (s *Store) List(ctx context.Context) ([]Meta, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, table_name, file_name, file_type, columns, row_count, created_at
		FROM datasets
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}
	defer rows.Close()

	var metas []Meta
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.ID, &m.TableName, &m.FileName, &m.FileType, &m.Columns, &m.RowCount, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning dataset: %w", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading datasets: %w", err)
	}
	return metas, nil
}

// Get returns one dataset by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Meta, error) {
	var m Meta
	err := s.pool.QueryRow(ctx, `
		SELECT id, table_name, file_name, file_type, columns, row_count, created_at
		FROM datasets WHERE id = $1`, id,
	).Scan(&m.ID, &m.TableName, &m.FileName, &m.FileType, &m.Columns, &m.RowCount, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading dataset %d: %w", id, err)
	}
	return &m, nil
}

// Delete removes the dataset's metadata and drops its table.
func (s *Store) Delete(ctx context.Context, id int64) error {
	meta, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+quoteIdent(meta.TableName)); err != nil {
		return fmt.Errorf("dropping table %s: %w", meta.TableName, err)
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM datasets WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting dataset %d: %w", id, err)
	}
	s.logger.Info("dataset deleted", "id", id, "table", meta.TableName)
	return nil
}

// Sync removes metadata rows whose backing table no longer exists, for
// example after a manual DROP TABLE. Returns the IDs of removed datasets.
func (s *Store) Sync(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM datasets d
		WHERE NOT EXISTS (
			SELECT 1 FROM information_schema.tables t
			WHERE t.table_schema = 'public' AND t.table_name = d.table_name
		)
		RETURNING d.id`)
	if err != nil {
		return nil, fmt.Errorf("syncing datasets: %w", err)
	}
	defer rows.Close()

	var removed []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning synced dataset: %w", err)
		}
		removed = append(removed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading synced datasets: %w", err)
	}
	if len(removed) > 0 {
		s.logger.Info("datasets synced", "removed", len(removed))
	}
	return removed, nil
}

// ListDatasets implements query.Catalog.
func (s *Store) ListDatasets(ctx context.Context) ([]query.Dataset, error) {
	metas, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]query.Dataset, len(metas))
	for i, m := range metas {
		out[i] = query.Dataset{ID: m.ID, TableName: m.TableName, Columns: m.Columns}
	}
	return out, nil
}
