package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// SQLKeyValue keeps values in a kv_items table. The same statements run on
// sqlite3 and postgres.
type SQLKeyValue struct {
	db *sql.DB
}

func NewSQLKeyValue(db *sql.DB) *SQLKeyValue {
	return &SQLKeyValue{db: db}
}

// Migrate creates the kv_items table if it does not exist yet.
func (r *SQLKeyValue) Migrate(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS kv_items (
  item_key TEXT PRIMARY KEY,
  item_value TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create kv_items: %w", err)
	}
	return nil
}

func (r *SQLKeyValue) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT item_value FROM kv_items WHERE item_key = $1`
	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set replaces the value in a single statement.
func (r *SQLKeyValue) Set(ctx context.Context, key, value string) error {
	query := `INSERT INTO kv_items (item_key, item_value, updated_at)
	 VALUES ($1, $2, $3)
	 ON CONFLICT (item_key) DO UPDATE SET item_value = excluded.item_value, updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	if isSQLQuotaError(err) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

func (r *SQLKeyValue) Remove(ctx context.Context, key string) error {
	query := `DELETE FROM kv_items WHERE item_key = $1`
	_, err := r.db.ExecContext(ctx, query, key)
	return err
}

// isSQLQuotaError recognizes "disk full" from both drivers: SQLITE_FULL, and
// postgres SQLSTATE class 53 (insufficient resources).
func isSQLQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrFull
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "53"
	}
	return false
}
