// Package db persists the task collection as one value in a key-value
// backend and parses it back defensively.
package db

import (
	"context"
	"database/sql"
)

// Connect opens and pings a database. SQLite gets a single connection, since
// it allows one writer at a time and the store writes the whole list at once.
func Connect(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if driverName == "sqlite3" {
		db.SetMaxOpenConns(1)
		return db, nil
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}
