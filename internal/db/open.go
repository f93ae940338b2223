package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/chepyr/go-todo-tracker/internal/config"
	"github.com/redis/go-redis/v9"
)

// Backend is a KeyValue together with whatever must be released on shutdown.
type Backend struct {
	KeyValue
	close func() error
}

func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Config) (*Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return &Backend{KeyValue: NewMemoryKeyValue(0)}, nil

	case config.BackendFile:
		kv, err := NewFileKeyValue(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return &Backend{KeyValue: kv}, nil

	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		dsn := "file:" + cfg.SQLitePath + "?_busy_timeout=5000&_journal_mode=WAL"
		return openSQL(ctx, "sqlite3", dsn)

	case config.BackendPostgres:
		return openSQL(ctx, "postgres", cfg.PostgresDSN())

	case config.BackendRedis:
		kv := NewRedisKeyValue(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.RedisPrefix)
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		if err := kv.Ping(pingCtx); err != nil {
			kv.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return &Backend{KeyValue: kv, close: kv.Close}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func openSQL(ctx context.Context, driver, dsn string) (*Backend, error) {
	dbConn, err := Connect(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", driver, err)
	}
	kv := NewSQLKeyValue(dbConn)
	if err := kv.Migrate(ctx); err != nil {
		if cerr := dbConn.Close(); cerr != nil {
			log.Printf("Error closing database connection: %v", cerr)
		}
		return nil, err
	}
	return &Backend{KeyValue: kv, close: dbConn.Close}, nil
}

// NewTaskStoreFromConfig wires a TaskStore over kv with cfg's limits.
func NewTaskStoreFromConfig(kv KeyValue, cfg config.Config, logger *log.Logger) *TaskStore {
	return NewTaskStore(kv,
		WithKey(cfg.StorageKey),
		WithMaxBytes(cfg.MaxBytes),
		WithTimeout(cfg.Timeout),
		WithLogger(logger),
	)
}
