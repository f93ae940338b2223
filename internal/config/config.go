// Package config reads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Backend    string        `env:"STORAGE_BACKEND" envDefault:"file"`
	StorageKey string        `env:"STORAGE_KEY" envDefault:"tasks"`
	MaxBytes   int           `env:"STORAGE_MAX_BYTES" envDefault:"5242880"`
	Timeout    time.Duration `env:"STORAGE_TIMEOUT" envDefault:"5s"`

	DataDir    string `env:"DATA_DIR"`
	SQLitePath string `env:"SQLITE_PATH"`

	PostgresUser     string `env:"POSTGRES_USER"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB"`
	PostgresHost     string `env:"POSTGRES_HOST"`
	PostgresPort     string `env:"POSTGRES_PORT"`

	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix string `env:"REDIS_PREFIX" envDefault:"todo:"`

	SaveDebounce   time.Duration `env:"SAVE_DEBOUNCE" envDefault:"0s"`
	ServerPort     string        `env:"SERVER_PORT" envDefault:"8080"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	} else {
		log.Println(".env file not found, relying on environment variables")
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(cfg.DataDir, "todo.db")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.StorageKey == "" {
		return errors.New("STORAGE_KEY must not be empty")
	}
	if c.MaxBytes <= 0 {
		return fmt.Errorf("STORAGE_MAX_BYTES must be positive, got %d", c.MaxBytes)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be positive, got %s", c.Timeout)
	}
	if c.SaveDebounce < 0 {
		return fmt.Errorf("SAVE_DEBOUNCE must not be negative, got %s", c.SaveDebounce)
	}

	switch c.Backend {
	case BackendMemory, BackendFile, BackendSQLite:
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR must be set for the redis backend")
		}
	case BackendPostgres:
		required := map[string]string{
			"POSTGRES_USER":     c.PostgresUser,
			"POSTGRES_PASSWORD": c.PostgresPassword,
			"POSTGRES_DB":       c.PostgresDB,
			"POSTGRES_HOST":     c.PostgresHost,
			"POSTGRES_PORT":     c.PostgresPort,
		}
		for _, name := range []string{"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_HOST", "POSTGRES_PORT"} {
			if required[name] == "" {
				return fmt.Errorf("environment variable %s must be set for the postgres backend", name)
			}
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Backend)
	}
	return nil
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort)
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "go-todo-tracker")
	}
	return ".todo"
}
