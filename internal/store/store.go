// Package store implements the relational data store for test plans, runs,
// cases and executions. It speaks database/sql against PostgreSQL (via the
// pgx stdlib driver) or SQLite, which is used for development and tests.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Config holds database connection configuration
type Config struct {
	// Driver is the database driver name: "postgres" or "sqlite3"
	Driver string

	// DSN is the data source name passed to the driver
	DSN string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns production-ready pool settings for the given DSN
func DefaultConfig(driver, dsn string) Config {
	return Config{
		Driver:          driver,
		DSN:             dsn,
		MaxOpenConns:    100,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Store wraps the database handle and exposes the query layers
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and configures the connection pool
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driverName := cfg.Driver
	if driverName == "postgres" {
		// database/sql name registered by the pgx stdlib adapter
		driverName = "pgx"
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, driver: cfg.Driver}, nil
}

// NewWithDB creates a Store around an existing database handle.
// Used by tests to inject sqlmock connections.
func NewWithDB(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the configured driver name
func (s *Store) Driver() string {
	return s.driver
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}
