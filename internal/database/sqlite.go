package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteDB wraps the embedded single-file store.
type SQLiteDB struct {
	DB     *sql.DB
	logger *zap.Logger
}

// NewSQLiteDB opens (creating if necessary) the SQLite database at path.
func NewSQLiteDB(ctx context.Context, path string, logger *zap.Logger) (*SQLiteDB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Single writer; WAL keeps concurrent readers from blocking on it.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	logger.Info("opened SQLite database", zap.String("path", path))

	return &SQLiteDB{DB: db, logger: logger}, nil
}

// Close closes the database.
func (db *SQLiteDB) Close() error {
	if db.DB != nil {
		db.logger.Info("SQLite database closed")
		return db.DB.Close()
	}
	return nil
}

// Health checks if the database is reachable.
func (db *SQLiteDB) Health(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}
