package utils

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDSN returns a modernc.org/sqlite DSN with the per-connection PRAGMAs
// used everywhere in this service.
func SQLiteDSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		path,
	)
}

// SQLiteMemoryDSN returns a DSN for a named shared-cache in-memory database.
// Connections opened with the same name see the same data.
func SQLiteMemoryDSN(name string) string {
	return fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		name,
	)
}

// OpenSQLite opens a single-connection SQLite handle.
// SQLite allows one writer; all writes must go through a single connection.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	return OpenSQLiteDSN(ctx, SQLiteDSN(path))
}

// OpenSQLiteDSN is OpenSQLite for a prebuilt DSN.
func OpenSQLiteDSN(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := HealthCheck(ctx, db, 3*time.Second); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
