package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Status is the schema version after a migration run.
type Status struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate applies all pending up migrations for driver against conn.
// conn stays open; closing it is the caller's job.
func Migrate(ctx context.Context, conn *sql.DB, driver string) (Status, error) {
	m, release, err := newMigrator(ctx, conn, driver)
	if err != nil {
		return Status{}, err
	}
	defer release()

	changed := true
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return Status{}, fmt.Errorf("migrate up: %w", err)
		}
		changed = false
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, fmt.Errorf("migrate version: %w", err)
	}
	return Status{Version: v, Dirty: dirty, Changed: changed}, nil
}

// Down rolls back every migration. Used by the CLI and tests.
func Down(ctx context.Context, conn *sql.DB, driver string) error {
	m, release, err := newMigrator(ctx, conn, driver)
	if err != nil {
		return err
	}
	defer release()
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// newMigrator builds a migrate instance over conn. release frees what the
// instance holds without closing conn itself; migrate.Migrate.Close would.
func newMigrator(ctx context.Context, conn *sql.DB, driver string) (*migrate.Migrate, func(), error) {
	if conn == nil {
		return nil, nil, errors.New("db is nil")
	}

	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return nil, nil, fmt.Errorf("migration source %s: %w", driver, err)
	}

	var target database.Driver
	release := func() { _ = src.Close() }
	switch driver {
	case DriverPostgres:
		// A dedicated connection keeps the advisory lock on one session.
		c, err := conn.Conn(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("migrate conn: %w", err)
		}
		pg, err := migratepg.WithConnection(ctx, c, &migratepg.Config{})
		if err != nil {
			_ = c.Close()
			return nil, nil, fmt.Errorf("migrate driver postgres: %w", err)
		}
		target = pg
		release = func() {
			_ = src.Close()
			_ = pg.Close()
		}
	case DriverSQLite:
		target, err = migratesqlite.WithInstance(conn, &migratesqlite.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("migrate driver sqlite: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("unsupported driver %q", driver)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("migrate init: %w", err)
	}
	return m, release, nil
}
