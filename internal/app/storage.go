package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"event-access/internal/access"
	"event-access/internal/access/postgres"
	"event-access/internal/access/sqlite"
	"event-access/internal/audit"
	"event-access/internal/config"
	"event-access/internal/db"
	"event-access/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Storage is the opened database for the configured driver with the access
// store and audit repository bound to it.
type Storage struct {
	DB     *sql.DB
	Driver string
	Access access.Store
	Audit  audit.Repository

	worker *db.Worker
}

// OpenStorage connects to the configured database. Migrations run first
// when migrate is true.
func OpenStorage(ctx context.Context, cfg config.Config, migrate bool, log *slog.Logger) (*Storage, error) {
	s := &Storage{Driver: cfg.DB.Driver}

	var err error
	switch cfg.DB.Driver {
	case config.DriverPostgres:
		dsn := utils.PostgresDSN(cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode)
		s.DB, err = utils.OpenPostgres(ctx, "pgx", dsn, utils.PostgresPoolConfig{})
	case config.DriverSQLite:
		s.DB, err = utils.OpenSQLite(ctx, cfg.DB.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s init: %w", cfg.DB.Driver, err)
	}

	if migrate {
		st, err := db.Migrate(ctx, s.DB, cfg.DB.Driver)
		if err != nil {
			_ = s.DB.Close()
			return nil, err
		}
		log.Info("schema migrated", "driver", cfg.DB.Driver, "version", st.Version, "changed", st.Changed)
	}

	switch cfg.DB.Driver {
	case config.DriverPostgres:
		s.Access = postgres.New(s.DB)
		s.Audit = audit.NewPostgresRepo(s.DB)
	case config.DriverSQLite:
		s.worker = db.NewWorker(s.DB)
		s.Access = sqlite.New(s.DB, s.worker)
		s.Audit = audit.NewSQLiteRepo(s.worker)
	}
	return s, nil
}

// Close stops the SQLite writer, if any, and closes the pool.
func (s *Storage) Close() error {
	if s.worker != nil {
		s.worker.Close()
	}
	return s.DB.Close()
}
