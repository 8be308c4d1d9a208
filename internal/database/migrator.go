// Package database provides database connectivity and management for the publication discovery service.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// Migrator applies schema migrations from a directory of SQL files. It
// backs both the migrate CLI and the server's optional
// migrate-on-startup path.
type Migrator struct {
	migrate *migrate.Migrate
	// stdlib wrapper around the pgx pool; must be closed so its
	// connections return to the pool.
	sqlDB  *sql.DB
	logger zerolog.Logger
}

// NewMigrator builds a Migrator on top of an existing connection pool.
// The migrations directory must exist; a typo'd path fails here rather
// than on first use.
func NewMigrator(db *DB, migrationsPath string, logger zerolog.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if db.pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}
	if migrationsPath == "" {
		return nil, fmt.Errorf("migrations path is required")
	}
	if _, err := os.Stat(migrationsPath); err != nil {
		return nil, fmt.Errorf("migrations path validation failed: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(db.pool)

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return &Migrator{migrate: m, sqlDB: sqlDB, logger: logger}, nil
}

// Up applies every pending migration. An already-current schema is not
// an error.
func (m *Migrator) Up() error {
	m.logger.Info().Msg("applying pending migrations")

	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info().Msg("schema already current")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	m.logger.Info().Msg("migrations applied")
	return nil
}

// Down rolls back every applied migration.
func (m *Migrator) Down() error {
	m.logger.Warn().Msg("rolling back all migrations")

	if err := m.migrate.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info().Msg("nothing to roll back")
			return nil
		}
		return fmt.Errorf("rollback migrations: %w", err)
	}

	m.logger.Info().Msg("migrations rolled back")
	return nil
}

// Steps applies n migrations: positive walks forward, negative walks
// back. Running off either end of the migration list is not an error.
func (m *Migrator) Steps(n int) error {
	m.logger.Info().Int("steps", n).Msg("stepping migrations")

	if err := m.migrate.Steps(n); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info().Msg("schema already current")
			return nil
		}
		// The file source reports stepping past the newest migration
		// as a missing file.
		if errors.Is(err, os.ErrNotExist) {
			m.logger.Info().Msg("no further migrations")
			return nil
		}
		return fmt.Errorf("step migrations: %w", err)
	}

	m.logger.Info().Int("steps", n).Msg("migration steps applied")
	return nil
}

// Version reports the current schema version and whether a failed
// migration left it dirty.
func (m *Migrator) Version() (uint, bool, error) {
	return m.migrate.Version()
}

// Force records the given version without running any migration. It is
// the recovery path for a dirty schema.
func (m *Migrator) Force(version int) error {
	m.logger.Warn().Int("version", version).Msg("forcing migration version")
	return m.migrate.Force(version)
}

// Close releases the migration source and the pooled connections.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()

	if m.sqlDB != nil {
		if err := m.sqlDB.Close(); err != nil && dbErr == nil {
			dbErr = err
		}
	}

	switch {
	case sourceErr != nil && dbErr != nil:
		return fmt.Errorf("close migrator: source: %v, database: %w", sourceErr, dbErr)
	case sourceErr != nil:
		return fmt.Errorf("close migration source: %w", sourceErr)
	case dbErr != nil:
		return fmt.Errorf("close database handle: %w", dbErr)
	}
	return nil
}
