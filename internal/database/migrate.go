package database

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// MigrationState reports the schema version after Migrate.
type MigrationState struct {
	Version uint
	Applied bool
	Empty   bool
}

func (s MigrationState) String() string {
	switch {
	case s.Empty:
		return "no migrations found"
	case s.Applied:
		return fmt.Sprintf("applied successfully (version %d)", s.Version)
	default:
		return fmt.Sprintf("database is up to date (version %d)", s.Version)
	}
}

// Migrate applies every pending up migration in dir. A dirty schema is an error.
func Migrate(databaseURL, dir string) (MigrationState, error) {
	return withMigrator(databaseURL, dir, func(m *migrate.Migrate) (MigrationState, error) {
		err := m.Up()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return MigrationState{}, fmt.Errorf("failed to apply migrations: %w", err)
		}
		return state(m, err == nil)
	})
}

// MigrateDown reverts every applied migration. Only tests use it.
func MigrateDown(databaseURL, dir string) error {
	_, err := withMigrator(databaseURL, dir, func(m *migrate.Migrate) (MigrationState, error) {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return MigrationState{}, fmt.Errorf("failed to revert migrations: %w", err)
		}
		return MigrationState{}, nil
	})
	return err
}

func withMigrator(databaseURL, dir string, fn func(*migrate.Migrate) (MigrationState, error)) (MigrationState, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return MigrationState{}, fmt.Errorf("failed to resolve migrations dir: %w", err)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return MigrationState{}, fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return MigrationState{}, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(abs), "postgres", driver)
	if err != nil {
		return MigrationState{}, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return fn(m)
}

func state(m *migrate.Migrate, applied bool) (MigrationState, error) {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return MigrationState{Empty: true}, nil
	case err != nil:
		return MigrationState{}, fmt.Errorf("failed to get migration version: %w", err)
	case dirty:
		return MigrationState{}, fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	}
	return MigrationState{Version: version, Applied: applied}, nil
}
