package sqlstore

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// migrateDB runs the embedded migrations for the given driver.
// The migrate instance is not closed: closing it would close db.
func migrateDB(db *sqlx.DB, driverName string, logger *zap.Logger) error {
	var (
		driver database.Driver
		err    error
	)

	switch driverName {
	case DriverSQLite:
		driver, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	case DriverPostgres:
		driver, err = postgres.WithInstance(db.DB, &postgres.Config{})
	default:
		return fmt.Errorf("unsupported driver %q", driverName)
	}
	if err != nil {
		return fmt.Errorf("couldn't get database instance for migrations: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+driverName)
	if err != nil {
		return fmt.Errorf("couldn't open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driverName, driver)
	if err != nil {
		return fmt.Errorf("couldn't create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("couldn't run database migration: %w", err)
	}

	logger.Info("Database migration was run successfully", zap.String("driver", driverName))
	return nil
}
