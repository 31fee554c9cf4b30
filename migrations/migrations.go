// Package migrations embeds the broker schema for MySQL, PostgreSQL and
// SQLite and applies it with golang-migrate.
//
// Tables use the default "pubsub_" prefix. Deployments with a custom prefix
// apply their own copy of these files.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Files contains the SQL migrations, one directory per driver name.
//
//go:embed mysql/*.sql postgres/*.sql sqlite3/*.sql
var Files embed.FS

// ErrUnsupportedDriver is returned for driver names without embedded migrations.
var ErrUnsupportedDriver = errors.New("migrations: unsupported driver")

// Source returns the migrations for driverName ("mysql", "postgres" or "sqlite3").
func Source(driverName string) (fs.FS, error) {
	switch driverName {
	case "mysql", "postgres", "sqlite3":
		return fs.Sub(Files, driverName)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driverName)
	}
}

// Apply migrates db up to the latest version. An up-to-date schema is not an error.
//
// db stays open: Apply never closes the database handle it was given.
// MySQL connections need parseTime=true for the broker to read timestamps back.
func Apply(db *sql.DB, driverName string) error {
	m, err := newMigrate(db, driverName)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: apply %s: %w", driverName, err)
	}
	return nil
}

// Version reports the applied schema version and whether a failed migration
// left it dirty. A database never migrated returns 0, false, nil.
func Version(db *sql.DB, driverName string) (uint, bool, error) {
	m, err := newMigrate(db, driverName)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migrations: read version: %w", err)
	}
	return version, dirty, nil
}

func newMigrate(db *sql.DB, driverName string) (*migrate.Migrate, error) {
	files, err := Source(driverName)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: open source: %w", err)
	}

	var driver database.Driver
	switch driverName {
	case "mysql":
		driver, err = mysql.WithInstance(db, &mysql.Config{})
	case "postgres":
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	case "sqlite3":
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("migrations: open %s driver: %w", driverName, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driverName, driver)
	if err != nil {
		return nil, fmt.Errorf("migrations: init: %w", err)
	}
	return m, nil
}
