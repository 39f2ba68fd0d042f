package db

import (
	"embed"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open connects to the SQLite database at path. A single connection is kept
// open: SQLite serialises writers anyway, and an in-memory database only
// exists for the connection that created it. Callers holding a transaction
// must therefore not touch the *sqlx.DB until it is committed.
func Open(path string) (*sqlx.DB, error) {
	dsn := path
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_foreign_keys=on&_busy_timeout=5000"
	if !strings.Contains(path, "memory") {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitDB opens the database and exits the process on failure.
func InitDB(path string) *sqlx.DB {
	db, err := Open(path)
	if err != nil {
		log.Fatalln("Failed to connect to DB:", err)
	}

	slog.Info("Database connected", "path", path)
	return db
}

// RunMigrations applies every embedded migration that has not run yet.
// The migrate instance is not closed: closing it would close db as well.
func RunMigrations(db *sqlx.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
