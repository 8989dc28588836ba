// Package repository implements the durable layer store on SQLite. It is
// the system of record for images and mask layers; everything else in the
// core holds state in memory and synchronizes through the interfaces in
// internal/domain.
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/lewtec/maskbatch/db/migrations"
	"github.com/lewtec/maskbatch/internal/domain"
)

// Open opens (creating if needed) the database at the given path with
// foreign key enforcement enabled, which the layer cascade relies on.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("while opening database %s: %w", path, err)
	}
	// SQLite handles one writer at a time; a single pooled connection also
	// keeps :memory: databases from silently forking per connection.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("while loading embedded migrations: %w", err)
	}
	drv, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("while preparing migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("while preparing migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("while applying migrations: %w", err)
	}
	return nil
}

// timeLayout keeps the fractional part fixed-width so that the TEXT
// comparisons SQLite does on created_at stay chronological. RFC3339Nano
// trims trailing zeros, which would break that ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by earlier tooling used plain RFC 3339.
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// persistence wraps a storage-level failure so callers can both retry on
// domain.ErrPersistence and inspect the underlying cause.
func persistence(op string, err error) error {
	return fmt.Errorf("while %s: %w", op, errors.Join(domain.ErrPersistence, err))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type rowScanner interface {
	Scan(dest ...any) error
}
