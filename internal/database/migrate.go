// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database

import (
	"embed"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/vinovest/sqlx"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// goose keeps its dialect and filesystem in package state.
var gooseMu sync.Mutex

// RunMigrations runs all pending goose migrations.
func RunMigrations(db *sqlx.DB) error {
	return withGoose(db, func() error {
		return goose.Up(db.DB, "migrations")
	})
}

// MigrateDown rolls back the last migration.
func MigrateDown(db *sqlx.DB) error {
	return withGoose(db, func() error {
		return goose.Down(db.DB, "migrations")
	})
}

// MigrateReset rolls back all migrations.
func MigrateReset(db *sqlx.DB) error {
	return withGoose(db, func() error {
		return goose.Reset(db.DB, "migrations")
	})
}

// MigrationVersion returns the currently applied schema version.
func MigrationVersion(db *sqlx.DB) (int64, error) {
	var version int64
	err := withGoose(db, func() error {
		var err error
		version, err = goose.GetDBVersion(db.DB)
		return err
	})
	return version, err
}

func withGoose(db *sqlx.DB, fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(dialect(db)); err != nil {
		return err
	}

	return fn()
}

func dialect(db *sqlx.DB) string {
	if db.DriverName() == DriverPostgres {
		return "postgres"
	}
	return "sqlite3"
}
