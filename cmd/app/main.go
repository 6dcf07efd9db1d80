// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"codeberg.org/oliverandrich/authcore/internal/config"
	"codeberg.org/oliverandrich/authcore/internal/database"
	"codeberg.org/oliverandrich/authcore/internal/server"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cmd := &cli.Command{
		Name:    "authcore",
		Usage:   "Account registration, sessions and OTP flows over HTTP",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server",
				Flags:  config.Flags(),
				Action: server.Run,
			},
			{
				Name:  "migrate",
				Usage: "Manage the database schema",
				Flags: config.DatabaseFlags(),
				Commands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "Apply all pending migrations",
						Action: migrate(database.RunMigrations),
					},
					{
						Name:   "down",
						Usage:  "Roll back the last migration",
						Action: migrate(database.MigrateDown),
					},
					{
						Name:   "reset",
						Usage:  "Roll back all migrations",
						Action: migrate(database.MigrateReset),
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// migrate wraps a schema operation into a command action.
func migrate(op func(*sqlx.DB) error) cli.ActionFunc {
	return func(_ context.Context, cmd *cli.Command) error {
		server.SetupLogger(cmd.String("log-level"), cmd.String("log-format"))

		db, err := database.Connect(cmd.String("database-dsn"))
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = db.Close() }()

		if err := op(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", cmd.Name, err)
		}

		version, err := database.MigrationVersion(db)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		slog.Info("migration_complete", "command", cmd.Name, "version", version)
		return nil
	}
}
