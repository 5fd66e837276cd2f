// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/acctgate/internal/store"
)

// Migrator wraps the store.Migrator methods used by the migrate commands.
type Migrator interface {
	AutoMigrator
	Steps(n int) error
	Down() error
	Force(version int) error
	Version() (version uint, dirty bool, err error)
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Dialect() store.Dialect
}

// migratorFactory opens a Migrator. Tests replace it.
var migratorFactory = func(databaseURL string) (Migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Manage the credential store schema. Without a subcommand all pending
migrations are applied. PostgreSQL and SQLite URLs are both accepted.`,
		RunE: runMigrateUp,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	})
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE:  runMigrateStatus,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version without running any migration.
Use only to recover from a dirty state after repairing the database by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: runMigrateForce,
	})

	return cmd
}

func newMigrateDownCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Long: `Roll back the most recent migration. With --all every migration is rolled
back, which drops every account and login log.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m Migrator) error {
				if all {
					cmd.Println("Rolling back all migrations...")
					return m.Down()
				}
				cmd.Println("Rolling back one migration...")
				return m.Steps(-1)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")
	return cmd
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	return withMigrator(cmd, func(m Migrator) error {
		cmd.Println("Running migrations...")
		if err := m.Up(); err != nil {
			return err //nolint:wrapcheck // already coded
		}
		cmd.Println("Migrations completed successfully")
		return nil
	})
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	return withMigrator(cmd, func(m Migrator) error {
		version, dirty, err := m.Version()
		if err != nil {
			return err //nolint:wrapcheck // already coded
		}
		applied, err := m.AppliedMigrations()
		if err != nil {
			return err //nolint:wrapcheck // already coded
		}
		pending, err := m.PendingMigrations()
		if err != nil {
			return err //nolint:wrapcheck // already coded
		}

		cmd.Printf("Dialect: %s\n", m.Dialect())
		cmd.Printf("Current version: %d", version)
		if dirty {
			cmd.Print(" (dirty)")
		}
		cmd.Println()
		printMigrations(cmd, "Applied", m.Dialect(), applied)
		printMigrations(cmd, "Pending", m.Dialect(), pending)
		return nil
	})
}

func printMigrations(cmd *cobra.Command, label string, dialect store.Dialect, versions []uint) {
	if len(versions) == 0 {
		cmd.Printf("%s: none\n", label)
		return
	}
	cmd.Printf("%s:\n", label)
	for _, v := range versions {
		name, err := store.MigrationName(dialect, v)
		if err != nil || name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		cmd.Printf("  %s\n", name)
	}
}

func runMigrateForce(cmd *cobra.Command, args []string) error {
	version, err := parseForceVersion(args[0])
	if err != nil {
		return err
	}
	return withMigrator(cmd, func(m Migrator) error {
		if err := m.Force(version); err != nil {
			return err //nolint:wrapcheck // already coded
		}
		cmd.Printf("Schema version forced to %d\n", version)
		return nil
	})
}

// parseForceVersion reads the leading integer of s.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").
			With("input", s).
			Wrapf(err, "version must be an integer")
	}
	return version, nil
}

// withMigrator loads the config, opens a migrator for its database and runs fn.
func withMigrator(cmd *cobra.Command, fn func(Migrator) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	m, err := migratorFactory(cfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("failed to close migrator: %v\n", closeErr)
		}
	}()

	return fn(m)
}
