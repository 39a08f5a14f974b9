package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/astrobridge/internal/infrastructure/config"
	"github.com/nerrad567/astrobridge/internal/infrastructure/database"
	_ "github.com/nerrad567/astrobridge/migrations"
)

// createMigrateCommand creates the migrate command group.
func createMigrateCommand(flags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the event archive schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(flags.ConfigPath, func(db *database.DB) error {
					if err := db.Migrate(cmd.Context()); err != nil {
						return fmt.Errorf("running migrations: %w", err)
					}
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(flags.ConfigPath, func(db *database.DB) error {
					if err := db.MigrateDown(cmd.Context()); err != nil {
						return fmt.Errorf("rolling back migration: %w", err)
					}
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "latest migration rolled back")
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(flags.ConfigPath, func(db *database.DB) error {
					applied, pending, err := db.GetMigrationStatus(cmd.Context())
					if err != nil {
						return fmt.Errorf("reading migration status: %w", err)
					}
					out := cmd.OutOrStdout()
					for _, m := range applied {
						fmt.Fprintf(out, "applied  %s  %s\n", m.Version, m.AppliedAt.Format("2006-01-02 15:04:05"))
					}
					for _, m := range pending {
						fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

// withDatabase loads the config, opens the archive database and runs fn.
// The migrate commands work whether or not the archive is enabled for serve.
func withDatabase(configPath string, fn func(db *database.DB) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return fn(db)
}
