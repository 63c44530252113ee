package main

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/spf13/cobra"

	"EditaisScanner/internal/config"
	"EditaisScanner/internal/infrastructure/storage"
	"EditaisScanner/internal/logging"
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(env migrateEnv) error {
				return storage.RunMigrations(env.db.DB, env.logger)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(env migrateEnv) error {
				return storage.MigrateDown(env.db.DB, steps, env.logger)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(env migrateEnv) error {
				v, dirty, err := storage.MigrationVersion(env.db.DB)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", v, dirty)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

type migrateEnv struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func withDatabase(cmd *cobra.Command, fn func(migrateEnv) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format).With("component", "migrate")

	db, err := storage.Open(cmd.Context(), cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(migrateEnv{db: db, logger: logger})
}
