package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cartoncaps/analytics/internal/config"
	"github.com/cartoncaps/analytics/internal/logging"
	"github.com/cartoncaps/analytics/internal/storage"
	"github.com/cartoncaps/analytics/migrations"
)

func newMigrateCmd() *cobra.Command {
	var dbType string

	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Run run-registry database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := initLogger(cfg)
			ctx := logging.WithLogger(cmd.Context(), logger)

			switch dbType {
			case config.SnapshotPostgres:
				return runPostgresMigrations(cfg, action, logger)
			case config.SnapshotClickHouse:
				return runClickHouseMigrations(ctx, cfg, action, logger)
			default:
				return fmt.Errorf("unknown database type: %s", dbType)
			}
		},
	}

	cmd.Flags().StringVar(&dbType, "db", config.SnapshotPostgres, "database type: postgres, clickhouse")
	return cmd
}

func runPostgresMigrations(cfg *config.Config, action string, logger *logging.Logger) error {
	databaseURL := cfg.Database.Postgres.URL()

	switch action {
	case "up":
		logger.Info("Running Postgres migrations...")
		if err := storage.RunMigrations(databaseURL); err != nil {
			return err
		}
		logger.Info("Postgres migrations completed successfully")

	case "down":
		logger.Info("Rolling back Postgres migration...")
		if err := storage.RollbackMigrations(databaseURL); err != nil {
			return err
		}
		logger.Info("Postgres migration rolled back successfully")

	case "version":
		version, dirty, err := storage.MigrationVersion(databaseURL)
		if err != nil {
			return err
		}
		fmt.Printf("postgres migration version: %d (dirty: %v)\n", version, dirty)

	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	return nil
}

func runClickHouseMigrations(ctx context.Context, cfg *config.Config, action string, logger *logging.Logger) error {
	if action != "up" {
		return fmt.Errorf("ClickHouse migrations only support 'up' action")
	}

	logger.Info("Connecting to ClickHouse...")
	db, err := storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Error closing ClickHouse connection")
		}
	}()

	logger.Info("Running ClickHouse migrations...")
	if err := storage.RunClickHouseMigrations(ctx, db, migrations.ClickHouse, migrations.ClickHouseDir); err != nil {
		return err
	}

	logger.Info("ClickHouse migrations completed successfully")
	return nil
}
