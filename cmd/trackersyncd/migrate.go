package main

import (
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/trackersync/trackersync/internal/dbkit"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig(cmd)
		logger := getLogger(cmd)

		db, err := sqlx.Connect(cfg.DatabaseDriver, cfg.DatabaseConnectionString)
		if err != nil {
			return err
		}
		defer db.Close()

		driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
		if err != nil {
			return err
		}

		service := dbkit.NewMigrationService(logger, &dbkit.MigrationConfig{
			FolderPath:   cfg.DatabaseMigrationFolderPath,
			Version:      uint(cfg.DatabaseMigrationVersion),
			Force:        cfg.DatabaseMigrationForce,
			AutoRollback: cfg.DatabaseMigrationAutoRollback,
		})

		return service.Migrate(cfg.DatabaseDriver, driver)
	},
}
