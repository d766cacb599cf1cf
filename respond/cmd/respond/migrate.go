package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/secureops/workbench/respond/internal/config"
	"github.com/secureops/workbench/respond/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or revert database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.Driver != config.DriverPostgres {
			return errors.New("migrations apply to the postgres driver only")
		}
		dsn := cfg.Database.Postgres.DSN()
		if down, _ := cmd.Flags().GetBool("down"); down {
			if err := repository.MigrateDown(dsn); err != nil {
				return err
			}
			logger.Info("database migrations reverted")
			return nil
		}
		if err := repository.Migrate(dsn); err != nil {
			return err
		}
		logger.Info("database migrations completed")
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("down", false, "revert every applied migration")
	rootCmd.AddCommand(migrateCmd)
}
