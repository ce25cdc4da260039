package cmd

import (
	"errors"

	"github.com/efuayankey/aimes-sub001/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (PostgreSQL)",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE:  runMigrateStatus,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

var errNotPostgres = errors.New("migrate: DB_DRIVER is not postgres; the SQLite schema is created on startup")

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	cfg, log, err := load()
	if err != nil {
		return err
	}
	if cfg.DB.Driver != "postgres" {
		return errNotPostgres
	}
	if err := database.MigrateUp(cmd.Context(), log, cfg.DatabaseURL()); err != nil {
		return err
	}
	log.Info("migrate up: ok")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	cfg, log, err := load()
	if err != nil {
		return err
	}
	if cfg.DB.Driver != "postgres" {
		return errNotPostgres
	}
	return database.Status(cmd.Context(), log, cfg.DatabaseURL())
}
