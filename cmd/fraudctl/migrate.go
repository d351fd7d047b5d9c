package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jassnet/Fraudhunter/internal/repository"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the PostgreSQL schema",
		Long: `migrate runs the SQL files in MIGRATIONS_PATH against DATABASE_URL.
The SQLite store applies its schema when opened and needs no migration.`,
	}

	for _, dir := range []repository.MigrateDirection{repository.MigrateUp, repository.MigrateDown} {
		dir := dir
		cmd.AddCommand(&cobra.Command{
			Use:   string(dir),
			Short: fmt.Sprintf("Migrate %s", dir),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if a.cfg.DatabaseURL == "" {
					return errors.New("DATABASE_URL is required for migrate")
				}
				if err := repository.Migrate(a.cfg.DatabaseURL, a.cfg.MigrationsPath, dir); err != nil {
					return err
				}
				a.logger.Info("migration complete", "direction", dir, "path", a.cfg.MigrationsPath)
				return nil
			},
		})
	}
	return cmd
}
