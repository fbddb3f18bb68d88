package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/docqa/docqa-api/internal/infrastructure/db/postgres"
	"github.com/docqa/docqa-api/internal/pkg/config"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending identity store migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadContext(cmd.Context())
			if err != nil {
				return err
			}
			log := initLogger(cfg)
			if cfg.Identity.Store != config.StorePostgres {
				return errors.New("migrate requires IDENTITY_STORE=postgres")
			}
			if err := postgres.ApplyMigrations(cmd.Context(), cfg.Identity.PostgresDSN); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}
