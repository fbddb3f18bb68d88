package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/docqa/docqa-api/internal/core/service"
	"github.com/docqa/docqa-api/internal/infrastructure/credential"
	"github.com/docqa/docqa-api/internal/pkg/config"
)

func newCreateAdminCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create or promote an administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadContext(ctx)
			if err != nil {
				return err
			}
			log := initLogger(cfg)

			if email == "" {
				email = cfg.Bootstrap.AdminEmail
			}
			if password == "" {
				password = cfg.Bootstrap.AdminPassword
			}
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			if cfg.Identity.Store == config.StoreMemory {
				return errors.New("create-admin needs a persistent identity store")
			}

			repo, pool, err := openIdentityStore(ctx, cfg, log, true)
			if err != nil {
				return err
			}
			defer pool.Close()

			creds, err := credential.NewStore(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			engine, err := loadPolicy(cfg)
			if err != nil {
				return err
			}

			user, err := service.NewIdentityService(repo, creds, engine, log).BootstrapAdmin(ctx, email, password)
			if err != nil {
				return err
			}
			log.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("administrator ready")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Administrator email (defaults to BOOTSTRAP_ADMIN_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Administrator password (defaults to BOOTSTRAP_ADMIN_PASSWORD)")
	return cmd
}
