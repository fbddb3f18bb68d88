package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/docqa/docqa-api/internal/api"
	"github.com/docqa/docqa-api/internal/pkg/config"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply database migrations before serving")
	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadContext(ctx)
	if err != nil {
		return err
	}
	log := initLogger(cfg)

	c, err := wire(ctx, cfg, log, migrate)
	if err != nil {
		return err
	}
	defer c.close()

	if cfg.Bootstrap.AdminEmail != "" {
		if _, err := c.identity.BootstrapAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword); err != nil {
			return err
		}
	}

	e := api.NewRouter(api.Dependencies{
		Gate:      c.gate,
		Auth:      c.identity,
		Users:     c.identity,
		Roles:     c.identity,
		Documents: c.docs,
		QA:        c.qa,
		Postgres:  c.pool,
		Mongo:     c.mongoDB,
		Redis:     c.redis,
		Log:       log,
	})

	// Stopped only after the HTTP server has drained.
	auditCtx, stopAudit := context.WithCancel(context.Background())
	defer stopAudit()
	if c.audit != nil {
		c.audit.Start(auditCtx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := e.Shutdown(shutdownCtx)

		stopAudit()
		if c.audit != nil {
			c.audit.Wait()
		}
		return err
	})

	return g.Wait()
}
