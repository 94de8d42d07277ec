package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/twitter-signin/internal/app"
	"github.com/dropDatabas3/twitter-signin/internal/config"
	apphttp "github.com/dropDatabas3/twitter-signin/internal/http"
	"github.com/dropDatabas3/twitter-signin/internal/observability/logger"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP (start, callback, providers, healthz, metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "twitter-signin"})
			defer func() { _ = logger.Sync() }()

			a, err := app.New(cfg, app.Deps{})
			if err != nil {
				logger.L().Error("wiring failed", logger.Err(err))
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return apphttp.NewServer(cfg.Server.Addr, a.Handler).Run(ctx)
		},
	}
}
