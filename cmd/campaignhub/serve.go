package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaignhub/internal/app"
	"github.com/foxzi/campaignhub/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, version, logger)
	if err != nil {
		return err
	}

	return a.Run(ctx)
}
