package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caseflow/caseflow/internal/app"
	"github.com/caseflow/caseflow/internal/config"
)

var serveDevLogging bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the server and background workers",
	Long:  "Start the HTTP server, the websocket hub and the tracker comment workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFrom(configDir)
		if err != nil {
			return err
		}

		logger, err := buildLogger(serveDevLogging)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(),
			syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to start: %w", err)
		}
		defer application.Close()

		logger.Info("starting caseflow",
			zap.String("version", Version),
			zap.String("addr", cfg.Server.Addr),
		)
		return application.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveDevLogging, "dev", false,
		"use human-readable development logging")
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
