package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caseflow/caseflow/internal/config"
	"github.com/caseflow/caseflow/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long:  "Connect to the configured database and apply all pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFrom(configDir)
		if err != nil {
			return err
		}

		logger, err := buildLogger(true)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx := context.Background()
		st, err := store.Open(ctx, store.Config{
			Driver: cfg.Database.Driver,
			DSN:    cfg.Database.DSN,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer st.Close()

		if err := st.Migrate(ctx, logger); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		color.Green("✓ Database schema is up to date")
		return nil
	},
}
