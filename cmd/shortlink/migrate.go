package main

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := store.migrate(ctx); err != nil {
				return err
			}

			logger.Info("Schema applied", zap.String("driver", cfg.Store.Driver))
			return nil
		},
	}
}
