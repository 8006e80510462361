package main

import (
	"context"
	"fmt"

	"github.com/SergeiKhy/shortlink-directory/internal/config"
	"github.com/SergeiKhy/shortlink-directory/internal/handler"
	"github.com/SergeiKhy/shortlink-directory/internal/repository"
	"go.uber.org/zap"
)

// newLogger собирает zap логгер по окружению и уровню из конфига
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.App.Env == "development" {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Log.Level, err)
	}
	zapCfg.Level = level

	return zapCfg.Build()
}

// linkStore объединяет выбранный драйвер хранилища
type linkStore struct {
	links   repository.LinkRepository
	pinger  handler.Pinger
	migrate func(ctx context.Context) error
	close   func()
}

// openStore подключается к хранилищу, выбранному STORE_DRIVER
func openStore(cfg *config.Config, logger *zap.Logger) (*linkStore, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		db, err := repository.NewSQLiteDB(cfg.SQLite)
		if err != nil {
			return nil, err
		}
		logger.Info("Opened SQLite", zap.String("path", cfg.SQLite.Path))
		return &linkStore{
			links:   repository.NewSQLiteLinkRepository(db),
			pinger:  db,
			migrate: db.Migrate,
			close: func() {
				if err := db.Close(); err != nil {
					logger.Warn("Failed to close SQLite", zap.Error(err))
				}
			},
		}, nil
	default:
		db, err := repository.NewPostgresDB(cfg.DB)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to PostgreSQL", zap.String("host", cfg.DB.Host), zap.String("database", cfg.DB.Name))
		return &linkStore{
			links:   repository.NewLinkRepository(db),
			pinger:  db,
			migrate: db.Migrate,
			close:   db.Close,
		}, nil
	}
}
