package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/config"
	"github.com/SergeiKhy/shortlink-directory/internal/handler"
	"github.com/SergeiKhy/shortlink-directory/internal/middleware"
	"github.com/SergeiKhy/shortlink-directory/internal/repository"
	"github.com/SergeiKhy/shortlink-directory/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and redirect server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return serve(cmd.Context(), cfg, autoMigrate)
		},
	}

	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "apply the schema before serving")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, autoMigrate bool) error {
	// Инициализация логгера
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.App.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Подключение к хранилищу
	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("Failed to open store", zap.Error(err))
		return err
	}
	defer store.close()

	if autoMigrate {
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := store.migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Error("Failed to apply schema", zap.Error(err))
			return err
		}
	}

	// Подключение к Redis; без него сервис работает напрямую с хранилищем
	cacheRepo := repository.NewNoopCache()
	var cachePinger handler.Pinger
	if cfg.Redis.Enabled() {
		redis, err := repository.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, running without cache", zap.Error(err))
		} else {
			defer redis.Close()
			cacheRepo = repository.NewCacheRepository(redis)
			cachePinger = redis
			logger.Info("Connected to Redis")
		}
	}

	// Инициализация учёта переходов (Worker Pool)
	recorder := service.NewAccessRecorder(store.links, cfg.Recorder.Workers, cfg.Recorder.BufferSize, logger)
	recorder.Start()
	defer recorder.Stop()

	// Инициализация сервисов
	directory := service.NewDirectoryService(store.links, cacheRepo, service.DirectoryOptions{
		MaxLinksPerOwner:      cfg.Directory.MaxLinksPerOwner,
		CodeLength:            cfg.Directory.CodeLength,
		MaxAllocationAttempts: cfg.Directory.MaxAllocationAttempts,
		DefaultTTL:            cfg.Directory.DefaultTTL,
		CacheTTL:              cfg.Redis.CacheTTL,
	}, logger)
	resolver := service.NewResolver(store.links, cacheRepo, recorder, service.ResolverOptions{
		CacheTTL:      cfg.Redis.CacheTTL,
		RejectExpired: cfg.Directory.RejectExpired,
	}, logger)

	// Инициализация middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	defer rateLimiter.Stop()

	if len(cfg.Auth.APIKeys) > 0 {
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	} else {
		logger.Info("Trusting owner header from gateway", zap.String("header", cfg.Auth.OwnerHeader))
	}
	identity := middleware.Identity(cfg.Auth.APIKeys, cfg.Auth.OwnerHeader)

	// Настройка роутера
	router := handler.NewRouter(
		handler.NewLinkHandler(directory, resolver, cfg.App.BaseURL, logger),
		handler.NewHealthHandler(store.pinger, cachePinger, recorder, logger),
		rateLimiter,
		identity,
		logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		logger.Error("Failed to start server", zap.Error(err))
		return err
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	// Отложенный recorder.Stop дописывает принятые переходы до закрытия хранилища
	logger.Info("Server exited")
	return nil
}
