package handler

import (
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func NewRouter(
	linkHandler *LinkHandler,
	healthHandler *HealthHandler,
	rateLimiter *middleware.RateLimiter,
	identity gin.HandlerFunc,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Middleware для логгирования
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	})

	// Rate limiting для всех запросов
	if rateLimiter != nil {
		router.Use(rateLimiter.Middleware())
	}

	// API v.1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.HealthCheck)

		// Идентификация владельца только для эндпоинтов каталога
		links := v1.Group("/links")
		if identity != nil {
			links.Use(identity)
		}

		links.POST("", linkHandler.CreateLink)
		links.GET("", linkHandler.ListLinks)
		links.GET("/:id", linkHandler.GetLink)
		links.PATCH("/:id", linkHandler.SetExpiration)
		links.PATCH("/:id/expiration", linkHandler.SetExpiration)
		links.DELETE("/:id", linkHandler.DeleteLink)
	}

	// Редирект (корневой путь) - без идентификации
	router.GET("/:code", linkHandler.Redirect)

	return router
}
