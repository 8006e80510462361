package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	serviceName        = "shortlink-directory"
	healthCheckTimeout = 2 * time.Second
)

// Pinger проверяет доступность зависимости
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store    Pinger
	cache    Pinger // nil если кэш выключен
	recorder service.AccessRecorder
	logger   *zap.Logger
}

func NewHealthHandler(store, cache Pinger, recorder service.AccessRecorder, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:    store,
		cache:    cache,
		recorder: recorder,
		logger:   logger,
	}
}

type HealthResponse struct {
	Status   string                 `json:"status"`
	Service  string                 `json:"service"`
	Checks   map[string]string      `json:"checks"`
	Recorder *service.RecorderStats `json:"recorder,omitempty"`
}

// HealthCheck godoc
// @Summary Service health
// @Description Store and cache reachability plus access recorder buffer stats
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /api/v1/health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:  "ok",
		Service: serviceName,
		Checks:  map[string]string{"store": "ok", "cache": "disabled"},
	}
	status := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("Store health check failed", zap.Error(err))
		response.Status = "unavailable"
		response.Checks["store"] = "unavailable"
		status = http.StatusServiceUnavailable
	}

	// Кэш не обязателен, его недоступность только понижает статус
	if h.cache != nil {
		response.Checks["cache"] = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn("Cache health check failed", zap.Error(err))
			response.Checks["cache"] = "unavailable"
			if status == http.StatusOK {
				response.Status = "degraded"
			}
		}
	}

	if h.recorder != nil {
		stats := h.recorder.Stats()
		response.Recorder = &stats
	}

	c.JSON(status, response)
}
