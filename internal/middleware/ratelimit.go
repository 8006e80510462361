package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig конфигурация rate limiter
type RateLimiterConfig struct {
	RequestsPerSecond float64       // Количество запросов в секунду
	BurstSize         int           // Максимальный размер burst
	CleanupInterval   time.Duration // Интервал очистки неактивных посетителей
}

// DefaultRateLimiterConfig конфигурация по умолчанию
var DefaultRateLimiterConfig = RateLimiterConfig{
	RequestsPerSecond: 10, // 10 запросов в секунду
	BurstSize:         20, // Burst до 20 запросов
	CleanupInterval:   time.Minute,
}

// visitor представляет rate limiter для одного клиента
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter middleware для ограничения запросов с использованием алгоритма Token Bucket
type RateLimiter struct {
	config   RateLimiterConfig
	visitors map[string]*visitor // ключ клиента -> visitor
	mu       sync.RWMutex
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter создаёт новый rate limiter middleware
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		visitors: make(map[string]*visitor),
		done:     make(chan struct{}),
	}
	if rl.config.RequestsPerSecond <= 0 {
		rl.config.RequestsPerSecond = DefaultRateLimiterConfig.RequestsPerSecond
	}
	if rl.config.BurstSize <= 0 {
		rl.config.BurstSize = DefaultRateLimiterConfig.BurstSize
	}
	if rl.config.CleanupInterval <= 0 {
		rl.config.CleanupInterval = DefaultRateLimiterConfig.CleanupInterval
	}

	// Запускаем горутину для периодической очистки
	go rl.cleanupLoop()

	return rl
}

// cleanupLoop периодически удаляет неактивных посетителей
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

// Stop останавливает фоновую очистку
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// cleanup удаляет посетителей, которые не были активны долгое время
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, v := range rl.visitors {
		if time.Since(v.lastSeen) > rl.config.CleanupInterval*3 {
			delete(rl.visitors, key)
		}
	}
}

// getLimiter возвращает или создаёт rate limiter для данного клиента
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, exists := rl.visitors[key]; exists {
		v.lastSeen = time.Now()
		return v.limiter
	}

	// Создаём новый limiter с заданными параметрами
	limiter := rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)
	rl.visitors[key] = &visitor{
		limiter:  limiter,
		lastSeen: time.Now(),
	}

	return limiter
}

// Middleware возвращает Gin middleware handler для rate limiting по IP
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return rl.MiddlewareWithKey(func(c *gin.Context) string { return "" })
}

// MiddlewareWithKey возвращает rate limiter с кастомным ключом (например, владелец)
func (rl *RateLimiter) MiddlewareWithKey(getKey func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getKey(c)
		if key == "" {
			key = c.ClientIP()
		}
		limiter := rl.getLimiter(key)

		if !limiter.Allow() {
			retryAfter := int(math.Ceil(1 / rl.config.RequestsPerSecond))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Слишком много запросов, попробуйте позже",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
