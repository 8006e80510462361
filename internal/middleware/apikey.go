package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Ключи контекста, заполняемые при идентификации владельца
const (
	OwnerIDKey    = "owner_id"
	authMethodKey = "auth_method"
)

// APIKeyConfig конфигурация для API key аутентификации
type APIKeyConfig struct {
	// ValidKeys карта валидных API ключей к идентификаторам владельцев
	ValidKeys map[string]string
	// HeaderName имя заголовка для API ключа (по умолчанию: X-API-Key)
	HeaderName string
}

// DefaultAPIKeyConfig конфигурация по умолчанию
var DefaultAPIKeyConfig = APIKeyConfig{
	HeaderName: "X-API-Key",
}

// APIKey middleware, определяющий владельца по API ключу
type APIKey struct {
	config APIKeyConfig
}

// NewAPIKey создаёт новый API key middleware
func NewAPIKey(config APIKeyConfig) *APIKey {
	if config.HeaderName == "" {
		config.HeaderName = DefaultAPIKeyConfig.HeaderName
	}
	return &APIKey{config: config}
}

// Middleware возвращает Gin middleware handler для API key аутентификации
func (ak *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(ak.config.HeaderName)

		// Также проверяем заголовок Authorization с Bearer схемой
		if apiKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				apiKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "Требуется API ключ. Передайте его через заголовок X-API-Key или Authorization: Bearer",
			})
			return
		}

		// Валидация API ключа с использованием constant-time comparison
		var ownerID string
		for validKey, owner := range ak.config.ValidKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
				ownerID = owner
				break
			}
		}

		if ownerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "Невалидный API ключ",
			})
			return
		}

		c.Set(OwnerIDKey, ownerID)
		c.Set(authMethodKey, "api_key")
		c.Next()
	}
}

// TrustedOwnerHeader middleware для развёртывания за шлюзом, который уже
// проверил пользователя и передаёт его идентификатор в заголовке
func TrustedOwnerHeader(headerName string) gin.HandlerFunc {
	if headerName == "" {
		headerName = "X-Owner-ID"
	}
	return func(c *gin.Context) {
		ownerID := strings.TrimSpace(c.GetHeader(headerName))
		if ownerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_owner",
				"message": "Не передан идентификатор владельца в заголовке " + headerName,
			})
			return
		}

		c.Set(OwnerIDKey, ownerID)
		c.Set(authMethodKey, "header")
		c.Next()
	}
}

// Identity выбирает способ идентификации: по API ключам, если они заданы,
// иначе по доверенному заголовку
func Identity(apiKeys map[string]string, ownerHeader string) gin.HandlerFunc {
	if len(apiKeys) > 0 {
		return NewAPIKey(APIKeyConfig{ValidKeys: apiKeys}).Middleware()
	}
	return TrustedOwnerHeader(ownerHeader)
}

// OwnerFromContext извлекает идентификатор владельца из контекста
func OwnerFromContext(c *gin.Context) (string, bool) {
	owner := c.GetString(OwnerIDKey)
	return owner, owner != ""
}

// AuthMethod возвращает способ, которым был определён владелец
func AuthMethod(c *gin.Context) string {
	return c.GetString(authMethodKey)
}
