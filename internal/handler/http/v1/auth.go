package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/emergency_clustering_system/internal/config"
	"github.com/shenikar/emergency_clustering_system/internal/models"
	"github.com/sirupsen/logrus"
)

const callerContextKey = "caller"

// APIKeyAuthMiddleware - middleware для аутентификации вызывающего сервиса по API-ключу
func APIKeyAuthMiddleware(cfg *config.Config, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			// Проверяем также заголовок Authorization: Bearer
			authHeader := c.GetHeader("Authorization")
			if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
				apiKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if apiKey == "" {
			log.Warn("API key missing from request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			return
		}

		isValid := false
		for _, key := range cfg.APIKeys {
			if key == apiKey {
				isValid = true
				break
			}
		}

		if !isValid {
			log.Warnf("Invalid API key provided: %s", apiKey)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		c.Next()
	}
}

// IdentityMiddleware извлекает идентичность вызывающего, проставленную внешним
// слоем аутентификации. Ядро ее не проверяет, только требует наличия и
// известной роли; проверки ролей и владения выполняют сервисы.
func IdentityMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		role := models.Role(c.GetHeader("X-User-Role"))

		if userID == "" {
			log.Warn("Caller identity missing from request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "caller identity required"})
			return
		}

		if !role.Valid() {
			log.Warnf("Unknown caller role provided: %s", role)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown caller role"})
			return
		}

		c.Set(callerContextKey, models.Caller{ID: userID, Role: role})
		c.Next()
	}
}

// callerFromContext возвращает идентичность, сохраненную IdentityMiddleware
func callerFromContext(c *gin.Context) (models.Caller, bool) {
	value, exists := c.Get(callerContextKey)
	if !exists {
		return models.Caller{}, false
	}
	caller, ok := value.(models.Caller)
	return caller, ok
}
