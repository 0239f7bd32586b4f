package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/cipherquiz-api/pkg/auth"
)

// Заголовок идентичности вызывающего и ключ контекста Gin
const (
	ActorHeader = "X-Actor-ID"
	ActorKey    = "actor_id"

	maxActorIDLength = 128
)

// RequireActor извлекает идентичность вызывающего из заголовка X-Actor-ID.
// Идентичность — непрозрачная строка без проверки подписи; изменяющие
// маршруты без неё не обслуживаются.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actorID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "X-Actor-ID header is required", "error_type": "actor_missing"})
			c.Abort()
			return
		}
		if len(actorID) > maxActorIDLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-Actor-ID is too long", "error_type": "actor_invalid"})
			c.Abort()
			return
		}

		c.Set(ActorKey, actorID)
		c.Next()
	}
}

// OptionalActor кладёт идентичность в контекст, если заголовок прислан.
// Используется на читающих маршрутах, где идентичность уточняет ответ,
// но не обязательна.
func OptionalActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actorID != "" && len(actorID) <= maxActorIDLength {
			c.Set(ActorKey, actorID)
		}
		c.Next()
	}
}

// EngineAuthMiddleware проверяет сервисные токены движка верификации
// на callback-маршруте
type EngineAuthMiddleware struct {
	tokens *auth.EngineTokenService
}

// NewEngineAuthMiddleware создает middleware аутентификации движка
func NewEngineAuthMiddleware(tokens *auth.EngineTokenService) *EngineAuthMiddleware {
	return &EngineAuthMiddleware{tokens: tokens}
}

// RequireEngineToken проверяет Bearer-токен с назначением engine_callback
func (m *EngineAuthMiddleware) RequireEngineToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "error_type": "token_missing"})
			c.Abort()
			return
		}

		// Проверяем формат заголовка Bearer {token}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}", "error_type": "token_format"})
			c.Abort()
			return
		}

		if _, err := m.tokens.Verify(parts[1]); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "error_type": "token_invalid"})
			c.Abort()
			return
		}

		c.Next()
	}
}
