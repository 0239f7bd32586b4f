package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
)

// ExtractAddressParam создает middleware для извлечения и валидации адресного
// параметра URL.
// paramName - имя параметра в URL (например, "address").
// contextKey - ключ, под которым значение будет сохранено в контексте Gin.
func ExtractAddressParam(paramName, contextKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		addrStr := c.Param(paramName)
		addr, err := entity.ParseAddress(addrStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid %s", paramName)})
			c.Abort()
			return
		}
		// Сохраняем как entity.Address для единообразия
		c.Set(contextKey, addr)
		c.Next()
	}
}
