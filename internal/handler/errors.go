package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/cipherquiz-api/internal/codec"
	"github.com/yourusername/cipherquiz-api/internal/domain/repository"
	"github.com/yourusername/cipherquiz-api/internal/engine"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
	"github.com/yourusername/cipherquiz-api/internal/service/verification"
)

// handleLedgerError переводит ошибки сервисного слоя в HTTP-ответ.
// Внутренние причины логируются и наружу не выходят.
func handleLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, apperrors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})

	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})

	// Конфликты состояния: запись уже существует или переход уже совершён
	case errors.Is(err, apperrors.ErrAlreadyExists),
		errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, repository.ErrDuplicateIndex),
		errors.Is(err, repository.ErrDuplicateCompletion),
		errors.Is(err, repository.ErrAlreadyClaimed),
		errors.Is(err, repository.ErrNoWinnerSet),
		errors.Is(err, repository.ErrWinnerAlreadySet),
		errors.Is(err, repository.ErrQuizSetInitialized):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	// Нарушения бизнес-правил: запрос корректен по форме, но неисполним
	case errors.Is(err, repository.ErrInvalidQuestionCount),
		errors.Is(err, repository.ErrInsufficientReward),
		errors.Is(err, repository.ErrInsufficientFunds),
		errors.Is(err, repository.ErrIndexOutOfRange),
		errors.Is(err, codec.ErrMalformedContent),
		errors.Is(err, codec.ErrContentTooLong):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})

	case errors.Is(err, verification.ErrComputationTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})

	case errors.Is(err, engine.ErrUnavailable),
		errors.Is(err, verification.ErrAttestationInvalid):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})

	default:
		log.Printf("ERROR: Internal server error in handler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// actorFromContext возвращает идентичность вызывающего, установленную
// middleware RequireActor
func actorFromContext(c *gin.Context) (string, bool) {
	actorID := c.GetString("actor_id")
	if actorID == "" {
		return "", false
	}
	return actorID, true
}

// pageParams разбирает параметры пагинации из query
func pageParams(c *gin.Context, defaultSize int) (page, pageSize int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultSize)))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = defaultSize
	}
	return page, pageSize
}
