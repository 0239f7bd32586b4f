package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/handler/dto"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
	"github.com/yourusername/cipherquiz-api/internal/service"
)

// TopicHandler обрабатывает запросы, связанные с темами
type TopicHandler struct {
	ledgerService *service.LedgerService
	scoreService  *service.ScoreService
}

// NewTopicHandler создает новый обработчик тем
func NewTopicHandler(ledgerService *service.LedgerService, scoreService *service.ScoreService) *TopicHandler {
	return &TopicHandler{
		ledgerService: ledgerService,
		scoreService:  scoreService,
	}
}

// CreateTopicRequest представляет запрос на создание темы
type CreateTopicRequest struct {
	Name             string `json:"name" binding:"required,min=1,max=100"`
	MinQuestionCount uint32 `json:"min_question_count"`
	MinRewardAmount  uint64 `json:"min_reward_amount"`
}

// CreateTopic обрабатывает запрос на создание темы
func (h *TopicHandler) CreateTopic(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		handleLedgerError(c, apperrors.ErrUnauthorized)
		return
	}

	var req CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	topic, err := h.ledgerService.CreateTopic(entity.Identity(actorID), req.Name, req.MinQuestionCount, req.MinRewardAmount)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewTopicResponse(topic))
}

// ListTopics возвращает список тем с пагинацией
func (h *TopicHandler) ListTopics(c *gin.Context) {
	page, pageSize := pageParams(c, 20)
	activeOnly := c.DefaultQuery("active", "false") == "true"

	topics, total, err := h.ledgerService.ListTopics(activeOnly, page, pageSize)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	response := make([]dto.TopicResponse, len(topics))
	for i := range topics {
		response[i] = *dto.NewTopicResponse(&topics[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"topics": response,
		"total":  total,
		"page":   page,
		"size":   pageSize,
	})
}

// GetTopic возвращает тему по имени
func (h *TopicHandler) GetTopic(c *gin.Context) {
	topic, err := h.ledgerService.GetTopicByName(c.Param("name"))
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTopicResponse(topic))
}

// TopicLeaderboard возвращает таблицу лидеров темы
func (h *TopicHandler) TopicLeaderboard(c *gin.Context) {
	topic, err := h.ledgerService.GetTopicByName(c.Param("name"))
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}

	scores, err := h.scoreService.TopicLeaderboard(topic.Address, limit)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"topic":       topic.Name,
		"leaderboard": dto.NewTopicLeaderboardResponse(scores),
	})
}
