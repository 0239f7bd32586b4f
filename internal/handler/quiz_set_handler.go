package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/handler/dto"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
	"github.com/yourusername/cipherquiz-api/internal/service"
	"github.com/yourusername/cipherquiz-api/internal/service/verification"
	"github.com/yourusername/cipherquiz-api/internal/websocket"
)

// QuizSetHandler обрабатывает запросы, связанные с наборами вопросов
type QuizSetHandler struct {
	ledgerService *service.LedgerService
	vaultService  *service.VaultService
	protocol      *verification.Protocol
	hub           *websocket.Hub
}

// NewQuizSetHandler создает новый обработчик наборов вопросов
func NewQuizSetHandler(
	ledgerService *service.LedgerService,
	vaultService *service.VaultService,
	protocol *verification.Protocol,
	hub *websocket.Hub,
) *QuizSetHandler {
	return &QuizSetHandler{
		ledgerService: ledgerService,
		vaultService:  vaultService,
		protocol:      protocol,
		hub:           hub,
	}
}

// CreateQuizSetRequest представляет запрос на создание набора вопросов
type CreateQuizSetRequest struct {
	Name          string `json:"name" binding:"required,min=1,max=100"`
	UniqueID      uint64 `json:"unique_id" binding:"required"`
	QuestionCount uint32 `json:"question_count" binding:"required,min=1,max=50"`
	RewardAmount  uint64 `json:"reward_amount"`
	TopicAddress  string `json:"topic_address,omitempty"` // hex-адрес темы, опционально
}

// CreateQuizSet обрабатывает запрос на создание набора с эскроу-наградой
func (h *QuizSetHandler) CreateQuizSet(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		handleLedgerError(c, apperrors.ErrUnauthorized)
		return
	}

	var req CreateQuizSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var topicAddress entity.Address // нулевой адрес = без темы
	if req.TopicAddress != "" {
		parsed, err := entity.ParseAddress(req.TopicAddress)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid topic_address"})
			return
		}
		topicAddress = parsed
	}

	quizSet, err := h.ledgerService.CreateQuizSet(
		entity.Identity(actorID),
		topicAddress,
		req.Name,
		req.UniqueID,
		req.QuestionCount,
		req.RewardAmount,
	)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewQuizSetResponse(quizSet, nil))
}

// ListQuizSets возвращает список наборов по автору или теме
func (h *QuizSetHandler) ListQuizSets(c *gin.Context) {
	page, pageSize := pageParams(c, 20)

	if topicStr := c.Query("topic"); topicStr != "" {
		topicAddr, err := entity.ParseAddress(topicStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid topic address"})
			return
		}
		sets, total, err := h.ledgerService.ListQuizSetsByTopic(topicAddr, page, pageSize)
		if err != nil {
			handleLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewPaginatedQuizSetsResponse(sets, total, page, pageSize))
		return
	}

	authority := c.Query("authority")
	if authority == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either topic or authority query parameter is required"})
		return
	}

	sets, total, err := h.ledgerService.ListQuizSetsByAuthority(entity.Identity(authority), page, pageSize)
	if err != nil {
		handleLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPaginatedQuizSetsResponse(sets, total, page, pageSize))
}

// GetQuizSet возвращает набор; с include_questions=true добавляет
// расшифрованные вопросные стороны блоков
func (h *QuizSetHandler) GetQuizSet(c *gin.Context) {
	address := c.MustGet("quizSetAddress").(entity.Address) // Получаем из контекста

	quizSet, err := h.ledgerService.GetQuizSet(address)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	var questions []dto.QuestionBlockResponse
	if c.DefaultQuery("include_questions", "false") == "true" {
		views, err := h.ledgerService.ListQuestionViews(address)
		if err != nil {
			handleLedgerError(c, err)
			return
		}
		questions = make([]dto.QuestionBlockResponse, len(views))
		for i, view := range views {
			questions[i] = dto.NewQuestionBlockResponse(view.Block, view.Payload)
		}
	}

	c.JSON(http.StatusOK, dto.NewQuizSetResponse(quizSet, questions))
}

// AddQuestionBlockRequest представляет запрос на добавление блока вопроса.
// Режимы: открытый текст (content+answer, сервис шифрует сам) или готовые
// шифроблоки (encrypted_* в base64, строго по размерам).
type AddQuestionBlockRequest struct {
	QuestionIndex uint32 `json:"question_index" binding:"required,min=1"`
	Nonce         uint64 `json:"nonce"`

	Content string `json:"content,omitempty"`
	Answer  string `json:"answer,omitempty"`

	EncryptedContent []byte `json:"encrypted_content,omitempty"`
	EncryptedAnswer  []byte `json:"encrypted_answer,omitempty"`
	VerifierKey      []byte `json:"verifier_key,omitempty"`
}

// AddQuestionBlock обрабатывает запрос на добавление блока вопроса к набору
func (h *QuizSetHandler) AddQuestionBlock(c *gin.Context) {
	address := c.MustGet("quizSetAddress").(entity.Address)

	actorID, ok := actorFromContext(c)
	if !ok {
		handleLedgerError(c, apperrors.ErrUnauthorized)
		return
	}

	var req AddQuestionBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		block       *entity.QuestionBlock
		initialized bool
		err         error
	)
	if len(req.EncryptedContent) > 0 || len(req.EncryptedAnswer) > 0 {
		block, initialized, err = h.ledgerService.AddEncryptedQuestionBlock(
			entity.Identity(actorID),
			address,
			req.QuestionIndex,
			req.EncryptedContent,
			req.EncryptedAnswer,
			req.VerifierKey,
			req.Nonce,
		)
	} else {
		block, initialized, err = h.ledgerService.AddQuestionBlock(
			entity.Identity(actorID),
			address,
			req.QuestionIndex,
			req.Content,
			req.Answer,
			req.Nonce,
			req.VerifierKey,
		)
	}
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	if initialized && h.hub != nil {
		quizSet, getErr := h.ledgerService.GetQuizSet(address)
		if getErr != nil {
			log.Printf("[QuizSetHandler] Не удалось прочитать набор %s для события: %v", address.Short(), getErr)
		}
		event := quizSetInitializedEvent(address, quizSet)
		if err := h.hub.BroadcastJSON(websocket.QUIZ_SET_INITIALIZED, event); err != nil {
			log.Printf("[QuizSetHandler] Ошибка отправки события %s: %v", websocket.QUIZ_SET_INITIALIZED, err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"address":        block.Address.String(),
		"question_index": block.QuestionIndex,
		"is_initialized": initialized,
	})
}

// quizSetInitializedEvent строит событие сборки набора. Количество вопросов
// берётся из самого набора: блоки добавляются в произвольном порядке, и
// индекс последнего добавленного размеру набора не равен.
func quizSetInitializedEvent(address entity.Address, quizSet *entity.QuizSet) map[string]interface{} {
	event := map[string]interface{}{
		"quiz_set": address.String(),
	}
	if quizSet != nil {
		event["question_count"] = quizSet.QuestionCount
	}
	return event
}

// SubmitAnswersRequest представляет запрос на проверку ответов.
// Либо одиночный ответ (question_index + answer), либо полная попытка
// прохождения (answers по одному на каждый вопрос набора).
type SubmitAnswersRequest struct {
	QuestionIndex uint32   `json:"question_index,omitempty"`
	Answer        string   `json:"answer,omitempty"`
	Answers       []string `json:"answers,omitempty"`
	TimeoutMs     int64    `json:"timeout_ms,omitempty"`
}

// SubmitAnswers отправляет ответы на конфиденциальную проверку движком
func (h *QuizSetHandler) SubmitAnswers(c *gin.Context) {
	address := c.MustGet("quizSetAddress").(entity.Address)

	actorID, ok := actorFromContext(c)
	if !ok {
		handleLedgerError(c, apperrors.ErrUnauthorized)
		return
	}

	var req SubmitAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond

	// Полная попытка прохождения
	if len(req.Answers) > 0 {
		attempt, err := h.protocol.RunQuizAttempt(c.Request.Context(), entity.Identity(actorID), address, req.Answers, timeout)
		if err != nil {
			handleLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, attempt)
		return
	}

	// Одиночная проверка
	if req.QuestionIndex == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either answers or question_index is required"})
		return
	}

	result, err := h.protocol.VerifyAnswer(c.Request.Context(), entity.Identity(actorID), address, req.QuestionIndex, req.Answer, timeout)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ClaimReward обрабатывает запрос победителя на выплату эскроу
func (h *QuizSetHandler) ClaimReward(c *gin.Context) {
	address := c.MustGet("quizSetAddress").(entity.Address)

	actorID, ok := actorFromContext(c)
	if !ok {
		handleLedgerError(c, apperrors.ErrUnauthorized)
		return
	}

	amount, err := h.vaultService.Claim(entity.Identity(actorID), address)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Reward claimed successfully",
		"quiz_set": address.String(),
		"amount":   amount,
	})
}

// GetVault возвращает эскроу-хранилище набора
func (h *QuizSetHandler) GetVault(c *gin.Context) {
	address := c.MustGet("quizSetAddress").(entity.Address)

	vault, err := h.vaultService.GetVault(address)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewVaultResponse(vault))
}
