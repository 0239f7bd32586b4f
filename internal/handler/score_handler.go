package handler

import (
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/domain/repository"
	"github.com/yourusername/cipherquiz-api/internal/handler/dto"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
	"github.com/yourusername/cipherquiz-api/internal/service"
)

// ScoreHandler обрабатывает запросы счетов, журналов и таблиц лидеров
type ScoreHandler struct {
	ledgerService *service.LedgerService
	scoreService  *service.ScoreService
}

// NewScoreHandler создает новый обработчик результатов
func NewScoreHandler(ledgerService *service.LedgerService, scoreService *service.ScoreService) *ScoreHandler {
	return &ScoreHandler{
		ledgerService: ledgerService,
		scoreService:  scoreService,
	}
}

// RecordCompletionRequest представляет запрос на запись прохождения
type RecordCompletionRequest struct {
	QuizSet     string `json:"quiz_set" binding:"required"`
	Score       uint32 `json:"score"`
	CompletedAt int64  `json:"completed_at,omitempty"` // unix-секунды, по умолчанию сейчас
}

// RecordCompletion записывает самостоятельно заявленное прохождение.
// Публичный путь побед не присуждает: победителя фиксирует только
// протокол проверки.
func (h *ScoreHandler) RecordCompletion(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		handleLedgerError(c, apperrors.ErrUnauthorized)
		return
	}

	var req RecordCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quizSetAddress, err := entity.ParseAddress(req.QuizSet)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quiz_set address"})
		return
	}

	completedAt := time.Now()
	if req.CompletedAt > 0 {
		completedAt = time.Unix(req.CompletedAt, 0)
	}

	history, err := h.ledgerService.RecordCompletion(entity.Identity(actorID), quizSetAddress, req.Score, completedAt, false)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewHistoryResponse(history))
}

// ListUserScores возвращает счета участника по всем темам
func (h *ScoreHandler) ListUserScores(c *gin.Context) {
	user := c.Query("user")
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user query parameter is required"})
		return
	}

	scores, err := h.scoreService.ListUserScores(entity.Identity(user))
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	responses := make([]dto.UserScoreResponse, len(scores))
	for i := range scores {
		responses[i] = *dto.NewUserScoreResponse(&scores[i])
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "scores": responses})
}

// GlobalLeaderboard возвращает сводную таблицу лидеров по всем темам
func (h *ScoreHandler) GlobalLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	scores, err := h.scoreService.GlobalLeaderboard(limit)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": dto.NewGlobalLeaderboardResponse(scores)})
}

// GetAccount возвращает счёт участника; при первом обращении счёт
// создается со стартовым балансом
func (h *ScoreHandler) GetAccount(c *gin.Context) {
	identity := c.Param("id")

	account, err := h.ledgerService.GetAccount(entity.Identity(identity))
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAccountResponse(account))
}

// ListHistory возвращает журнал прохождений участника
func (h *ScoreHandler) ListHistory(c *gin.Context) {
	user := c.Query("user")
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user query parameter is required"})
		return
	}
	page, pageSize := pageParams(c, 20)

	history, total, err := h.scoreService.ListHistory(entity.Identity(user), page, pageSize)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedHistoryResponse(history, total, page, pageSize))
}

// ExportLeaderboard экспортирует таблицу лидеров в CSV или Excel формате
// GET /api/v1/leaderboard/export?topic=<hex>&format=csv|xlsx
func (h *ScoreHandler) ExportLeaderboard(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")

	if topicStr := c.Query("topic"); topicStr != "" {
		topicAddr, err := entity.ParseAddress(topicStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid topic address"})
			return
		}
		scores, err := h.scoreService.ExportTopicLeaderboard(topicAddr)
		if err != nil {
			handleLedgerError(c, err)
			return
		}

		filename := fmt.Sprintf("leaderboard_%s_%s", topicAddr.Short(), time.Now().Format("2006-01-02"))
		switch format {
		case "xlsx":
			h.exportTopicXLSX(c, scores, filename)
		default:
			h.exportTopicCSV(c, scores, filename)
		}
		return
	}

	scores, err := h.scoreService.ExportGlobalLeaderboard()
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	filename := fmt.Sprintf("leaderboard_global_%s", time.Now().Format("2006-01-02"))
	switch format {
	case "xlsx":
		h.exportGlobalXLSX(c, scores, filename)
	default:
		h.exportGlobalCSV(c, scores, filename)
	}
}

// exportTopicCSV экспортирует таблицу темы в CSV с правильным экранированием
func (h *ScoreHandler) exportTopicCSV(c *gin.Context, scores []entity.UserScore, filename string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))

	// BOM для корректного отображения UTF-8 в Excel
	c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	// Используем encoding/csv для правильного экранирования запятых/кавычек
	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	// Заголовки
	writer.Write([]string{"Место", "Участник", "Побед", "Прохождений", "Доля побед", "Награды", "Последняя активность"})

	// Данные
	for i := range scores {
		s := &scores[i]
		writer.Write([]string{
			strconv.Itoa(i + 1),
			sanitizeForExcel(string(s.User)),
			strconv.FormatUint(uint64(s.Score), 10),
			strconv.FormatUint(uint64(s.TotalCompleted), 10),
			fmt.Sprintf("%.2f", s.WinRate()),
			strconv.FormatUint(s.TotalRewards, 10),
			s.LastActivity.Format(time.RFC3339),
		})
	}
}

// exportTopicXLSX экспортирует таблицу темы в Excel через StreamWriter
func (h *ScoreHandler) exportTopicXLSX(c *gin.Context, scores []entity.UserScore, filename string) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Таблица лидеров"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		log.Printf("[ScoreHandler] Ошибка создания StreamWriter: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	// Заголовки
	headers := []interface{}{"Место", "Участник", "Побед", "Прохождений", "Доля побед", "Награды", "Последняя активность"}
	if err := sw.SetRow("A1", headers); err != nil {
		log.Printf("[ScoreHandler] Ошибка записи заголовков: %v", err)
	}

	// Данные
	for i := range scores {
		s := &scores[i]
		rowNum := i + 2 // Начинаем с 2 строки (1 - заголовки)
		cell := fmt.Sprintf("A%d", rowNum)

		row := []interface{}{i + 1, sanitizeForExcel(string(s.User)), s.Score, s.TotalCompleted, s.WinRate(), s.TotalRewards, s.LastActivity.Format(time.RFC3339)}
		if err := sw.SetRow(cell, row); err != nil {
			log.Printf("[ScoreHandler] Ошибка записи строки %d: %v", rowNum, err)
		}
	}

	if err := sw.Flush(); err != nil {
		log.Printf("[ScoreHandler] Ошибка при Flush: %v", err)
	}

	// Записываем в response
	if err := f.Write(c.Writer); err != nil {
		log.Printf("[ScoreHandler] Ошибка записи Excel в response: %v", err)
	}
}

// exportGlobalCSV экспортирует глобальную таблицу в CSV
func (h *ScoreHandler) exportGlobalCSV(c *gin.Context, scores []repository.GlobalScore, filename string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))

	// BOM для корректного отображения UTF-8 в Excel
	c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	// Заголовки
	writer.Write([]string{"Место", "Участник", "Побед", "Прохождений", "Награды"})

	// Данные
	for i := range scores {
		s := &scores[i]
		writer.Write([]string{
			strconv.Itoa(i + 1),
			sanitizeForExcel(string(s.User)),
			strconv.FormatUint(uint64(s.TotalScore), 10),
			strconv.FormatUint(uint64(s.TotalCompleted), 10),
			strconv.FormatUint(s.TotalRewards, 10),
		})
	}
}

// exportGlobalXLSX экспортирует глобальную таблицу в Excel через StreamWriter
func (h *ScoreHandler) exportGlobalXLSX(c *gin.Context, scores []repository.GlobalScore, filename string) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Таблица лидеров"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		log.Printf("[ScoreHandler] Ошибка создания StreamWriter: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	// Заголовки
	headers := []interface{}{"Место", "Участник", "Побед", "Прохождений", "Награды"}
	if err := sw.SetRow("A1", headers); err != nil {
		log.Printf("[ScoreHandler] Ошибка записи заголовков: %v", err)
	}

	// Данные
	for i := range scores {
		s := &scores[i]
		rowNum := i + 2
		cell := fmt.Sprintf("A%d", rowNum)

		row := []interface{}{i + 1, sanitizeForExcel(string(s.User)), s.TotalScore, s.TotalCompleted, s.TotalRewards}
		if err := sw.SetRow(cell, row); err != nil {
			log.Printf("[ScoreHandler] Ошибка записи строки %d: %v", rowNum, err)
		}
	}

	if err := sw.Flush(); err != nil {
		log.Printf("[ScoreHandler] Ошибка при Flush: %v", err)
	}

	if err := f.Write(c.Writer); err != nil {
		log.Printf("[ScoreHandler] Ошибка записи Excel в response: %v", err)
	}
}

// sanitizeForExcel экранирует данные для защиты от formula injection в Excel/CSV
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	// Символы, начинающие формулу в Excel/LibreOffice: = + - @ \t \r
	if s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@' || s[0] == '\t' || s[0] == '\r' {
		return "'" + s
	}
	return s
}
