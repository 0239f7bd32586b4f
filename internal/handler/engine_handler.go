package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/cipherquiz-api/internal/service/verification"
)

// EngineHandler принимает обратные вызовы движка конфиденциальных вычислений
type EngineHandler struct {
	protocol *verification.Protocol
}

// NewEngineHandler создает новый обработчик обратных вызовов движка
func NewEngineHandler(protocol *verification.Protocol) *EngineHandler {
	return &EngineHandler{protocol: protocol}
}

// EngineCallbackRequest представляет вердикт движка по запросу сравнения.
// Attestation приходит в base64 и декодируется encoding/json автоматически.
type EngineCallbackRequest struct {
	RequestID   string `json:"request_id" binding:"required"`
	Matched     bool   `json:"matched"`
	Attestation []byte `json:"attestation" binding:"required"`
}

// HandleCallback доставляет вердикт ожидающей проверке.
// Повторная доставка того же request_id подтверждается без эффекта,
// вердикт по неизвестному запросу отклоняется.
func (h *EngineHandler) HandleCallback(c *gin.Context) {
	var req EngineCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.protocol.HandleCallback(req.RequestID, req.Matched, req.Attestation); err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted", "request_id": req.RequestID})
}
