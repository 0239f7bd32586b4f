package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/yourusername/cipherquiz-api/internal/websocket"
)

// WSHandler обрабатывает WebSocket соединения
type WSHandler struct {
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
}

// NewWSHandler создает новый обработчик WebSocket.
// allowedOrigins разделяется с CORS-конфигурацией HTTP API.
func NewWSHandler(hub *websocket.Hub, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")

				// Если Origin пустой - это не браузерный клиент (мобильное
				// приложение, curl и т.д.). Разрешаем такие подключения
				if origin == "" {
					return true
				}

				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}

				log.Printf("WebSocket: rejected unauthorized origin: %s", origin)
				return false
			},
			EnableCompression: true,
		},
	}
}

// HandleConnection обрабатывает входящее WebSocket соединение.
// Участник указывает себя параметром ?actor=, подписка после апгрейда
// не требуется: хаб рассылает события реестра всем подключенным.
func (h *WSHandler) HandleConnection(c *gin.Context) {
	actorID := c.Query("actor")
	if actorID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing actor query parameter"})
		return
	}
	if len(actorID) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor is too long"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Error upgrading connection: %v", err)
		return
	}

	log.Printf("WebSocket: Connection upgraded for actor %s", actorID)

	client := websocket.NewClient(h.hub, conn, actorID)
	client.StartPumps()
}
