package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Hub держит активные соединения и рассылает события реестра.
// Медленный клиент не блокирует рассылку: при переполненном буфере
// соединение закрывается.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	byActor  map[string]map[*Client]bool
	register chan *Client

	unregister chan *Client
	broadcast  chan []byte
}

// NewHub создает новый хаб
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byActor:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

// Run обрабатывает регистрацию, отключение и рассылку до отмены контекста
func (h *Hub) Run(ctx context.Context) {
	log.Printf("[Hub] Запущен")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.byActor[client.ActorID] == nil {
				h.byActor[client.ActorID] = make(map[*Client]bool)
			}
			h.byActor[client.ActorID][client] = true
			h.mu.Unlock()
			log.Printf("[Hub] Клиент подключен: actor=%s conn=%s", client.ActorID, client.ConnectionID)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.mu.RLock()
			targets := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				targets = append(targets, client)
			}
			h.mu.RUnlock()

			for _, client := range targets {
				select {
				case client.send <- message:
				default:
					log.Printf("[Hub] Буфер клиента %s переполнен, отключение", client.ActorID)
					h.removeClient(client)
				}
			}

		case <-ctx.Done():
			log.Printf("[Hub] Остановлен: %v", ctx.Err())
			h.closeAll()
			h.drain()
			return
		}
	}
}

// drain не даёт клиентским горутинам заблокироваться на каналах хаба
// во время завершения процесса
func (h *Hub) drain() {
	go func() {
		for {
			select {
			case client := <-h.register:
				client.conn.Close()
			case <-h.unregister:
			case <-h.broadcast:
			}
		}
	}()
}

// BroadcastJSON рассылает событие всем подключенным клиентам
func (h *Hub) BroadcastJSON(eventType string, data interface{}) error {
	message, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return err
	}
	h.broadcast <- message
	return nil
}

// SendJSONToActor отправляет событие всем соединениям одного участника
func (h *Hub) SendJSONToActor(actorID, eventType string, data interface{}) error {
	message, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns := make([]*Client, 0, len(h.byActor[actorID]))
	for client := range h.byActor[actorID] {
		conns = append(conns, client)
	}
	h.mu.RUnlock()

	for _, client := range conns {
		select {
		case client.send <- message:
		default:
			log.Printf("[Hub] Буфер клиента %s переполнен, отключение", client.ActorID)
			h.removeClient(client)
		}
	}
	return nil
}

// ClientCount возвращает число активных соединений
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if conns, ok := h.byActor[client.ActorID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.byActor, client.ActorID)
		}
	}
	close(client.send)
	log.Printf("[Hub] Клиент отключен: actor=%s conn=%s", client.ActorID, client.ConnectionID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*Client]bool)
	h.byActor = make(map[string]map[*Client]bool)
}
