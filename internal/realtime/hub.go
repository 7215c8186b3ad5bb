// Package realtime доставляет события чата подключённым по SSE клиентам
package realtime

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Event - одно событие Server-Sent Events
type Event struct {
	Type string `json:"event"`
	Data string `json:"data"`
}

// Client - одно SSE-подключение пользователя
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// Hub хранит подключения. Медленный клиент событие теряет, остальных не задерживает.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	log.Debug().Str("client_id", c.ID).Str("user_id", c.UserID).Int("total", len(h.clients)).Msg("SSE client registered")
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		close(c.Events)
		delete(h.clients, clientID)
		log.Debug().Str("client_id", clientID).Int("total", len(h.clients)).Msg("SSE client unregistered")
	}
}

// SendToUser отправляет событие всем подключениям пользователя; возвращает число доставок
func (h *Hub) SendToUser(userID string, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.UserID == userID && h.send(c, ev) {
			n++
		}
	}
	return n
}

// Count - число активных подключений
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) send(c *Client, ev Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		log.Warn().Str("client_id", c.ID).Msg("SSE client buffer full, skipping event")
		return false
	}
}
