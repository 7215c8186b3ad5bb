package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"partsmarket/internal/assembly"
	"partsmarket/internal/realtime"
	"partsmarket/models"
)

const sseHeartbeat = 30 * time.Second

// peer - собеседник из пути /chat/orders/{orderId}/users/{userId}
func peer(w http.ResponseWriter, r *http.Request) (int64, uuid.UUID, bool) {
	orderID, ok := idParam(w, r, "orderId")
	if !ok {
		return 0, uuid.Nil, false
	}
	other, err := uuid.Parse(chiParam(r, "userId"))
	if err != nil {
		http.Error(w, "Invalid userId", http.StatusBadRequest)
		return 0, uuid.Nil, false
	}
	return orderID, other, true
}

// ListMessagesHandler - переписка с собеседником по заказу
func (h *Handler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	orderID, other, ok := peer(w, r)
	if !ok {
		return
	}
	user, _ := UserFrom(r.Context())
	msgs, err := h.Store.ListChatMessages(r.Context(), orderID, user.ID, other)
	if err != nil {
		fail(w, r, err, "Failed to get messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	OrderID     int64     `json:"orderId" validate:"required"`
	OfferID     *int64    `json:"offerId"`
	RecipientID uuid.UUID `json:"recipientId" validate:"required"`
	Message     string    `json:"message" validate:"required,max=4000"`
}

// SendMessageHandler - новое сообщение; ветка возвращается из архива
func (h *Handler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, _ := UserFrom(r.Context())
	if req.RecipientID == user.ID {
		http.Error(w, "Cannot message yourself", http.StatusBadRequest)
		return
	}

	recipients, err := h.Store.GetUsersByIDs(r.Context(), []uuid.UUID{req.RecipientID})
	if err != nil {
		fail(w, r, err, "Failed to send message")
		return
	}
	recipient, ok := recipients[req.RecipientID]
	if !ok {
		http.Error(w, "Recipient not found", http.StatusNotFound)
		return
	}

	msg := models.ChatMessage{
		OrderID:       req.OrderID,
		OfferID:       req.OfferID,
		SenderID:      user.ID,
		SenderRole:    user.Role,
		RecipientID:   uuid.NullUUID{UUID: recipient.ID, Valid: true},
		RecipientName: recipient.Name,
		Message:       req.Message,
	}
	if err := h.Store.CreateChatMessage(r.Context(), &msg); err != nil {
		fail(w, r, err, "Failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// MarkReadHandler отмечает прочитанными входящие от собеседника
func (h *Handler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	orderID, other, ok := peer(w, r)
	if !ok {
		return
	}
	user, _ := UserFrom(r.Context())
	n, err := h.Store.MarkChatRead(r.Context(), orderID, user.ID, other)
	if err != nil {
		fail(w, r, err, "Failed to mark messages read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) ArchiveChatHandler(w http.ResponseWriter, r *http.Request) {
	orderID, other, ok := peer(w, r)
	if !ok {
		return
	}
	user, _ := UserFrom(r.Context())
	if err := h.Store.ArchiveChat(r.Context(), orderID, user.ID, other); err != nil {
		fail(w, r, err, "Failed to archive chat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	orderID, other, ok := peer(w, r)
	if !ok {
		return
	}
	user, _ := UserFrom(r.Context())
	n, err := h.Store.DeleteChat(r.Context(), orderID, user.ID, other)
	if err != nil {
		fail(w, r, err, "Failed to delete chat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// ThreadsHandler - ветки пользователя по заказам и собеседникам
func (h *Handler) ThreadsHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	msgs, err := h.Store.ListChatMessagesForUser(r.Context(), user.ID, r.URL.Query().Get("archived") == "1")
	if err != nil {
		fail(w, r, err, "Failed to get threads")
		return
	}
	users, err := h.Store.GetUsersByIDs(r.Context(), assembly.Interlocutors(user.ID, msgs))
	if err != nil {
		fail(w, r, err, "Failed to get threads")
		return
	}
	writeJSON(w, http.StatusOK, assembly.GroupThreads(user.ID, msgs, users))
}

type unreadResponse struct {
	Total   int           `json:"total"`
	ByOrder map[int64]int `json:"byOrder"`
}

func (h *Handler) UnreadHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	byOrder, err := h.Store.UnreadByOrder(r.Context(), user.ID)
	if err != nil {
		fail(w, r, err, "Failed to count unread")
		return
	}
	res := unreadResponse{ByOrder: byOrder}
	for _, n := range byOrder {
		res.Total += n
	}
	writeJSON(w, http.StatusOK, res)
}

// StreamHandler - GET /api/chat/stream, события чата пользователя по SSE
func (h *Handler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	user, _ := UserFrom(r.Context())
	userID := user.ID.String()
	clientID := fmt.Sprintf("%s_%d", userID, time.Now().UnixNano())

	client := &realtime.Client{
		ID:     clientID,
		UserID: userID,
		Events: make(chan realtime.Event, 64),
	}
	h.hub.Register(client)
	defer h.hub.Unregister(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(w, "event: connected\ndata: {\"client_id\":%q}\n\n", clientID)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-client.Events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, ev.Data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
