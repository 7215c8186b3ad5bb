package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Канал NOTIFY, в который пишет триггер на chat_messages
const ChatChannel = "chat_messages"

const EventChatMessage = "chat_message"

// chatRow - строка chat_messages в виде row_to_json
type chatRow struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"order_id"`
	SenderID    string  `json:"sender_id"`
	RecipientID *string `json:"recipient_id"`
}

// Route разбирает уведомление и возвращает получателей события
func Route(payload string) ([]string, error) {
	var row chatRow
	if err := json.Unmarshal([]byte(payload), &row); err != nil {
		return nil, errors.Wrap(err, "failed to decode chat notification")
	}
	users := []string{row.SenderID}
	if row.RecipientID != nil && *row.RecipientID != "" && *row.RecipientID != row.SenderID {
		users = append(users, *row.RecipientID)
	}
	return users, nil
}

// Dispatch рассылает одно уведомление отправителю и получателю
func (h *Hub) Dispatch(payload string) {
	users, err := Route(payload)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping chat notification")
		return
	}
	ev := Event{Type: EventChatMessage, Data: payload}
	for _, u := range users {
		h.SendToUser(u, ev)
	}
}

// Listen слушает LISTEN chat_messages и пересылает уведомления в hub до отмены ctx
func Listen(ctx context.Context, dsn string, hub *Hub) error {
	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Int("event", int(ev)).Msg("Chat listener connection event")
		}
	})
	defer listener.Close()

	if err := listener.Listen(ChatChannel); err != nil {
		return errors.Wrap(err, "failed to listen chat channel")
	}
	log.Info().Str("channel", ChatChannel).Msg("Listening for chat notifications")

	return Pump(ctx, listener.Notify, listener.Ping, hub)
}

// Pump читает уведомления из notify; раз в 90 секунд проверяет соединение через ping
func Pump(ctx context.Context, notify <-chan *pq.Notification, ping func() error, hub *Hub) error {
	check := time.NewTicker(90 * time.Second)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notify:
			if !ok {
				return nil
			}
			// nil приходит после переподключения
			if n == nil {
				continue
			}
			hub.Dispatch(n.Extra)
		case <-check.C:
			if ping != nil {
				if err := ping(); err != nil {
					log.Warn().Err(err).Msg("Chat listener ping failed")
				}
			}
		}
	}
}
