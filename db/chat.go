package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"partsmarket/models"
)

const chatHistoryLimit = 2000

// Сообщения между двумя пользователями в рамках заказа
const pairCond = `order_id = $1
  AND ((sender_id = $2 AND recipient_id = $3) OR (sender_id = $3 AND recipient_id = $2))`

// ListChatMessages - переписка двух пользователей по заказу
func (s *Storage) ListChatMessages(ctx context.Context, orderID int64, me, other uuid.UUID) ([]models.ChatMessage, error) {
	msgs := []models.ChatMessage{}
	err := s.db.SelectContext(ctx, &msgs,
		`SELECT * FROM chat_messages WHERE `+pairCond+` ORDER BY created_at, id`, orderID, me, other)
	return msgs, errors.Wrap(err, "failed to list chat messages")
}

// CreateChatMessage сохраняет сообщение и возвращает ветку из архива
func (s *Storage) CreateChatMessage(ctx context.Context, m *models.ChatMessage) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if m.RecipientID.Valid {
			_, err := tx.ExecContext(ctx,
				`UPDATE chat_messages SET is_archived = FALSE WHERE `+pairCond+` AND is_archived`,
				m.OrderID, m.SenderID, m.RecipientID.UUID)
			if err != nil {
				return errors.Wrap(err, "failed to unarchive chat")
			}
		}
		err := tx.QueryRowxContext(ctx, `
            INSERT INTO chat_messages
                (order_id, offer_id, sender_id, sender_role, recipient_id, recipient_name, message)
            VALUES
                ($1, $2, $3, $4, $5, $6, $7)
            RETURNING id, is_read, is_archived, created_at`,
			m.OrderID, m.OfferID, m.SenderID, m.SenderRole, m.RecipientID, m.RecipientName, m.Message).
			Scan(&m.ID, &m.IsRead, &m.IsArchived, &m.CreatedAt)
		return errors.Wrap(err, "failed to insert chat message")
	})
}

// MarkChatRead отмечает прочитанными только входящие от собеседника
func (s *Storage) MarkChatRead(ctx context.Context, orderID int64, me, other uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
        UPDATE chat_messages SET is_read = TRUE
        WHERE order_id = $1 AND sender_id = $3 AND recipient_id = $2 AND NOT is_read`,
		orderID, me, other)
	if err != nil {
		return 0, errors.Wrap(err, "failed to mark chat read")
	}
	return res.RowsAffected()
}

func (s *Storage) ArchiveChat(ctx context.Context, orderID int64, me, other uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_messages SET is_archived = TRUE WHERE `+pairCond, orderID, me, other)
	return errors.Wrap(err, "failed to archive chat")
}

func (s *Storage) DeleteChat(ctx context.Context, orderID int64, me, other uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE `+pairCond, orderID, me, other)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete chat")
	}
	return res.RowsAffected()
}

// ListChatMessagesForUser - все сообщения пользователя для списка веток
func (s *Storage) ListChatMessagesForUser(ctx context.Context, me uuid.UUID, archived bool) ([]models.ChatMessage, error) {
	msgs := []models.ChatMessage{}
	err := s.db.SelectContext(ctx, &msgs, `
        SELECT * FROM chat_messages
        WHERE (sender_id = $1 OR recipient_id = $1) AND is_archived = $2
        ORDER BY is_read, created_at DESC
        LIMIT $3`, me, archived, chatHistoryLimit)
	return msgs, errors.Wrap(err, "failed to list user messages")
}

// UnreadByOrder - непрочитанные входящие по заказам
func (s *Storage) UnreadByOrder(ctx context.Context, me uuid.UUID) (map[int64]int, error) {
	var rows []struct {
		OrderID int64 `db:"order_id"`
		N       int   `db:"n"`
	}
	err := s.db.SelectContext(ctx, &rows, `
        SELECT order_id, COUNT(*) AS n
        FROM chat_messages
        WHERE recipient_id = $1 AND NOT is_read AND NOT is_archived
        GROUP BY order_id`, me)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count unread")
	}
	out := make(map[int64]int, len(rows))
	for _, r := range rows {
		out[r.OrderID] = r.N
	}
	return out, nil
}
