package assembly

import (
	"sort"

	"github.com/google/uuid"

	"partsmarket/models"
)

const (
	unnamedUser = "Без имени"
	unknownUser = "Неизвестный пользователь"
)

// GroupThreads группирует сообщения пользователя me по заказу и собеседнику.
// Сообщения ожидаются в порядке выборки (непрочитанные, затем новые): первое
// сообщение ветки становится её последним сообщением. Непрочитанными
// считаются только сообщения, адресованные me.
func GroupThreads(me uuid.UUID, messages []models.ChatMessage, users map[uuid.UUID]models.AppUser) []models.ChatThread {
	type key struct {
		order int64
		peer  uuid.UUID
	}
	idx := make(map[key]int)
	var threads []models.ChatThread

	for _, msg := range messages {
		var peer uuid.UUID
		if msg.SenderID == me {
			if !msg.RecipientID.Valid {
				continue
			}
			peer = msg.RecipientID.UUID
		} else {
			peer = msg.SenderID
		}

		k := key{msg.OrderID, peer}
		i, ok := idx[k]
		if !ok {
			th := models.ChatThread{
				OrderID:        msg.OrderID,
				InterlocutorID: peer,
				LastMessage:    msg.Message,
				Time:           msg.CreatedAt,
				DisplayName:    unknownUser,
				Role:           "UNKNOWN",
			}
			if u, found := users[peer]; found {
				th.DisplayName = u.Name
				if th.DisplayName == "" {
					th.DisplayName = unnamedUser
				}
				th.Role = u.Role
			}
			threads = append(threads, th)
			i = len(threads) - 1
			idx[k] = i
		}
		if !msg.IsRead && msg.RecipientID.Valid && msg.RecipientID.UUID == me {
			threads[i].Unread++
		}
	}

	sort.SliceStable(threads, func(a, b int) bool {
		return threads[a].Time.After(threads[b].Time)
	})
	return threads
}

// Interlocutors - собеседники пользователя me в сообщениях
func Interlocutors(me uuid.UUID, messages []models.ChatMessage) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, msg := range messages {
		peer := msg.SenderID
		if peer == me {
			if !msg.RecipientID.Valid {
				continue
			}
			peer = msg.RecipientID.UUID
		}
		if !seen[peer] {
			seen[peer] = true
			out = append(out, peer)
		}
	}
	return out
}
