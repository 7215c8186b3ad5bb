// Package mailintake забирает заявки клиентов из почтового ящика
package mailintake

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"partsmarket/internal/telemetry"
	"partsmarket/models"
)

// Message - непрочитанное письмо
type Message struct {
	UID     uint32
	From    string
	Subject string
	Body    string
}

// Mailbox - открытая сессия почтового ящика
type Mailbox interface {
	Unseen(ctx context.Context) ([]Message, error)
	MarkSeen(ctx context.Context, uids ...uint32) error
	Close() error
}

// Dialer открывает сессию на один проход
type Dialer func(ctx context.Context) (Mailbox, error)

// EmailSink сохраняет принятое письмо
type EmailSink interface {
	CreateIncomingEmail(ctx context.Context, e *models.IncomingEmail) error
}

// Poller - один проход по ящику: заявки сохраняются, остальное помечается прочитанным
type Poller struct {
	dial    Dialer
	sink    EmailSink
	prefix  string
	metrics *telemetry.Metrics
}

func NewPoller(dial Dialer, sink EmailSink, subjectPrefix string, m *telemetry.Metrics) *Poller {
	return &Poller{dial: dial, sink: sink, prefix: subjectPrefix, metrics: m}
}

// IsOrderRequest - тема письма начинается с префикса заявки без учёта регистра
func IsOrderRequest(subject, prefix string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(subject)), strings.ToUpper(prefix))
}

// Poll возвращает число сохранённых заявок. Письмо, которое не удалось
// сохранить, остаётся непрочитанным и будет взято в следующий раз.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	mb, err := p.dial(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to open mailbox")
	}
	defer func() {
		if err := mb.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close mailbox")
		}
	}()

	msgs, err := mb.Unseen(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list unseen messages")
	}

	var seen []uint32
	stored := 0
	for _, msg := range msgs {
		if !IsOrderRequest(msg.Subject, p.prefix) {
			seen = append(seen, msg.UID)
			continue
		}
		e := &models.IncomingEmail{
			FromAddress: msg.From,
			Subject:     msg.Subject,
			Body:        msg.Body,
			Status:      models.EmailStatusNew,
		}
		if err := p.sink.CreateIncomingEmail(ctx, e); err != nil {
			log.Error().Err(err).Uint32("uid", msg.UID).Str("subject", msg.Subject).Msg("Failed to store incoming email")
			continue
		}
		seen = append(seen, msg.UID)
		stored++
	}

	if len(seen) > 0 {
		if err := mb.MarkSeen(ctx, seen...); err != nil {
			return stored, errors.Wrap(err, "failed to flag messages as seen")
		}
	}

	p.metrics.Add(ctx, telemetry.MailIngested, int64(stored))
	log.Info().Int("unseen", len(msgs)).Int("stored", stored).Msg("Mailbox polled")
	return stored, nil
}
