package mailintake

import (
	"context"
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/pkg/errors"

	"partsmarket/config"
)

type imapMailbox struct {
	c *client.Client
}

// IMAPDialer подключается к ящику по TLS и выбирает папку из конфигурации
func IMAPDialer(cfg config.MailConfig) Dialer {
	return func(ctx context.Context) (Mailbox, error) {
		c, err := client.DialTLS(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to dial IMAP server")
		}
		if err := c.Login(cfg.Username, cfg.Password); err != nil {
			_ = c.Logout()
			return nil, errors.Wrap(err, "failed to login to IMAP server")
		}
		if _, err := c.Select(cfg.Mailbox, false); err != nil {
			_ = c.Logout()
			return nil, errors.Wrapf(err, "failed to select mailbox %s", cfg.Mailbox)
		}
		return &imapMailbox{c: c}, nil
	}
}

func (m *imapMailbox) Unseen(ctx context.Context) ([]Message, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := m.c.UidSearch(criteria)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search unseen messages")
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	// PEEK, чтобы чтение тела не ставило \Seen само
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seqset, items, messages)
	}()

	var out []Message
	for msg := range messages {
		if ctx.Err() != nil {
			continue
		}
		out = append(out, convert(msg, section))
	}
	if err := <-done; err != nil {
		return nil, errors.Wrap(err, "failed to fetch messages")
	}
	return out, ctx.Err()
}

func convert(msg *imap.Message, section *imap.BodySectionName) Message {
	out := Message{UID: msg.Uid}
	if msg.Envelope != nil {
		out.Subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			out.From = msg.Envelope.From[0].Address()
		}
	}
	if r := msg.GetBody(section); r != nil {
		if b, err := io.ReadAll(r); err == nil {
			out.Body = string(b)
		}
	}
	return out
}

func (m *imapMailbox) MarkSeen(_ context.Context, uids ...uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	op := imap.FormatFlagsOp(imap.AddFlags, true)
	return m.c.UidStore(seqset, op, []interface{}{imap.SeenFlag}, nil)
}

func (m *imapMailbox) Close() error {
	return m.c.Logout()
}
