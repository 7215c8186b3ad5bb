package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"partsmarket/models"
)

func (s *Storage) CreateIncomingEmail(ctx context.Context, e *models.IncomingEmail) error {
	if e.Status == "" {
		e.Status = models.EmailStatusNew
	}
	err := s.db.QueryRowxContext(ctx, `
        INSERT INTO incoming_emails (from_address, subject, body, status)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`,
		e.FromAddress, e.Subject, e.Body, e.Status).Scan(&e.ID, &e.CreatedAt)
	return errors.Wrap(err, "failed to save incoming email")
}

// ListIncomingEmails - письма в статусе status, старые первыми
func (s *Storage) ListIncomingEmails(ctx context.Context, status string) ([]models.IncomingEmail, error) {
	emails := []models.IncomingEmail{}
	err := s.db.SelectContext(ctx, &emails, `
        SELECT * FROM incoming_emails
        WHERE status = $1
        ORDER BY created_at, id`, status)
	return emails, errors.Wrap(err, "failed to list emails")
}

// LockIncomingEmail берёт письмо в работу: свободное, уже своё или с
// блокировкой старше ttl. Иначе ErrLocked.
func (s *Storage) LockIncomingEmail(ctx context.Context, id int64, user uuid.UUID, ttl time.Duration) (*models.IncomingEmail, error) {
	now := time.Now().UTC()
	e := &models.IncomingEmail{}
	err := s.db.GetContext(ctx, e, `
        UPDATE incoming_emails
        SET locked_by = $1, locked_at = $2
        WHERE id = $3
          AND (locked_by IS NULL OR locked_by = $1 OR locked_at < $4)
        RETURNING *`,
		user, now, id, now.Add(-ttl))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "failed to lock email")
	}
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM incoming_emails WHERE id = $1)`, id); err != nil {
		return nil, errors.Wrap(err, "failed to check email")
	}
	if exists {
		return nil, ErrLocked
	}
	return nil, ErrNotFound
}

// UnlockIncomingEmail снимает свою блокировку
func (s *Storage) UnlockIncomingEmail(ctx context.Context, id int64, user uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE incoming_emails SET locked_by = NULL, locked_at = NULL
        WHERE id = $1 AND (locked_by = $2 OR locked_by IS NULL)`, id, user)
	return affected(res, err, "failed to unlock email")
}

// ArchiveIncomingEmail переводит письмо в обработанные
func (s *Storage) ArchiveIncomingEmail(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE incoming_emails
        SET status = $1, locked_by = NULL, locked_at = NULL
        WHERE id = $2`, models.EmailStatusProcessed, id)
	return affected(res, err, "failed to archive email")
}
