package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"partsmarket/models"
)

func (s *Storage) GetUserByToken(ctx context.Context, token string) (*models.AppUser, error) {
	u := &models.AppUser{}
	err := s.db.GetContext(ctx, u, `SELECT * FROM app_users WHERE token = $1`, token)
	if err != nil {
		return nil, notFound(err, "failed to get user by token")
	}
	return u, nil
}

// GetUsersByIDs - пользователи по списку id, ключ - id
func (s *Storage) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.AppUser, error) {
	out := make(map[uuid.UUID]models.AppUser, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}

	var users []models.AppUser
	err := s.db.SelectContext(ctx, &users, `SELECT * FROM app_users WHERE id = ANY($1::uuid[])`, pq.Array(strs))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get users")
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]models.AppUser, error) {
	users := []models.AppUser{}
	err := s.db.SelectContext(ctx, &users, `SELECT * FROM app_users ORDER BY role, name`)
	return users, errors.Wrap(err, "failed to list users")
}

func (s *Storage) CreateUser(ctx context.Context, u *models.AppUser) error {
	query := `
        INSERT INTO app_users (name, token, role, phone)
        VALUES ($1, $2, $3, $4)
        RETURNING id, status, created_at`
	err := s.db.QueryRowxContext(ctx, query, u.Name, u.Token, u.Role, u.Phone).
		Scan(&u.ID, &u.Status, &u.CreatedAt)
	if isUniqueViolation(err) {
		return errors.Wrap(ErrDuplicate, "token already in use")
	}
	return errors.Wrap(err, "failed to create user")
}
