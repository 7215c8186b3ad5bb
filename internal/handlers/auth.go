package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"partsmarket/db"
	"partsmarket/models"
)

type userKey struct{}

// WithUser кладёт пользователя в контекст запроса
func WithUser(ctx context.Context, u *models.AppUser) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom достаёт пользователя, положенный Authenticate
func UserFrom(ctx context.Context) (*models.AppUser, bool) {
	u, ok := ctx.Value(userKey{}).(*models.AppUser)
	return u, ok && u != nil
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-Auth-Token"))
}

// Authenticate находит пользователя по токену
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "Missing token", http.StatusUnauthorized)
			return
		}
		user, err := h.Store.GetUserByToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			log.Error().Err(err).Msg("Failed to resolve token")
			http.Error(w, "Failed to authenticate", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireRole пропускает только перечисленные роли
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFrom(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

func isStaff(u *models.AppUser) bool {
	return u.Role == models.RoleAdmin || u.Role == models.RoleOperator
}

type loginRequest struct {
	Token string `json:"token" validate:"required"`
}

// LoginHandler проверяет токен и возвращает пользователя
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.Store.GetUserByToken(r.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		fail(w, r, err, "Failed to authenticate")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// MeHandler - текущий пользователь
func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	writeJSON(w, http.StatusOK, user)
}
