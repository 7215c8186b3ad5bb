package handlers

import (
	"net/http"
	"strings"

	"partsmarket/models"
)

func (h *Handler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		fail(w, r, err, "Failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Token string `json:"token" validate:"required,min=8"`
	Role  string `json:"role" validate:"required,oneof=admin operator buyer"`
	Phone string `json:"phone" validate:"max=32"`
}

// CreateUserHandler - новый пользователь с токеном доступа
func (h *Handler) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	user := models.AppUser{
		Name:  strings.TrimSpace(req.Name),
		Token: strings.TrimSpace(req.Token),
		Role:  req.Role,
		Phone: req.Phone,
	}
	if err := h.Store.CreateUser(r.Context(), &user); err != nil {
		fail(w, r, err, "Failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}
