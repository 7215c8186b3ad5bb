package testutils

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"partsmarket/internal/handlers"
	"partsmarket/models"
)

// WithChiURLParams подставляет параметры пути в контекст chi запроса для тестов.
func WithChiURLParams(req *http.Request, params map[string]string) *http.Request {
	chiCtx := chi.NewRouteContext()
	for k, v := range params {
		chiCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, chiCtx))
}

// AsUser выполняет запрос от имени пользователя, минуя проверку токена
func AsUser(req *http.Request, u *models.AppUser) *http.Request {
	return req.WithContext(handlers.WithUser(req.Context(), u))
}
