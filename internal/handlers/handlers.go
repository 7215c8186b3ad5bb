package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"partsmarket/config"
	"partsmarket/db"
	"partsmarket/internal/cache"
	"partsmarket/internal/crm"
	"partsmarket/internal/lease"
	"partsmarket/internal/realtime"
	"partsmarket/internal/telemetry"
	"partsmarket/internal/textparse"
	"partsmarket/internal/workflow"
)

const maxBodySize = 1048576

// Parser - разбор текста заявки
type Parser interface {
	Parse(ctx context.Context, text string) (*textparse.Result, error)
}

// ChangeHandler - обработка уведомлений об изменении заказов для CRM
type ChangeHandler interface {
	HandleChange(ctx context.Context, p crm.ChangePayload) (string, error)
}

// Handler оборачивает Storage и вспомогательные сервисы
type Handler struct {
	Store StorageInterface

	leases        lease.Locker
	cache         *cache.RedisCache
	hub           *realtime.Hub
	parser        Parser
	crm           ChangeHandler
	webhookSecret string
	metrics       *telemetry.Metrics
	validate      *validator.Validate
	workflow      config.WorkflowConfig
	dashboardTTL  time.Duration
	now           func() time.Time
}

type Option func(*Handler)

func WithLeases(l lease.Locker) Option { return func(h *Handler) { h.leases = l } }

func WithCache(c *cache.RedisCache) Option { return func(h *Handler) { h.cache = c } }

func WithHub(hub *realtime.Hub) Option { return func(h *Handler) { h.hub = hub } }

func WithParser(p Parser) Option { return func(h *Handler) { h.parser = p } }

// WithCRM подключает выгрузку в CRM; secret сверяется с заголовком X-Webhook-Secret
func WithCRM(c ChangeHandler, secret string) Option {
	return func(h *Handler) {
		h.crm = c
		h.webhookSecret = secret
	}
}

func WithMetrics(m *telemetry.Metrics) Option { return func(h *Handler) { h.metrics = m } }

func WithWorkflow(cfg config.WorkflowConfig) Option { return func(h *Handler) { h.workflow = cfg } }

func WithDashboardTTL(ttl time.Duration) Option { return func(h *Handler) { h.dashboardTTL = ttl } }

func WithClock(now func() time.Time) Option { return func(h *Handler) { h.now = now } }

// NewHandler создает новый Handler
func NewHandler(store StorageInterface, opts ...Option) *Handler {
	h := &Handler{
		Store:    store,
		leases:   lease.NewMemory(),
		hub:      realtime.NewHub(),
		metrics:  telemetry.Global(),
		validate: validator.New(),
		workflow: config.WorkflowConfig{
			HotAfter:      72 * time.Hour,
			MutationLease: 5 * time.Second,
			EmailLockTTL:  15 * time.Minute,
		},
		dashboardTTL: time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("Database ping failed")
		http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// decode читает JSON-тело и проверяет теги validate
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	// Ограничение размера тела, чтобы избежать DoS
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

// fail переводит ошибку хранилища или workflow в HTTP-ответ
func fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, db.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, db.ErrOfferExists), errors.Is(err, db.ErrVersionConflict), errors.Is(err, db.ErrDuplicate):
		code = http.StatusConflict
	case errors.Is(err, workflow.ErrTransition), errors.Is(err, workflow.ErrReasonRequired),
		errors.Is(err, workflow.ErrUnknownEvent), errors.Is(err, db.ErrInvalidWinner):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, lease.ErrHeld), errors.Is(err, db.ErrLocked):
		code = http.StatusLocked
	}

	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
		http.Error(w, msg, code)
		return
	}
	log.Debug().Err(err).Str("path", r.URL.Path).Int("status", code).Msg(msg)
	http.Error(w, err.Error(), code)
}

// idParam достаёт положительный числовой параметр пути
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// withOrderLease выполняет fn, пока держит аренду на заказ
func (h *Handler) withOrderLease(ctx context.Context, orderID int64, fn func() error) error {
	release, err := h.leases.Acquire(ctx, fmt.Sprintf("order:%d", orderID), h.workflow.MutationLease)
	if err != nil {
		if errors.Is(err, lease.ErrHeld) {
			h.metrics.Add(ctx, telemetry.LeaseContention, 1, "entity", "order")
		}
		return err
	}
	defer release()
	return fn()
}

func chiParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
