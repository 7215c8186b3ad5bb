package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"partsmarket/internal/cache"
	"partsmarket/internal/kpi"
	"partsmarket/internal/workflow"
	"partsmarket/models"
)

const quickBrandsWindow = 3 * 24 * time.Hour

// BuyerOrdersHandler - заказы во вкладке закупщика с его метками
func (h *Handler) BuyerOrdersHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	tab := r.URL.Query().Get("tab")
	if tab == "" {
		tab = workflow.BuyerTabNew
	}
	if !workflow.IsBuyerTab(tab) {
		http.Error(w, "Invalid tab", http.StatusBadRequest)
		return
	}

	f := filterFromQuery(r)
	f.OperatorTab = ""
	f.BuyerID = uuid.NullUUID{UUID: user.ID, Valid: true}
	f.BuyerTab = tab
	f.HotBefore = h.now().Add(-h.workflow.HotAfter)
	f.Normalize()

	orders, err := h.Store.ListOrders(r.Context(), f)
	if err != nil {
		fail(w, r, err, "Failed to list orders")
		return
	}
	orders, err = h.loadDetails(r.Context(), orders, user)
	if err != nil {
		fail(w, r, err, "Failed to list orders")
		return
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	labels, err := h.Store.ListBuyerLabels(r.Context(), user.ID, ids)
	if err != nil {
		fail(w, r, err, "Failed to list labels")
		return
	}
	byOrder := make(map[int64][]models.BuyerLabel, len(labels))
	for _, l := range labels {
		byOrder[l.OrderID] = append(byOrder[l.OrderID], l)
	}
	for i := range orders {
		orders[i].BuyerLabels = byOrder[orders[i].ID]
	}

	page := orderPage{Orders: orders}
	if len(orders) == f.Limit {
		next := f.Page + 1
		page.NextCursor = &next
	}
	writeJSON(w, http.StatusOK, page)
}

type labelRequest struct {
	OrderID int64  `json:"orderId" validate:"required"`
	Color   string `json:"color" validate:"required,max=20"`
	Text    string `json:"text" validate:"max=100"`
}

// ToggleLabelHandler: тот же цвет снимает метку, другой заменяет
func (h *Handler) ToggleLabelHandler(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, _ := UserFrom(r.Context())

	label, err := h.Store.ToggleBuyerLabel(r.Context(), models.BuyerLabel{
		UserID:  user.ID,
		OrderID: req.OrderID,
		Color:   req.Color,
		Text:    req.Text,
	})
	if err != nil {
		fail(w, r, err, "Failed to toggle label")
		return
	}
	if label == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, label)
}

// QuickBrandsHandler - частые бренды свежих заказов без моего предложения
func (h *Handler) QuickBrandsHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	brands, err := h.Store.QuickBrands(r.Context(), user.ID, h.now().Add(-quickBrandsWindow))
	if err != nil {
		fail(w, r, err, "Failed to get brands")
		return
	}
	writeJSON(w, http.StatusOK, brands)
}

// BuyerCountsHandler - счётчики вкладок закупщика
func (h *Handler) BuyerCountsHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	counts, err := h.Store.BuyerTabCounts(r.Context(), user.ID, h.now().Add(-h.workflow.HotAfter))
	if err != nil {
		fail(w, r, err, "Failed to count orders")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// DashboardHandler - KPI закупщика за текущий месяц, с кэшем в Redis
func (h *Handler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	now := h.now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	key := cache.DashboardKey(user.ID, from)

	var dash kpi.Dashboard
	err := h.cache.Get(r.Context(), key, &dash)
	if err == nil {
		writeJSON(w, http.StatusOK, dash)
		return
	}
	if !errors.Is(err, cache.ErrMiss) && !errors.Is(err, cache.ErrDisabled) {
		log.Warn().Err(err).Str("key", key).Msg("Dashboard cache read failed")
	}

	stats, err := h.Store.BuyerStats(r.Context(), from, from.AddDate(0, 1, 0))
	if err != nil {
		fail(w, r, err, "Failed to build dashboard")
		return
	}
	dash = kpi.BuildDashboard(user.ID, stats)

	if err := h.cache.Set(r.Context(), key, dash, h.dashboardTTL); err != nil && !errors.Is(err, cache.ErrDisabled) {
		log.Warn().Err(err).Str("key", key).Msg("Dashboard cache write failed")
	}
	writeJSON(w, http.StatusOK, dash)
}
