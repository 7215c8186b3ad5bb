package handlers

import (
	"net/http"
	"time"

	"partsmarket/models"
)

func (h *Handler) GetRatesHandler(w http.ResponseWriter, r *http.Request) {
	rates, err := h.Store.LatestRates(r.Context())
	if err != nil {
		fail(w, r, err, "Failed to get rates")
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

// PutRatesHandler сохраняет курсы на дату (по умолчанию - сегодня)
func (h *Handler) PutRatesHandler(w http.ResponseWriter, r *http.Request) {
	var rates models.ExchangeRates
	if !h.decode(w, r, &rates) {
		return
	}
	if rates.CNYRUB.IsNegative() || rates.CNYUSD.IsNegative() || rates.DeliveryKgUSD.IsNegative() {
		http.Error(w, "rates must not be negative", http.StatusBadRequest)
		return
	}
	if rates.Date.IsZero() {
		now := h.now()
		rates.Date = now.Truncate(24 * time.Hour)
	}
	if err := h.Store.UpsertRates(r.Context(), rates); err != nil {
		fail(w, r, err, "Failed to save rates")
		return
	}
	writeJSON(w, http.StatusOK, rates)
}
