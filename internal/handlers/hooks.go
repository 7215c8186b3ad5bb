package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"

	"partsmarket/internal/crm"
)

type hookResponse struct {
	Status string `json:"status,omitempty"`
	DealID string `json:"dealId,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OrderHookHandler - POST /api/hooks/orders, уведомление об изменении заказа для CRM
func (h *Handler) OrderHookHandler(w http.ResponseWriter, r *http.Request) {
	if h.crm == nil {
		writeJSON(w, http.StatusServiceUnavailable, hookResponse{Error: "CRM sync is disabled"})
		return
	}
	// без секрета вебхук не принимает ничего
	if h.webhookSecret == "" ||
		subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Webhook-Secret")), []byte(h.webhookSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, hookResponse{Error: "invalid webhook secret"})
		return
	}

	var payload crm.ChangePayload
	if !h.decode(w, r, &payload) {
		return
	}
	dealID, err := h.crm.HandleChange(r.Context(), payload)
	if err != nil {
		log.Error().Err(err).Int64("order_id", payload.Record.ID).Msg("CRM sync failed")
		writeJSON(w, http.StatusInternalServerError, hookResponse{Error: err.Error()})
		return
	}
	if dealID == "" {
		writeJSON(w, http.StatusOK, hookResponse{Status: "skipped"})
		return
	}
	writeJSON(w, http.StatusOK, hookResponse{Status: "ok", DealID: dealID})
}
