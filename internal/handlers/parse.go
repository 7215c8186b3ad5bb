package handlers

import (
	"net/http"
	"strings"
)

type parseRequest struct {
	Text string `json:"text" validate:"required,max=50000"`
}

// ParseHandler - POST /api/parse, разбор текста заявки моделью
func (h *Handler) ParseHandler(w http.ResponseWriter, r *http.Request) {
	if h.parser == nil {
		http.Error(w, "Parser is not configured", http.StatusServiceUnavailable)
		return
	}
	var req parseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	res, err := h.parser.Parse(r.Context(), req.Text)
	if err != nil {
		fail(w, r, err, "Failed to parse text")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
