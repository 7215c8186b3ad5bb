package handlers

import (
	"net/http"

	"partsmarket/models"
)

// ListEmailsHandler - входящие заявки, по умолчанию необработанные
func (h *Handler) ListEmailsHandler(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.EmailStatusNew
	}
	emails, err := h.Store.ListIncomingEmails(r.Context(), status)
	if err != nil {
		fail(w, r, err, "Failed to list emails")
		return
	}
	writeJSON(w, http.StatusOK, emails)
}

// LockEmailHandler берёт письмо в работу; занятое другим - 423
func (h *Handler) LockEmailHandler(w http.ResponseWriter, r *http.Request) {
	emailID, ok := idParam(w, r, "emailId")
	if !ok {
		return
	}
	user, _ := UserFrom(r.Context())
	email, err := h.Store.LockIncomingEmail(r.Context(), emailID, user.ID, h.workflow.EmailLockTTL)
	if err != nil {
		fail(w, r, err, "Failed to lock email")
		return
	}
	writeJSON(w, http.StatusOK, email)
}

func (h *Handler) UnlockEmailHandler(w http.ResponseWriter, r *http.Request) {
	emailID, ok := idParam(w, r, "emailId")
	if !ok {
		return
	}
	user, _ := UserFrom(r.Context())
	if err := h.Store.UnlockIncomingEmail(r.Context(), emailID, user.ID); err != nil {
		fail(w, r, err, "Failed to unlock email")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ArchiveEmailHandler(w http.ResponseWriter, r *http.Request) {
	emailID, ok := idParam(w, r, "emailId")
	if !ok {
		return
	}
	if err := h.Store.ArchiveIncomingEmail(r.Context(), emailID); err != nil {
		fail(w, r, err, "Failed to archive email")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
