package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"partsmarket/internal/quote"
	"partsmarket/internal/workflow"
	"partsmarket/models"
)

type offerRequest struct {
	SupplierName  string       `json:"supplierName" validate:"max=200"`
	SupplierPhone string       `json:"supplierPhone" validate:"max=32"`
	Status        string       `json:"status" validate:"max=50"`
	Items         []quote.Line `json:"items" validate:"required,min=1,dive"`
}

// CreateOfferHandler - POST /api/orders/{orderId}/offers
func (h *Handler) CreateOfferHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(w, r, "orderId")
	if !ok {
		return
	}
	var req offerRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, _ := UserFrom(r.Context())

	weeksAdd, err := h.Store.LatestDeliveryWeeksAdd(r.Context())
	if err != nil {
		fail(w, r, err, "Failed to create offer")
		return
	}
	lines, err := quote.BuildLines(req.Items, weeksAdd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	offer := models.Offer{
		OrderID:       orderID,
		SupplierName:  strings.TrimSpace(req.SupplierName),
		SupplierPhone: req.SupplierPhone,
		CreatedBy:     uuid.NullUUID{UUID: user.ID, Valid: true},
		Status:        req.Status,
		Items:         lines,
	}
	if offer.SupplierName == "" {
		offer.SupplierName = user.Name
	}
	for i := range offer.Items {
		offer.Items[i].ID = 0
	}

	err = h.withOrderLease(r.Context(), orderID, func() error {
		order, err := h.Store.GetOrder(r.Context(), orderID)
		if err != nil {
			return err
		}
		ch, err := workflow.Apply(workflow.Command{Event: workflow.EventOfferReceived, Actor: user.ID.String()}, workflow.RawOf(*order))
		if err != nil {
			return err
		}
		_, err = h.Store.CreateOffer(r.Context(), &offer, order.Version, ch)
		return err
	})
	if err != nil {
		fail(w, r, err, "Failed to create offer")
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

// UpdateOfferHandler - правка своего предложения; менеджер может править любое
func (h *Handler) UpdateOfferHandler(w http.ResponseWriter, r *http.Request) {
	offerID, ok := idParam(w, r, "offerId")
	if !ok {
		return
	}
	var req offerRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, _ := UserFrom(r.Context())

	offer, err := h.Store.GetOffer(r.Context(), offerID)
	if err != nil {
		fail(w, r, err, "Failed to get offer")
		return
	}
	if !isStaff(user) && (!offer.CreatedBy.Valid || offer.CreatedBy.UUID != user.ID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	weeksAdd, err := h.Store.LatestDeliveryWeeksAdd(r.Context())
	if err != nil {
		fail(w, r, err, "Failed to update offer")
		return
	}
	lines, err := quote.BuildLines(req.Items, weeksAdd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	offer.SupplierPhone = req.SupplierPhone
	if req.Status != "" {
		offer.Status = req.Status
	}
	offer.Items = lines
	offer.LockedAt = nil

	err = h.withOrderLease(r.Context(), offer.OrderID, func() error {
		return h.Store.UpdateOffer(r.Context(), offer)
	})
	if err != nil {
		fail(w, r, err, "Failed to update offer")
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// UpdateOfferItemHandler - цена, комментарий, валюта, срок и артикул строки
func (h *Handler) UpdateOfferItemHandler(w http.ResponseWriter, r *http.Request) {
	itemID, ok := idParam(w, r, "itemId")
	if !ok {
		return
	}
	var upd models.OfferItemUpdate
	if !h.decode(w, r, &upd) {
		return
	}
	if upd.Currency != nil {
		c, err := quote.NormalizeCurrency(*upd.Currency)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		upd.Currency = &c
	}
	if err := h.Store.UpdateOfferItem(r.Context(), itemID, upd); err != nil {
		fail(w, r, err, "Failed to update offer item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type winnersRequest struct {
	Winners []models.Winner `json:"winners" validate:"required,min=1,dive"`
	Version int             `json:"version"`
}

// ApproveWinnersHandler фиксирует победителей и переводит заказ в «КП готово»
func (h *Handler) ApproveWinnersHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(w, r, "orderId")
	if !ok {
		return
	}
	var req winnersRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, _ := UserFrom(r.Context())

	var updated *models.Order
	err := h.withOrderLease(r.Context(), orderID, func() error {
		order, err := h.Store.GetOrder(r.Context(), orderID)
		if err != nil {
			return err
		}
		version := order.Version
		if req.Version != 0 {
			version = req.Version
		}
		ch, err := workflow.Apply(workflow.Command{Event: workflow.EventQuoteReady, Actor: user.ID.String()}, workflow.RawOf(*order))
		if err != nil {
			return err
		}
		updated, err = h.Store.ApproveWinners(r.Context(), orderID, req.Winners, version, ch)
		return err
	})
	if err != nil {
		fail(w, r, err, "Failed to approve winners")
		return
	}
	workflow.Derived(updated)
	writeJSON(w, http.StatusOK, updated)
}

// ResetWinnerHandler снимает отметку победителя
func (h *Handler) ResetWinnerHandler(w http.ResponseWriter, r *http.Request) {
	itemID, ok := idParam(w, r, "itemId")
	if !ok {
		return
	}
	if err := h.Store.ResetWinner(r.Context(), itemID); err != nil {
		fail(w, r, err, "Failed to reset winner")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
