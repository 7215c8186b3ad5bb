package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"partsmarket/db"
	"partsmarket/internal/assembly"
	"partsmarket/internal/workflow"
	"partsmarket/models"
)

// orderDetails - заказ с доступными событиями workflow
type orderDetails struct {
	models.Order
	AllowedEvents []string `json:"allowedEvents"`
}

type orderPage struct {
	Orders     []models.Order `json:"orders"`
	NextCursor *int           `json:"next_cursor"`
}

// CreateOrderHandler обрабатывает POST /api/orders и POST /api/client/orders
func (h *Handler) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var order models.Order
	if !h.decode(w, r, &order) {
		return
	}
	if len(order.Items) == 0 {
		http.Error(w, "At least one item is required", http.StatusBadRequest)
		return
	}

	// Статусы и служебные поля задаются только сервером
	order.ID = 0
	order.StatusAdmin, order.StatusClient, order.StatusSupplier = "", "", ""
	order.VisibleToClient = false
	order.IsArchived = false
	order.BitrixDealID = ""
	order.Offers = nil
	order.OwnerID = uuid.NullUUID{}
	if user, ok := UserFrom(r.Context()); ok && isStaff(user) {
		order.OwnerID = uuid.NullUUID{UUID: user.ID, Valid: true}
	}

	if err := h.Store.CreateOrder(r.Context(), &order); err != nil {
		fail(w, r, err, "Failed to create order")
		return
	}
	workflow.Derived(&order)
	writeJSON(w, http.StatusCreated, order)
}

// loadDetails подгружает позиции и предложения. Закупщик видит только свои предложения.
func (h *Handler) loadDetails(ctx context.Context, orders []models.Order, viewer *models.AppUser) ([]models.Order, error) {
	if len(orders) == 0 {
		return orders, nil
	}
	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	items, err := h.Store.GetItemsByOrders(ctx, ids)
	if err != nil {
		return nil, err
	}
	assembly.ItemsByOrder(orders, items)

	offers, err := h.Store.ListOffersByOrders(ctx, ids)
	if err != nil {
		return nil, err
	}
	if viewer != nil && viewer.Role == models.RoleBuyer {
		own := offers[:0]
		for _, of := range offers {
			if of.CreatedBy.Valid && of.CreatedBy.UUID == viewer.ID {
				own = append(own, of)
			}
		}
		offers = own
	}
	return assembly.Attach(ctx, orders, offers, h.metrics).Orders, nil
}

// GetOrderHandler возвращает заказ с позициями и предложениями
func (h *Handler) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(w, r, "orderId")
	if !ok {
		return
	}
	user, _ := UserFrom(r.Context())

	order, err := h.Store.GetOrder(r.Context(), orderID)
	if err != nil {
		fail(w, r, err, "Failed to get order")
		return
	}
	orders, err := h.loadDetails(r.Context(), []models.Order{*order}, user)
	if err != nil {
		fail(w, r, err, "Failed to get order details")
		return
	}

	res := orderDetails{Order: orders[0], AllowedEvents: []string{}}
	if user != nil && isStaff(user) {
		if allowed := workflow.Allowed(workflow.RawOf(res.Order)); allowed != nil {
			res.AllowedEvents = allowed
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// filterFromQuery разбирает параметры списка заказов
func filterFromQuery(r *http.Request) db.OrderFilter {
	q := r.URL.Query()
	f := db.OrderFilter{
		Search:          q.Get("q"),
		Statuses:        splitCSV(q.Get("status")),
		Phone:           strings.TrimSpace(q.Get("phone")),
		Brands:          splitCSV(q.Get("brands")),
		OperatorTab:     q.Get("tab"),
		Sort:            q.Get("sort"),
		Desc:            strings.EqualFold(q.Get("order"), "desc"),
		IncludeArchived: q.Get("archived") == "1",
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	if statuses, ok := workflow.AdminTabStatuses(q.Get("admin_tab")); ok {
		f.Statuses = statuses
	}
	return f
}

// ListOrdersHandler - GET /api/orders с фильтрами, сортировкой и страницами
func (h *Handler) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	f := filterFromQuery(r)
	if r.URL.Query().Get("owner") == "me" {
		f.OwnerID = uuid.NullUUID{UUID: user.ID, Valid: true}
	}
	h.listOrders(w, r, f, user)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, f db.OrderFilter, user *models.AppUser) {
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

	now := h.now()
	for i := range orders {
		o := &orders[i]
		o.DisplayStatus = workflow.DisplayStatus(workflow.View{
			StatusAdmin: o.StatusAdmin,
			CreatedAt:   o.CreatedAt,
			OfferCount:  o.OfferCount,
			OwnerView:   o.OwnerID.Valid && o.OwnerID.UUID == user.ID,
		}, now, h.workflow.HotAfter)
	}

	page := orderPage{Orders: orders}
	if len(orders) == f.Limit {
		next := f.Page + 1
		page.NextCursor = &next
	}
	writeJSON(w, http.StatusOK, page)
}

// ClientOrdersHandler - заказы клиента по телефону, обработанные первыми
func (h *Handler) ClientOrdersHandler(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		http.Error(w, "Missing phone parameter", http.StatusBadRequest)
		return
	}

	orders, err := h.Store.ListClientOrders(r.Context(), phone)
	if err != nil {
		fail(w, r, err, "Failed to get client orders")
		return
	}
	orders, err = h.loadDetails(r.Context(), orders, nil)
	if err != nil {
		fail(w, r, err, "Failed to get client orders")
		return
	}

	// Клиент видит только предложения обработанных заказов
	for i := range orders {
		visible := orders[i].Offers[:0]
		for _, of := range orders[i].Offers {
			if of.VisibleToClient {
				of.SupplierPhone = ""
				visible = append(visible, of)
			}
		}
		orders[i].Offers = visible
	}
	assembly.SortForClient(orders)
	writeJSON(w, http.StatusOK, orders)
}

type clientDecisionRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Decision string `json:"decision" validate:"required,oneof=ready refuse"`
	Reason   string `json:"reason"`
	Version  int    `json:"version"`
}

// ClientDecisionHandler - клиент принимает КП или отказывается
func (h *Handler) ClientDecisionHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(w, r, "orderId")
	if !ok {
		return
	}
	var req clientDecisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	cmd := workflow.Command{Event: workflow.EventClientReady, Actor: "client:" + req.Phone}
	if req.Decision == "refuse" {
		cmd.Event = workflow.EventRefuse
		cmd.Reason = req.Reason
	}
	h.applyEvent(w, r, orderID, req.Version, cmd, func(o *models.Order) bool {
		return o.ClientPhone == strings.TrimSpace(req.Phone) && o.VisibleToClient
	})
}

type eventRequest struct {
	Event   string `json:"event" validate:"required"`
	Reason  string `json:"reason"`
	Version int    `json:"version"`
}

// ApplyEventHandler - POST /api/orders/{orderId}/events
func (h *Handler) ApplyEventHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(w, r, "orderId")
	if !ok {
		return
	}
	var req eventRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, _ := UserFrom(r.Context())

	event := req.Event
	if event == workflow.EventRefuse || event == workflow.EventAnnul {
		event = workflow.RefusalEvent(user.Role)
	}
	cmd := workflow.Command{Event: event, Actor: user.ID.String(), Reason: req.Reason}
	h.applyEvent(w, r, orderID, req.Version, cmd, nil)
}

// applyEvent под арендой заказа проверяет переход и пишет новые статусы.
// version 0 - без проверки версии со стороны клиента.
func (h *Handler) applyEvent(w http.ResponseWriter, r *http.Request, orderID int64, version int, cmd workflow.Command, allow func(*models.Order) bool) {
	var updated *models.Order
	err := h.withOrderLease(r.Context(), orderID, func() error {
		order, err := h.Store.GetOrder(r.Context(), orderID)
		if err != nil {
			return err
		}
		if allow != nil && !allow(order) {
			return db.ErrNotFound
		}
		if version != 0 && version != order.Version {
			return db.ErrVersionConflict
		}
		ch, err := workflow.Apply(cmd, workflow.RawOf(*order))
		if err != nil {
			return err
		}
		updated, err = h.Store.ApplyStatusChange(r.Context(), orderID, order.Version, ch)
		return err
	})
	if err != nil {
		fail(w, r, err, "Failed to change order status")
		return
	}
	workflow.Derived(updated)
	writeJSON(w, http.StatusOK, updated)
}

// StatusHistoryHandler - история статусов заказа
func (h *Handler) StatusHistoryHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(w, r, "orderId")
	if !ok {
		return
	}
	history, err := h.Store.GetStatusHistory(r.Context(), orderID)
	if err != nil {
		fail(w, r, err, "Failed to get status history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// UpdateOrderMetadataHandler - контакты клиента и адрес
func (h *Handler) UpdateOrderMetadataHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(w, r, "orderId")
	if !ok {
		return
	}
	var meta models.OrderMetadata
	if !h.decode(w, r, &meta) {
		return
	}
	err := h.withOrderLease(r.Context(), orderID, func() error {
		return h.Store.UpdateOrderMetadata(r.Context(), orderID, meta)
	})
	if err != nil {
		fail(w, r, err, "Failed to update order")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateOrderItemHandler - правка позиции заказа
func (h *Handler) UpdateOrderItemHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(w, r, "orderId")
	if !ok {
		return
	}
	itemID, ok := idParam(w, r, "itemId")
	if !ok {
		return
	}
	var item models.OrderItem
	if !h.decode(w, r, &item) {
		return
	}
	item.ID, item.OrderID = itemID, orderID
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	if item.UOM == "" {
		item.UOM = "шт"
	}

	err := h.withOrderLease(r.Context(), orderID, func() error {
		return h.Store.UpdateOrderItem(r.Context(), &item)
	})
	if err != nil {
		fail(w, r, err, "Failed to update order item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type itemPriceRequest struct {
	Price decimal.NullDecimal `json:"price"`
}

// SetItemPriceHandler - ручная цена позиции; null снимает её
func (h *Handler) SetItemPriceHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(w, r, "orderId")
	if !ok {
		return
	}
	itemID, ok := idParam(w, r, "itemId")
	if !ok {
		return
	}
	var req itemPriceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Price.Valid && req.Price.Decimal.IsNegative() {
		http.Error(w, "price must not be negative", http.StatusBadRequest)
		return
	}

	err := h.withOrderLease(r.Context(), orderID, func() error {
		return h.Store.SetItemAdminPrice(r.Context(), orderID, itemID, req.Price)
	})
	if err != nil {
		fail(w, r, err, "Failed to set item price")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OrderCountsHandler - счётчики вкладок оператора и администратора
func (h *Handler) OrderCountsHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	var owner uuid.NullUUID
	if r.URL.Query().Get("owner") == "me" {
		owner = uuid.NullUUID{UUID: user.ID, Valid: true}
	}
	rows, err := h.Store.StatusRows(r.Context(), owner)
	if err != nil {
		fail(w, r, err, "Failed to count orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]map[string]int{
		"operator": workflow.OperatorCounts(rows),
		"admin":    workflow.AdminTabCounts(rows),
	})
}

// ResetOrdersHandler - удаление всех заказов (администратор)
func (h *Handler) ResetOrdersHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "yes" {
		http.Error(w, "Missing confirm=yes", http.StatusBadRequest)
		return
	}
	n, err := h.Store.DeleteAllOrders(r.Context())
	if err != nil {
		fail(w, r, err, "Failed to reset orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
