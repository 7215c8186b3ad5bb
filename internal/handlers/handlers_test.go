package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partsmarket/db"
	"partsmarket/internal/crm"
	"partsmarket/internal/handlers"
	"partsmarket/internal/handlers/testutils"
	"partsmarket/internal/lease"
	"partsmarket/internal/textparse"
	"partsmarket/internal/workflow"
	"partsmarket/models"
)

// MockStorage реализует StorageInterface; незаданные методы паникуют
type MockStorage struct {
	handlers.StorageInterface

	users  map[string]*models.AppUser
	order  *models.Order
	offers []models.Offer
	items  []models.OrderItem

	createOfferErr   error
	lastChange       models.StatusChange
	lastVersion      int
	createdOffer     *models.Offer
	createdOrder     *models.Order
	ListOrdersFunc   func(ctx context.Context, f db.OrderFilter) ([]models.Order, error)
	ClientOrders     []models.Order
	ApproveErr       error
	LockEmailErr     error
	Stats            []models.BuyerStat
	ToggleResult     *models.BuyerLabel
	GetUsersByIDsMap map[uuid.UUID]models.AppUser
	priceOrderID     int64
}

func (m *MockStorage) Ping(ctx context.Context) error { return nil }

func (m *MockStorage) GetUserByToken(ctx context.Context, token string) (*models.AppUser, error) {
	if u, ok := m.users[token]; ok {
		return u, nil
	}
	return nil, db.ErrNotFound
}

func (m *MockStorage) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.AppUser, error) {
	out := map[uuid.UUID]models.AppUser{}
	for _, id := range ids {
		if u, ok := m.GetUsersByIDsMap[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (m *MockStorage) CreateOrder(ctx context.Context, o *models.Order) error {
	o.ID = 100
	o.StatusAdmin = workflow.StatusInProcessing
	o.StatusClient = workflow.StatusInProcessing
	o.Version = 1
	m.createdOrder = o
	return nil
}

func (m *MockStorage) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	if m.order == nil || m.order.ID != id {
		return nil, db.ErrNotFound
	}
	o := *m.order
	return &o, nil
}

func (m *MockStorage) GetItemsByOrders(ctx context.Context, ids []int64) ([]models.OrderItem, error) {
	return m.items, nil
}

func (m *MockStorage) ListOffersByOrders(ctx context.Context, ids []int64) ([]models.Offer, error) {
	return append([]models.Offer(nil), m.offers...), nil
}

func (m *MockStorage) ListOrders(ctx context.Context, f db.OrderFilter) ([]models.Order, error) {
	if m.ListOrdersFunc != nil {
		return m.ListOrdersFunc(ctx, f)
	}
	return []models.Order{}, nil
}

func (m *MockStorage) ListClientOrders(ctx context.Context, phone string) ([]models.Order, error) {
	return m.ClientOrders, nil
}

func (m *MockStorage) ApplyStatusChange(ctx context.Context, orderID int64, version int, ch models.StatusChange) (*models.Order, error) {
	m.lastChange, m.lastVersion = ch, version
	o := *m.order
	o.StatusAdmin, o.StatusClient, o.StatusSupplier = ch.Admin, ch.Client, ch.Supplier
	o.Version = version + 1
	return &o, nil
}

// SetItemAdminPrice меняет цену только у позиции указанного заказа
func (m *MockStorage) SetItemAdminPrice(ctx context.Context, orderID, itemID int64, price decimal.NullDecimal) error {
	m.priceOrderID = orderID
	for i := range m.items {
		if m.items[i].ID == itemID && m.items[i].OrderID == orderID {
			m.items[i].AdminPrice = price
			m.items[i].IsManualPrice = price.Valid
			return nil
		}
	}
	return db.ErrNotFound
}

func (m *MockStorage) LatestDeliveryWeeksAdd(ctx context.Context) (int, error) { return 2, nil }

func (m *MockStorage) CreateOffer(ctx context.Context, offer *models.Offer, version int, ch models.StatusChange) (*models.Order, error) {
	if m.createOfferErr != nil {
		return nil, m.createOfferErr
	}
	m.lastChange, m.lastVersion = ch, version
	offer.ID = 55
	m.createdOffer = offer
	return m.order, nil
}

func (m *MockStorage) ApproveWinners(ctx context.Context, orderID int64, winners []models.Winner, version int, ch models.StatusChange) (*models.Order, error) {
	if m.ApproveErr != nil {
		return nil, m.ApproveErr
	}
	return m.ApplyStatusChange(ctx, orderID, version, ch)
}

func (m *MockStorage) LockIncomingEmail(ctx context.Context, id int64, user uuid.UUID, ttl time.Duration) (*models.IncomingEmail, error) {
	if m.LockEmailErr != nil {
		return nil, m.LockEmailErr
	}
	return &models.IncomingEmail{ID: id, LockedBy: uuid.NullUUID{UUID: user, Valid: true}}, nil
}

func (m *MockStorage) BuyerStats(ctx context.Context, from, to time.Time) ([]models.BuyerStat, error) {
	return m.Stats, nil
}

func (m *MockStorage) ToggleBuyerLabel(ctx context.Context, l models.BuyerLabel) (*models.BuyerLabel, error) {
	return m.ToggleResult, nil
}

func (m *MockStorage) CreateChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	msg.ID = 1
	return nil
}

var (
	admin    = &models.AppUser{ID: uuid.New(), Name: "Админ", Role: models.RoleAdmin}
	operator = &models.AppUser{ID: uuid.New(), Name: "Оператор", Role: models.RoleOperator}
	buyer    = &models.AppUser{ID: uuid.New(), Name: "Закупщик", Role: models.RoleBuyer}
)

func openOrder() *models.Order {
	return &models.Order{
		ID:           7,
		ClientName:   "Иван",
		ClientPhone:  "+79990000000",
		StatusAdmin:  workflow.StatusInProcessing,
		StatusClient: workflow.StatusInProcessing,
		Version:      3,
		CreatedAt:    time.Now().Add(-time.Hour),
	}
}

func do(t *testing.T, h http.HandlerFunc, req *http.Request) (*http.Response, string) {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, req)
	res := w.Result()
	t.Cleanup(func() { res.Body.Close() })
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func TestPingHandler(t *testing.T) {
	handler := handlers.NewHandler(&MockStorage{})

	res, body := do(t, handler.PingHandler, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "ok", body)
}

func TestCreateOrderHandler(t *testing.T) {
	t.Run("staff owns the order", func(t *testing.T) {
		mockStore := &MockStorage{}
		handler := handlers.NewHandler(mockStore)

		reqBody := `{
            "clientName": "Иван",
            "clientPhone": "+79990000000",
            "statusAdmin": "Выполнен",
            "visibleToClient": true,
            "items": [{"name": "Фильтр масляный", "brand": "Toyota", "quantity": 2}]
        }`
		req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(reqBody))
		req = testutils.AsUser(req, operator)

		res, body := do(t, handler.CreateOrderHandler, req)
		require.Equal(t, http.StatusCreated, res.StatusCode, body)
		require.Contains(t, body, "Фильтр масляный")

		require.NotNil(t, mockStore.createdOrder)
		assert.Equal(t, workflow.StatusInProcessing, mockStore.createdOrder.StatusAdmin)
		assert.False(t, mockStore.createdOrder.VisibleToClient)
		assert.True(t, mockStore.createdOrder.OwnerID.Valid)
		assert.Equal(t, operator.ID, mockStore.createdOrder.OwnerID.UUID)
	})

	t.Run("client order has no owner", func(t *testing.T) {
		mockStore := &MockStorage{}
		handler := handlers.NewHandler(mockStore)

		req := httptest.NewRequest(http.MethodPost, "/api/client/orders",
			strings.NewReader(`{"clientName": "Иван", "items": [{"name": "Колодки"}]}`))

		res, _ := do(t, handler.CreateOrderHandler, req)
		require.Equal(t, http.StatusCreated, res.StatusCode)
		assert.False(t, mockStore.createdOrder.OwnerID.Valid)
	})

	t.Run("items are required", func(t *testing.T) {
		handler := handlers.NewHandler(&MockStorage{})
		req := httptest.NewRequest(http.MethodPost, "/api/client/orders", strings.NewReader(`{"clientName": "Иван"}`))

		res, _ := do(t, handler.CreateOrderHandler, req)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("client name is validated", func(t *testing.T) {
		handler := handlers.NewHandler(&MockStorage{})
		req := httptest.NewRequest(http.MethodPost, "/api/client/orders", strings.NewReader(`{"items": [{"name": "Колодки"}]}`))

		res, body := do(t, handler.CreateOrderHandler, req)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
		require.Contains(t, body, "ClientName")
	})
}

func offerRequest(orderID string) *http.Request {
	reqBody := `{"items": [{"orderItemId": 1, "name": "Фильтр", "price": 120.5, "deliveryDays": 10}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/orders/"+orderID+"/offers", strings.NewReader(reqBody))
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": orderID})
	return testutils.AsUser(req, buyer)
}

func TestCreateOfferHandler(t *testing.T) {
	t.Run("offer moves supplier status to trading", func(t *testing.T) {
		mockStore := &MockStorage{order: openOrder()}
		handler := handlers.NewHandler(mockStore)

		res, body := do(t, handler.CreateOfferHandler, offerRequest("7"))
		require.Equal(t, http.StatusCreated, res.StatusCode, body)

		require.NotNil(t, mockStore.createdOffer)
		assert.Equal(t, buyer.Name, mockStore.createdOffer.SupplierName)
		assert.Equal(t, buyer.ID, mockStore.createdOffer.CreatedBy.UUID)
		require.Len(t, mockStore.createdOffer.Items, 1)
		assert.Equal(t, 14, mockStore.createdOffer.Items[0].DeliveryDays)
		require.NotNil(t, mockStore.createdOffer.Items[0].ClientDeliveryWeeks)
		assert.Equal(t, 4, *mockStore.createdOffer.Items[0].ClientDeliveryWeeks)

		assert.Equal(t, workflow.EventOfferReceived, mockStore.lastChange.Event)
		assert.Equal(t, workflow.RawTrading, mockStore.lastChange.Supplier)
		assert.Equal(t, 3, mockStore.lastVersion)
	})

	t.Run("second offer conflicts", func(t *testing.T) {
		mockStore := &MockStorage{order: openOrder(), createOfferErr: db.ErrOfferExists}
		handler := handlers.NewHandler(mockStore)

		res, _ := do(t, handler.CreateOfferHandler, offerRequest("7"))
		require.Equal(t, http.StatusConflict, res.StatusCode)
	})

	t.Run("terminal order rejects offers", func(t *testing.T) {
		order := openOrder()
		order.StatusAdmin = workflow.StatusAnnulled
		handler := handlers.NewHandler(&MockStorage{order: order})

		res, _ := do(t, handler.CreateOfferHandler, offerRequest("7"))
		require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	})

	t.Run("held lease", func(t *testing.T) {
		locker := lease.NewMemory()
		release, err := locker.Acquire(context.Background(), "order:7", time.Minute)
		require.NoError(t, err)
		defer release()

		handler := handlers.NewHandler(&MockStorage{order: openOrder()}, handlers.WithLeases(locker))

		res, _ := do(t, handler.CreateOfferHandler, offerRequest("7"))
		require.Equal(t, http.StatusLocked, res.StatusCode)
	})

	t.Run("unknown order", func(t *testing.T) {
		handler := handlers.NewHandler(&MockStorage{order: openOrder()})

		res, _ := do(t, handler.CreateOfferHandler, offerRequest("8"))
		require.Equal(t, http.StatusNotFound, res.StatusCode)
	})
}

func eventRequest(user *models.AppUser, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/orders/7/events", strings.NewReader(body))
	req = testutils.WithChiURLParams(req, map[string]string{"orderId": "7"})
	return testutils.AsUser(req, user)
}

func TestApplyEventHandler(t *testing.T) {
	t.Run("quote sent", func(t *testing.T) {
		mockStore := &MockStorage{order: openOrder()}
		handler := handlers.NewHandler(mockStore)

		res, body := do(t, handler.ApplyEventHandler, eventRequest(operator, `{"event": "quote_sent", "version": 3}`))
		require.Equal(t, http.StatusOK, res.StatusCode, body)

		var got models.Order
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.Equal(t, workflow.StatusQuoteSent, got.WorkflowStatus)
		assert.True(t, got.IsProcessed)
		assert.Equal(t, 4, got.Version)
		assert.Equal(t, operator.ID.String(), mockStore.lastChange.Actor)
	})

	t.Run("stale version", func(t *testing.T) {
		handler := handlers.NewHandler(&MockStorage{order: openOrder()})

		res, _ := do(t, handler.ApplyEventHandler, eventRequest(operator, `{"event": "quote_sent", "version": 2}`))
		require.Equal(t, http.StatusConflict, res.StatusCode)
	})

	t.Run("transition not allowed", func(t *testing.T) {
		handler := handlers.NewHandler(&MockStorage{order: openOrder()})

		res, _ := do(t, handler.ApplyEventHandler, eventRequest(operator, `{"event": "shipped"}`))
		require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	})

	t.Run("admin refusal annuls", func(t *testing.T) {
		mockStore := &MockStorage{order: openOrder()}
		handler := handlers.NewHandler(mockStore)

		res, _ := do(t, handler.ApplyEventHandler, eventRequest(admin, `{"event": "refuse", "reason": "дубль"}`))
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, workflow.StatusAnnulled, mockStore.lastChange.Admin)
		require.NotNil(t, mockStore.lastChange.RefusalReason)
		assert.Equal(t, "дубль", *mockStore.lastChange.RefusalReason)
	})

	t.Run("refusal without reason", func(t *testing.T) {
		handler := handlers.NewHandler(&MockStorage{order: openOrder()})

		res, _ := do(t, handler.ApplyEventHandler, eventRequest(operator, `{"event": "refuse"}`))
		require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	})
}

func TestClientDecisionHandler(t *testing.T) {
	order := openOrder()
	order.StatusAdmin = workflow.StatusQuoteSent
	order.StatusClient = workflow.StatusQuoteSent
	order.VisibleToClient = true

	t.Run("ready to buy", func(t *testing.T) {
		mockStore := &MockStorage{order: order}
		handler := handlers.NewHandler(mockStore)

		req := httptest.NewRequest(http.MethodPost, "/api/client/orders/7/decision",
			strings.NewReader(`{"phone": "+79990000000", "decision": "ready"}`))
		req = testutils.WithChiURLParams(req, map[string]string{"orderId": "7"})

		res, body := do(t, handler.ClientDecisionHandler, req)
		require.Equal(t, http.StatusOK, res.StatusCode, body)
		assert.Equal(t, workflow.StatusReadyToBuy, mockStore.lastChange.Admin)
	})

	t.Run("foreign phone", func(t *testing.T) {
		handler := handlers.NewHandler(&MockStorage{order: order})

		req := httptest.NewRequest(http.MethodPost, "/api/client/orders/7/decision",
			strings.NewReader(`{"phone": "+70000000000", "decision": "ready"}`))
		req = testutils.WithChiURLParams(req, map[string]string{"orderId": "7"})

		res, _ := do(t, handler.ClientDecisionHandler, req)
		require.Equal(t, http.StatusNotFound, res.StatusCode)
	})
}

func TestApproveWinnersHandler(t *testing.T) {
	body := `{"winners": [{"offerItemId": 11, "adminPrice": 1500}]}`

	t.Run("quote ready", func(t *testing.T) {
		mockStore := &MockStorage{order: openOrder()}
		handler := handlers.NewHandler(mockStore)

		req := eventRequest(operator, body)
		res, resBody := do(t, handler.ApproveWinnersHandler, req)
		require.Equal(t, http.StatusOK, res.StatusCode, resBody)
		assert.Equal(t, workflow.RawQuoteReady, mockStore.lastChange.Admin)
		require.NotNil(t, mockStore.lastChange.VisibleToClient)
		assert.True(t, *mockStore.lastChange.VisibleToClient)
	})

	t.Run("foreign offer item", func(t *testing.T) {
		handler := handlers.NewHandler(&MockStorage{order: openOrder(), ApproveErr: db.ErrInvalidWinner})

		res, _ := do(t, handler.ApproveWinnersHandler, eventRequest(operator, body))
		require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	})

	t.Run("empty winners", func(t *testing.T) {
		handler := handlers.NewHandler(&MockStorage{order: openOrder()})

		res, _ := do(t, handler.ApproveWinnersHandler, eventRequest(operator, `{"winners": []}`))
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}

func TestGetOrderHandler(t *testing.T) {
	other := uuid.New()
	mockStore := &MockStorage{
		order: openOrder(),
		items: []models.OrderItem{{ID: 1, OrderID: 7, Name: "Фильтр"}},
		offers: []models.Offer{
			{ID: 1, OrderID: 7, SupplierName: "Мой", CreatedBy: uuid.NullUUID{UUID: buyer.ID, Valid: true}},
			{ID: 2, OrderID: 7, SupplierName: "Чужой", CreatedBy: uuid.NullUUID{UUID: other, Valid: true}},
			{ID: 3, OrderID: 999, SupplierName: "Сирота"},
		},
	}
	handler := handlers.NewHandler(mockStore)

	t.Run("buyer sees own offers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders/7", nil)
		req = testutils.AsUser(testutils.WithChiURLParams(req, map[string]string{"orderId": "7"}), buyer)

		res, body := do(t, handler.GetOrderHandler, req)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, body, "Мой")
		assert.NotContains(t, body, "Чужой")
		assert.NotContains(t, body, "Сирота")
		assert.Contains(t, body, `"allowedEvents":[]`)
	})

	t.Run("staff sees all offers and events", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders/7", nil)
		req = testutils.AsUser(testutils.WithChiURLParams(req, map[string]string{"orderId": "7"}), operator)

		res, body := do(t, handler.GetOrderHandler, req)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, body, "Чужой")
		assert.NotContains(t, body, "Сирота")
		assert.Contains(t, body, workflow.EventQuoteReady)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders/abc", nil)
		req = testutils.AsUser(testutils.WithChiURLParams(req, map[string]string{"orderId": "abc"}), operator)

		res, _ := do(t, handler.GetOrderHandler, req)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}

func TestListOrdersHandler(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var got db.OrderFilter
	mockStore := &MockStorage{
		ListOrdersFunc: func(ctx context.Context, f db.OrderFilter) ([]models.Order, error) {
			got = f
			return []models.Order{
				{ID: 1, StatusAdmin: workflow.StatusInProcessing, CreatedAt: now.Add(-96 * time.Hour)},
				{ID: 2, StatusAdmin: workflow.StatusInProcessing, CreatedAt: now.Add(-time.Hour)},
			}, nil
		},
	}
	handler := handlers.NewHandler(mockStore, handlers.WithClock(func() time.Time { return now }))

	req := httptest.NewRequest(http.MethodGet, "/api/orders?q=oil&admin_tab=ready_to_buy&brands=Toyota,+Kia&limit=2&sort=id&order=desc", nil)
	req = testutils.AsUser(req, operator)

	res, body := do(t, handler.ListOrdersHandler, req)
	require.Equal(t, http.StatusOK, res.StatusCode, body)

	assert.Equal(t, "oil", got.Search)
	assert.ElementsMatch(t, []string{workflow.StatusQuoteSent, workflow.StatusReadyToBuy}, got.Statuses)
	assert.Equal(t, []string{"Toyota", "Kia"}, got.Brands)
	assert.Equal(t, "id", got.Sort)
	assert.True(t, got.Desc)

	assert.Contains(t, body, `"displayStatus":"ГОРИТ"`)
	assert.Contains(t, body, `"next_cursor":2`)
}

func TestClientOrdersHandler(t *testing.T) {
	now := time.Now()
	mockStore := &MockStorage{
		ClientOrders: []models.Order{
			{ID: 1, StatusAdmin: workflow.StatusInProcessing, CreatedAt: now},
			{ID: 2, StatusAdmin: workflow.StatusQuoteSent, CreatedAt: now.Add(-time.Hour)},
		},
		offers: []models.Offer{
			{ID: 10, OrderID: 1, SupplierName: "Скрытый"},
			{ID: 20, OrderID: 2, SupplierName: "Видимый", SupplierPhone: "+7000"},
		},
	}
	handler := handlers.NewHandler(mockStore)

	res, body := do(t, handler.ClientOrdersHandler, httptest.NewRequest(http.MethodGet, "/api/client/orders?phone=%2B7999", nil))
	require.Equal(t, http.StatusOK, res.StatusCode)

	var orders []models.Order
	require.NoError(t, json.Unmarshal([]byte(body), &orders))
	require.Len(t, orders, 2)
	assert.Equal(t, int64(2), orders[0].ID)
	require.Len(t, orders[0].Offers, 1)
	assert.Empty(t, orders[0].Offers[0].SupplierPhone)
	assert.Empty(t, orders[1].Offers)

	res, _ = do(t, handler.ClientOrdersHandler, httptest.NewRequest(http.MethodGet, "/api/client/orders", nil))
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestRoutesAuth(t *testing.T) {
	mockStore := &MockStorage{
		StorageInterface: emailsOnly{},
		users: map[string]*models.AppUser{
			"buyer-token":    buyer,
			"operator-token": operator,
		},
	}
	router := handlers.NewHandler(mockStore).Routes()

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing token", "", "", http.StatusUnauthorized},
		{"unknown token", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"buyer is forbidden", "Authorization", "Bearer buyer-token", http.StatusForbidden},
		{"operator by header", "X-Auth-Token", "operator-token", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/emails", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			require.Equal(t, tt.want, w.Code)
		})
	}
}

type emailsOnly struct{ handlers.StorageInterface }

func (emailsOnly) ListIncomingEmails(ctx context.Context, status string) ([]models.IncomingEmail, error) {
	return []models.IncomingEmail{{ID: 1, Subject: "ЗАЯВКА", Status: status}}, nil
}

func TestLockEmailHandler(t *testing.T) {
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/emails/5/lock", nil)
		return testutils.AsUser(testutils.WithChiURLParams(r, map[string]string{"emailId": "5"}), operator)
	}

	handler := handlers.NewHandler(&MockStorage{})
	res, body := do(t, handler.LockEmailHandler, req())
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, body, operator.ID.String())

	handler = handlers.NewHandler(&MockStorage{LockEmailErr: db.ErrLocked})
	res, _ = do(t, handler.LockEmailHandler, req())
	require.Equal(t, http.StatusLocked, res.StatusCode)
}

func TestDashboardHandler(t *testing.T) {
	mockStore := &MockStorage{Stats: []models.BuyerStat{
		{UserID: buyer.ID, Name: buyer.Name, KPCount: 2, KPSum: decimal.NewFromInt(100)},
		{UserID: uuid.New(), Name: "Лидер", KPCount: 4, KPSum: decimal.NewFromInt(400)},
	}}
	handler := handlers.NewHandler(mockStore)

	res, body := do(t, handler.DashboardHandler, testutils.AsUser(httptest.NewRequest(http.MethodGet, "/api/buyer/dashboard", nil), buyer))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"quantity_leader":"Лидер"`)
	assert.Contains(t, body, `"quantity_percent":50`)
	assert.Contains(t, body, `"sum_percent":75`)
}

func TestToggleLabelHandler(t *testing.T) {
	body := `{"orderId": 7, "color": "red"}`

	handler := handlers.NewHandler(&MockStorage{})
	req := testutils.AsUser(httptest.NewRequest(http.MethodPost, "/api/buyer/labels", strings.NewReader(body)), buyer)
	res, _ := do(t, handler.ToggleLabelHandler, req)
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	handler = handlers.NewHandler(&MockStorage{ToggleResult: &models.BuyerLabel{ID: 1, OrderID: 7, Color: "red"}})
	req = testutils.AsUser(httptest.NewRequest(http.MethodPost, "/api/buyer/labels", strings.NewReader(body)), buyer)
	res, resBody := do(t, handler.ToggleLabelHandler, req)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, resBody, `"color":"red"`)
}

func TestSendMessageHandler(t *testing.T) {
	mockStore := &MockStorage{GetUsersByIDsMap: map[uuid.UUID]models.AppUser{operator.ID: *operator}}
	handler := handlers.NewHandler(mockStore)

	body := `{"orderId": 7, "recipientId": "` + operator.ID.String() + `", "message": "Есть в наличии?"}`
	req := testutils.AsUser(httptest.NewRequest(http.MethodPost, "/api/chat/messages", strings.NewReader(body)), buyer)
	res, resBody := do(t, handler.SendMessageHandler, req)
	require.Equal(t, http.StatusCreated, res.StatusCode, resBody)
	assert.Contains(t, resBody, `"recipientName":"Оператор"`)
	assert.Contains(t, resBody, `"senderRole":"buyer"`)

	body = `{"orderId": 7, "recipientId": "` + uuid.NewString() + `", "message": "Кто здесь?"}`
	req = testutils.AsUser(httptest.NewRequest(http.MethodPost, "/api/chat/messages", strings.NewReader(body)), buyer)
	res, _ = do(t, handler.SendMessageHandler, req)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

type fakeParser struct {
	res *textparse.Result
	err error
}

func (f fakeParser) Parse(ctx context.Context, text string) (*textparse.Result, error) {
	return f.res, f.err
}

func TestParseHandler(t *testing.T) {
	body := `{"text": "ЗАЯВКА: фильтр масляный 2 шт"}`

	handler := handlers.NewHandler(&MockStorage{})
	req := httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader(body))
	res, _ := do(t, handler.ParseHandler, req)
	require.Equal(t, http.StatusServiceUnavailable, res.StatusCode)

	parsed := &textparse.Result{Parts: []textparse.Part{{Name: "Фильтр масляный", Quantity: 2}}}
	handler = handlers.NewHandler(&MockStorage{}, handlers.WithParser(fakeParser{res: parsed}))
	req = httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader(body))
	res, resBody := do(t, handler.ParseHandler, req)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, resBody, "Фильтр масляный")

	handler = handlers.NewHandler(&MockStorage{}, handlers.WithParser(fakeParser{err: errors.New("quota exceeded")}))
	req = httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader(body))
	res, resBody = do(t, handler.ParseHandler, req)
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	require.NotContains(t, resBody, "quota")
}

type fakeCRM struct {
	dealID string
	err    error
	got    crm.ChangePayload
}

func (f *fakeCRM) HandleChange(ctx context.Context, p crm.ChangePayload) (string, error) {
	f.got = p
	return f.dealID, f.err
}

func TestOrderHookHandler(t *testing.T) {
	payload := `{"type": "UPDATE", "table": "orders", "record": {"id": 7, "status_admin": "КП отправлено", "bitrix_deal_id": null}}`

	t.Run("wrong secret", func(t *testing.T) {
		handler := handlers.NewHandler(&MockStorage{}, handlers.WithCRM(&fakeCRM{}, "s3cret"))
		req := httptest.NewRequest(http.MethodPost, "/api/hooks/orders", strings.NewReader(payload))
		req.Header.Set("X-Webhook-Secret", "nope")

		res, _ := do(t, handler.OrderHookHandler, req)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("synced", func(t *testing.T) {
		fake := &fakeCRM{dealID: "123"}
		handler := handlers.NewHandler(&MockStorage{}, handlers.WithCRM(fake, "s3cret"))
		req := httptest.NewRequest(http.MethodPost, "/api/hooks/orders", strings.NewReader(payload))
		req.Header.Set("X-Webhook-Secret", "s3cret")

		res, body := do(t, handler.OrderHookHandler, req)
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Contains(t, body, `"dealId":"123"`)
		assert.Equal(t, int64(7), fake.got.Record.ID)
	})

	t.Run("no secret configured", func(t *testing.T) {
		fake := &fakeCRM{dealID: "123"}
		handler := handlers.NewHandler(&MockStorage{}, handlers.WithCRM(fake, ""))
		req := httptest.NewRequest(http.MethodPost, "/api/hooks/orders", strings.NewReader(payload))

		res, _ := do(t, handler.OrderHookHandler, req)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)
		assert.Zero(t, fake.got.Record.ID)
	})

	t.Run("skipped", func(t *testing.T) {
		handler := handlers.NewHandler(&MockStorage{}, handlers.WithCRM(&fakeCRM{}, "s3cret"))
		req := httptest.NewRequest(http.MethodPost, "/api/hooks/orders", strings.NewReader(payload))
		req.Header.Set("X-Webhook-Secret", "s3cret")

		res, body := do(t, handler.OrderHookHandler, req)
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Contains(t, body, "skipped")
	})

	t.Run("crm error", func(t *testing.T) {
		handler := handlers.NewHandler(&MockStorage{}, handlers.WithCRM(&fakeCRM{err: errors.New("bitrix down")}, "s3cret"))
		req := httptest.NewRequest(http.MethodPost, "/api/hooks/orders", strings.NewReader(payload))
		req.Header.Set("X-Webhook-Secret", "s3cret")

		res, body := do(t, handler.OrderHookHandler, req)
		require.Equal(t, http.StatusInternalServerError, res.StatusCode)
		require.Contains(t, body, `"error":"bitrix down"`)
	})
}

func TestSetItemPriceHandler(t *testing.T) {
	req := func(orderID, itemID, body string) *http.Request {
		r := httptest.NewRequest(http.MethodPut, "/api/orders/"+orderID+"/items/"+itemID+"/price", strings.NewReader(body))
		r = testutils.WithChiURLParams(r, map[string]string{"orderId": orderID, "itemId": itemID})
		return testutils.AsUser(r, operator)
	}
	mockStore := &MockStorage{items: []models.OrderItem{
		{ID: 11, OrderID: 7, Name: "Фильтр"},
		{ID: 999, OrderID: 2, Name: "Свеча"},
	}}
	handler := handlers.NewHandler(mockStore)

	res, _ := do(t, handler.SetItemPriceHandler, req("7", "11", `{"price": 1500}`))
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	require.True(t, mockStore.items[0].AdminPrice.Decimal.Equal(decimal.NewFromInt(1500)))
	require.True(t, mockStore.items[0].IsManualPrice)

	// позиция другого заказа не меняется
	res, _ = do(t, handler.SetItemPriceHandler, req("7", "999", `{"price": 1}`))
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	require.Equal(t, int64(7), mockStore.priceOrderID)
	require.False(t, mockStore.items[1].AdminPrice.Valid)

	res, _ = do(t, handler.SetItemPriceHandler, req("7", "11", `{"price": -5}`))
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}
