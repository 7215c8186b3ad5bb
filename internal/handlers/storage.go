package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"partsmarket/db"
	"partsmarket/models"
)

type UserStore interface {
	GetUserByToken(ctx context.Context, token string) (*models.AppUser, error)
	GetUsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.AppUser, error)
	ListUsers(ctx context.Context) ([]models.AppUser, error)
	CreateUser(ctx context.Context, u *models.AppUser) error
}

type OrderStore interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetItemsByOrders(ctx context.Context, orderIDs []int64) ([]models.OrderItem, error)
	ListOrders(ctx context.Context, f db.OrderFilter) ([]models.Order, error)
	ListClientOrders(ctx context.Context, phone string) ([]models.Order, error)
	UpdateOrderMetadata(ctx context.Context, id int64, m models.OrderMetadata) error
	UpdateOrderItem(ctx context.Context, it *models.OrderItem) error
	SetItemAdminPrice(ctx context.Context, orderID, itemID int64, price decimal.NullDecimal) error
	ApplyStatusChange(ctx context.Context, orderID int64, version int, ch models.StatusChange) (*models.Order, error)
	GetStatusHistory(ctx context.Context, orderID int64) ([]models.StatusHistory, error)
	StatusRows(ctx context.Context, ownerID uuid.NullUUID) ([]models.StatusRow, error)
	DeleteAllOrders(ctx context.Context) (int64, error)
}

type OfferStore interface {
	CreateOffer(ctx context.Context, offer *models.Offer, version int, ch models.StatusChange) (*models.Order, error)
	GetOffer(ctx context.Context, id int64) (*models.Offer, error)
	ListOffersByOrders(ctx context.Context, orderIDs []int64) ([]models.Offer, error)
	UpdateOffer(ctx context.Context, offer *models.Offer) error
	UpdateOfferItem(ctx context.Context, itemID int64, upd models.OfferItemUpdate) error
	LatestDeliveryWeeksAdd(ctx context.Context) (int, error)
	ApproveWinners(ctx context.Context, orderID int64, winners []models.Winner, version int, ch models.StatusChange) (*models.Order, error)
	ResetWinner(ctx context.Context, offerItemID int64) error
}

type BuyerStore interface {
	ListBuyerLabels(ctx context.Context, userID uuid.UUID, orderIDs []int64) ([]models.BuyerLabel, error)
	ToggleBuyerLabel(ctx context.Context, l models.BuyerLabel) (*models.BuyerLabel, error)
	QuickBrands(ctx context.Context, userID uuid.UUID, since time.Time) ([]string, error)
	BuyerTabCounts(ctx context.Context, userID uuid.UUID, hotBefore time.Time) (models.BuyerTabCounts, error)
	BuyerStats(ctx context.Context, from, to time.Time) ([]models.BuyerStat, error)
}

type ChatStore interface {
	ListChatMessages(ctx context.Context, orderID int64, me, other uuid.UUID) ([]models.ChatMessage, error)
	CreateChatMessage(ctx context.Context, m *models.ChatMessage) error
	MarkChatRead(ctx context.Context, orderID int64, me, other uuid.UUID) (int64, error)
	ArchiveChat(ctx context.Context, orderID int64, me, other uuid.UUID) error
	DeleteChat(ctx context.Context, orderID int64, me, other uuid.UUID) (int64, error)
	ListChatMessagesForUser(ctx context.Context, me uuid.UUID, archived bool) ([]models.ChatMessage, error)
	UnreadByOrder(ctx context.Context, me uuid.UUID) (map[int64]int, error)
}

type EmailStore interface {
	ListIncomingEmails(ctx context.Context, status string) ([]models.IncomingEmail, error)
	LockIncomingEmail(ctx context.Context, id int64, user uuid.UUID, ttl time.Duration) (*models.IncomingEmail, error)
	UnlockIncomingEmail(ctx context.Context, id int64, user uuid.UUID) error
	ArchiveIncomingEmail(ctx context.Context, id int64) error
}

type FinanceStore interface {
	LatestRates(ctx context.Context) (*models.ExchangeRates, error)
	UpsertRates(ctx context.Context, r models.ExchangeRates) error
}

type StorageInterface interface {
	Ping(ctx context.Context) error
	UserStore
	OrderStore
	OfferStore
	BuyerStore
	ChatStore
	EmailStore
	FinanceStore
}

var _ StorageInterface = (*db.Storage)(nil)
