package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Цены отдаём клиентам числами, а не строками
	decimal.MarshalJSONWithoutQuotes = true
}

// Роли пользователей
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleBuyer    = "buyer"
)

// Валюты предложений
const (
	CurrencyRUB = "RUB"
	CurrencyUSD = "USD"
	CurrencyCNY = "CNY"
)

// Сущность Пользователя
type AppUser struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name" validate:"required,max=100"`
	Token     string    `db:"token" json:"-"`
	Role      string    `db:"role" json:"role" validate:"required,oneof=admin operator buyer"`
	Phone     string    `db:"phone" json:"phone,omitempty"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Сущность Заказа
type Order struct {
	ID                 int64         `db:"id" json:"id"`
	CreatedAt          time.Time     `db:"created_at" json:"createdAt"`
	VIN                string        `db:"vin" json:"vin,omitempty" validate:"max=32"`
	ClientName         string        `db:"client_name" json:"clientName" validate:"required,max=200"`
	ClientPhone        string        `db:"client_phone" json:"clientPhone" validate:"max=32"`
	ClientEmail        string        `db:"client_email" json:"clientEmail,omitempty" validate:"omitempty,email"`
	Location           string        `db:"location" json:"location"`
	StatusAdmin        string        `db:"status_admin" json:"statusAdmin"`
	StatusClient       string        `db:"status_client" json:"statusClient"`
	StatusSupplier     string        `db:"status_supplier" json:"statusSupplier"`
	StatusUpdatedAt    *time.Time    `db:"status_updated_at" json:"statusUpdatedAt,omitempty"`
	VisibleToClient    bool          `db:"visible_to_client" json:"visibleToClient"`
	OwnerID            uuid.NullUUID `db:"owner_id" json:"ownerId"`
	Deadline           *time.Time    `db:"deadline" json:"deadline,omitempty"`
	IsManualProcessing bool          `db:"is_manual_processing" json:"isManualProcessing"`
	RefusalReason      string        `db:"refusal_reason" json:"refusalReason,omitempty"`
	IsArchived         bool          `db:"is_archived" json:"isArchived"`
	BitrixDealID       string        `db:"bitrix_deal_id" json:"bitrixDealId,omitempty"`
	CRMClaimedAt       *time.Time    `db:"crm_claimed_at" json:"-"`
	Version            int           `db:"version" json:"version"`
	OfferCount         int           `db:"offer_count" json:"offerCount"`

	Items  []OrderItem `db:"-" json:"items" validate:"dive"`
	Offers []Offer     `db:"-" json:"offers"`

	// Вычисляемые при чтении поля
	WorkflowStatus string       `db:"-" json:"workflowStatus"`
	DisplayStatus  string       `db:"-" json:"displayStatus,omitempty"`
	IsProcessed    bool         `db:"-" json:"isProcessed"`
	ReadyToBuy     bool         `db:"-" json:"readyToBuy"`
	IsRefused      bool         `db:"-" json:"isRefused"`
	BuyerLabels    []BuyerLabel `db:"-" json:"buyerLabels,omitempty"`
}

// Позиция заказа
type OrderItem struct {
	ID            int64               `db:"id" json:"id"`
	OrderID       int64               `db:"order_id" json:"orderId"`
	Name          string              `db:"name" json:"name" validate:"required,max=300"`
	Brand         string              `db:"brand" json:"brand,omitempty"`
	Article       string              `db:"article" json:"article,omitempty"`
	Quantity      int                 `db:"quantity" json:"quantity" validate:"gte=0"`
	UOM           string              `db:"uom" json:"uom"`
	PhotoURL      string              `db:"photo_url" json:"photoUrl,omitempty"`
	Comment       string              `db:"comment" json:"comment,omitempty"`
	Category      string              `db:"category" json:"category,omitempty"`
	AdminPrice    decimal.NullDecimal `db:"admin_price" json:"adminPrice"`
	IsManualPrice bool                `db:"is_manual_price" json:"isManualPrice"`
}

// Сущность Предложения поставщика
type Offer struct {
	ID            int64         `db:"id" json:"id"`
	OrderID       int64         `db:"order_id" json:"orderId"`
	SupplierName  string        `db:"supplier_name" json:"supplierName"`
	SupplierPhone string        `db:"supplier_phone" json:"supplierPhone,omitempty"`
	CreatedBy     uuid.NullUUID `db:"created_by" json:"createdBy"`
	Status        string        `db:"status" json:"status"`
	LockedAt      *time.Time    `db:"locked_at" json:"lockedAt,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`

	Items []OfferItem `db:"-" json:"items"`

	// Видимость для клиента берётся из флага обработки родительского заказа
	VisibleToClient bool `db:"-" json:"visibleToClient"`
}

// Строка предложения
type OfferItem struct {
	ID                  int64               `db:"id" json:"id"`
	OfferID             int64               `db:"offer_id" json:"offerId"`
	OrderItemID         *int64              `db:"order_item_id" json:"orderItemId,omitempty"`
	Name                string              `db:"name" json:"name"`
	Quantity            int                 `db:"quantity" json:"quantity"`
	Price               decimal.Decimal     `db:"price" json:"price"`
	Currency            string              `db:"currency" json:"currency"`
	DeliveryDays        int                 `db:"delivery_days" json:"deliveryDays"`
	Weight              decimal.Decimal     `db:"weight" json:"weight"`
	PhotoURL            string              `db:"photo_url" json:"photoUrl,omitempty"`
	Comment             string              `db:"comment" json:"comment,omitempty"`
	SupplierSKU         string              `db:"supplier_sku" json:"supplierSku,omitempty"`
	IsWinner            bool                `db:"is_winner" json:"isWinner"`
	AdminPrice          decimal.NullDecimal `db:"admin_price" json:"adminPrice"`
	AdminComment        string              `db:"admin_comment" json:"adminComment,omitempty"`
	DeliveryRate        decimal.Decimal     `db:"delivery_rate" json:"deliveryRate"`
	ClientDeliveryWeeks *int                `db:"client_delivery_weeks" json:"clientDeliveryWeeks,omitempty"`
}

// DeliveryWeeks - срок поставки поставщика в неделях
func (i OfferItem) DeliveryWeeks() int {
	if i.DeliveryDays <= 0 {
		return 0
	}
	return (i.DeliveryDays + 6) / 7
}

// Правка строки предложения менеджером
type OfferItemUpdate struct {
	AdminComment *string             `json:"adminComment"`
	AdminPrice   decimal.NullDecimal `json:"adminPrice"`
	Currency     *string             `json:"currency" validate:"omitempty,oneof=RUB USD CNY"`
	DeliveryDays *int                `json:"deliveryDays" validate:"omitempty,gte=0"`
	SupplierSKU  *string             `json:"supplierSku"`
}

// Выбор победителя по позиции
type Winner struct {
	OfferItemID         int64               `json:"offerItemId" validate:"required"`
	AdminPrice          decimal.NullDecimal `json:"adminPrice"`
	AdminComment        string              `json:"adminComment"`
	DeliveryRate        decimal.Decimal     `json:"deliveryRate"`
	ClientDeliveryWeeks *int                `json:"clientDeliveryWeeks"`
}

// Изменение статусов заказа, рассчитанное переходом workflow
type StatusChange struct {
	Event           string
	Actor           string
	Admin           string
	Client          string
	Supplier        string
	VisibleToClient *bool
	Manual          *bool
	RefusalReason   *string
}

// Запись истории статусов
type StatusHistory struct {
	ID             int64     `db:"id" json:"id"`
	OrderID        int64     `db:"order_id" json:"orderId"`
	Version        int       `db:"version" json:"version"`
	Event          string    `db:"event" json:"event"`
	Actor          string    `db:"actor" json:"actor"`
	StatusAdmin    string    `db:"status_admin" json:"statusAdmin"`
	StatusClient   string    `db:"status_client" json:"statusClient"`
	StatusSupplier string    `db:"status_supplier" json:"statusSupplier"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Контактные данные заказа
type OrderMetadata struct {
	ClientName  *string `json:"clientName" validate:"omitempty,max=200"`
	ClientPhone *string `json:"clientPhone" validate:"omitempty,max=32"`
	ClientEmail *string `json:"clientEmail" validate:"omitempty,email"`
	Location    *string `json:"location" validate:"omitempty,max=200"`
}

// Сообщение чата
type ChatMessage struct {
	ID            int64         `db:"id" json:"id"`
	OrderID       int64         `db:"order_id" json:"orderId" validate:"required"`
	OfferID       *int64        `db:"offer_id" json:"offerId,omitempty"`
	SenderID      uuid.UUID     `db:"sender_id" json:"senderId"`
	SenderRole    string        `db:"sender_role" json:"senderRole"`
	RecipientID   uuid.NullUUID `db:"recipient_id" json:"recipientId"`
	RecipientName string        `db:"recipient_name" json:"recipientName,omitempty"`
	Message       string        `db:"message" json:"message" validate:"required,max=4000"`
	IsRead        bool          `db:"is_read" json:"isRead"`
	IsArchived    bool          `db:"is_archived" json:"isArchived"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
}

// Ветка чата: один заказ, один собеседник
type ChatThread struct {
	OrderID        int64     `json:"orderId"`
	InterlocutorID uuid.UUID `json:"interlocutorId"`
	DisplayName    string    `json:"displayName"`
	Role           string    `json:"role"`
	LastMessage    string    `json:"lastMessage"`
	Time           time.Time `json:"time"`
	Unread         int       `json:"unread"`
}

// Цветная метка закупщика на заказе
type BuyerLabel struct {
	ID      int64     `db:"id" json:"id"`
	UserID  uuid.UUID `db:"user_id" json:"-"`
	OrderID int64     `db:"order_id" json:"orderId"`
	Color   string    `db:"color" json:"color"`
	Text    string    `db:"label_text" json:"text,omitempty"`
}

// Входящее письмо с заявкой
type IncomingEmail struct {
	ID          int64         `db:"id" json:"id"`
	FromAddress string        `db:"from_address" json:"fromAddress"`
	Subject     string        `db:"subject" json:"subject"`
	Body        string        `db:"body" json:"body"`
	Status      string        `db:"status" json:"status"`
	LockedBy    uuid.NullUUID `db:"locked_by" json:"lockedBy"`
	LockedAt    *time.Time    `db:"locked_at" json:"lockedAt,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
}

// Статусы входящих писем
const (
	EmailStatusNew       = "new"
	EmailStatusProcessed = "processed"
)

// Курсы и надбавки на дату
type ExchangeRates struct {
	Date             time.Time       `db:"date" json:"date"`
	CNYRUB           decimal.Decimal `db:"cny_rub" json:"cnyRub"`
	CNYUSD           decimal.Decimal `db:"cny_usd" json:"cnyUsd"`
	DeliveryKgUSD    decimal.Decimal `db:"delivery_kg_usd" json:"deliveryKgUsd"`
	MarkupPercent    decimal.Decimal `db:"markup_percent" json:"markupPercent"`
	DeliveryWeeksAdd int             `db:"delivery_weeks_add" json:"deliveryWeeksAdd" validate:"gte=0"`
}

// Показатели закупщика за период
type BuyerStat struct {
	UserID   uuid.UUID       `db:"user_id" json:"userId"`
	Name     string          `db:"name" json:"name"`
	KPCount  int             `db:"kp_count" json:"kpCount"`
	KPSum    decimal.Decimal `db:"kp_sum" json:"kpSum"`
	WonCount int             `db:"won_count" json:"wonCount"`
	WonSum   decimal.Decimal `db:"won_sum" json:"wonSum"`
}

// Счётчики вкладок закупщика
type BuyerTabCounts struct {
	New       int `json:"new"`
	Hot       int `json:"hot"`
	History   int `json:"history"`
	Won       int `json:"won"`
	Lost      int `json:"lost"`
	Cancelled int `json:"cancelled"`
}

// Статус заказа и число предложений - для счётчиков оператора
type StatusRow struct {
	StatusAdmin string `db:"status_admin"`
	OfferCount  int    `db:"offer_count"`
}
