package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"partsmarket/internal/telemetry"
	"partsmarket/internal/workflow"
	"partsmarket/models"
)

const (
	unknownClient = "Неизвестный клиент"
	noBrand       = "NoBrand"
	dealCurrency  = "RUB"
	// Захват заказа на выгрузку; после истечения заказ может взять другой процесс
	claimTTL = 10 * time.Minute
)

// Deals - операции CRM, нужные синхронизации
type Deals interface {
	FindContactByPhone(ctx context.Context, phone string) (string, error)
	AddContact(ctx context.Context, c Contact) (string, error)
	AddDeal(ctx context.Context, d Deal) (string, error)
	SetProductRows(ctx context.Context, dealID string, rows []ProductRow) error
}

// OrderSource - доступ к заказам для синхронизации.
// ClaimOrderForCRM возвращает nil, если у заказа уже есть сделка или его выгружает другой процесс.
type OrderSource interface {
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	ClaimOrderForCRM(ctx context.Context, orderID int64, ttl time.Duration) (*models.Order, error)
	ReleaseCRMClaim(ctx context.Context, orderID int64) error
	SetBitrixDealID(ctx context.Context, orderID int64, dealID string) error
	ListOrdersPendingCRM(ctx context.Context, limit int) ([]models.Order, error)
}

// ChangePayload - уведомление об изменении строки в базе
type ChangePayload struct {
	Type   string `json:"type"`
	Table  string `json:"table"`
	Record Record `json:"record"`
}

// Record - поля заказа, нужные для решения о выгрузке
type Record struct {
	ID           int64  `json:"id"`
	StatusAdmin  string `json:"status_admin"`
	BitrixDealID string `json:"bitrix_deal_id"`
	ClientName   string `json:"client_name"`
	ClientPhone  string `json:"client_phone"`
	ClientEmail  string `json:"client_email"`
}

func (r *Record) UnmarshalJSON(b []byte) error {
	type plain Record
	var aux struct {
		plain
		BitrixDealID json.RawMessage `json:"bitrix_deal_id"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = Record(aux.plain)
	var dealID id
	if len(aux.BitrixDealID) > 0 && string(aux.BitrixDealID) != "null" {
		_ = dealID.UnmarshalJSON(aux.BitrixDealID)
	}
	r.BitrixDealID = string(dealID)
	return nil
}

// ShouldSync - выгружается только заказ с отправленным КП и без сделки
func ShouldSync(table string, r Record) bool {
	return table == "orders" && r.StatusAdmin == workflow.StatusQuoteSent && r.BitrixDealID == ""
}

// RecordOf - поля заказа для выгрузки
func RecordOf(o models.Order) Record {
	return Record{
		ID:           o.ID,
		StatusAdmin:  o.StatusAdmin,
		BitrixDealID: o.BitrixDealID,
		ClientName:   o.ClientName,
		ClientPhone:  o.ClientPhone,
		ClientEmail:  o.ClientEmail,
	}
}

// Syncer создаёт сделку по заказу
type Syncer struct {
	deals   Deals
	store   OrderSource
	stageID string
	metrics *telemetry.Metrics
}

func NewSyncer(deals Deals, store OrderSource, stageID string, m *telemetry.Metrics) *Syncer {
	return &Syncer{deals: deals, store: store, stageID: stageID, metrics: m}
}

// HandleChange обрабатывает уведомление; пустой dealID без ошибки - событие пропущено
func (s *Syncer) HandleChange(ctx context.Context, p ChangePayload) (string, error) {
	if !ShouldSync(p.Table, p.Record) {
		log.Debug().Int64("order_id", p.Record.ID).Str("table", p.Table).Msg("Skipping CRM sync: criteria not met")
		return "", nil
	}
	return s.Sync(ctx, p.Record)
}

// Sync захватывает заказ и выгружает его: контакт по телефону (или новый),
// сделка, товары, ID сделки в заказ. Данные берутся из базы, а не из r.
// Пустой dealID без ошибки - заказ уже выгружен или выгружается.
func (s *Syncer) Sync(ctx context.Context, r Record) (string, error) {
	order, err := s.store.ClaimOrderForCRM(ctx, r.ID, claimTTL)
	if err != nil {
		return "", errors.Wrap(err, "failed to claim order")
	}
	if order == nil {
		log.Debug().Int64("order_id", r.ID).Msg("Skipping CRM sync: order already synced or claimed")
		return "", nil
	}

	dealID, err := s.sync(ctx, RecordOf(*order))
	if err != nil {
		s.metrics.Add(ctx, telemetry.CRMFailed, 1)
		if rerr := s.store.ReleaseCRMClaim(context.WithoutCancel(ctx), order.ID); rerr != nil {
			log.Warn().Err(rerr).Int64("order_id", order.ID).Msg("Failed to release CRM claim")
		}
		return "", err
	}
	s.metrics.Add(ctx, telemetry.CRMSynced, 1)
	log.Info().Int64("order_id", r.ID).Str("deal_id", dealID).Msg("Order synced to CRM")
	return dealID, nil
}

func (s *Syncer) sync(ctx context.Context, r Record) (string, error) {
	name := r.ClientName
	if name == "" {
		name = unknownClient
	}

	items, err := s.store.GetOrderItems(ctx, r.ID)
	if err != nil {
		return "", errors.Wrap(err, "items not found")
	}

	var contactID string
	if r.ClientPhone != "" {
		if contactID, err = s.deals.FindContactByPhone(ctx, r.ClientPhone); err != nil {
			return "", err
		}
	}
	if contactID == "" {
		contactID, err = s.deals.AddContact(ctx, Contact{
			Name:     name,
			LastName: fmt.Sprintf("(#%d)", r.ID),
			Phone:    r.ClientPhone,
			Email:    r.ClientEmail,
		})
		if err != nil {
			return "", err
		}
	}

	dealID, err := s.deals.AddDeal(ctx, Deal{
		Title:     fmt.Sprintf("Заказ #%d (%s)", r.ID, name),
		ContactID: contactID,
		StageID:   s.stageID,
		Currency:  dealCurrency,
	})
	if err != nil {
		return "", err
	}

	if rows := ProductRows(items); len(rows) > 0 {
		if err := s.deals.SetProductRows(ctx, dealID, rows); err != nil {
			return "", err
		}
	}

	if err := s.store.SetBitrixDealID(ctx, r.ID, dealID); err != nil {
		return "", errors.Wrap(err, "failed to store deal id")
	}
	return dealID, nil
}

// ProductRows - строки товаров сделки из позиций заказа
func ProductRows(items []models.OrderItem) []ProductRow {
	rows := make([]ProductRow, 0, len(items))
	for _, it := range items {
		brand := it.Brand
		if brand == "" {
			brand = noBrand
		}
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		row := ProductRow{Name: fmt.Sprintf("%s (%s)", it.Name, brand), Quantity: qty}
		if it.AdminPrice.Valid {
			row.Price = it.AdminPrice.Decimal
		}
		rows = append(rows, row)
	}
	return rows
}

// Reconcile догоняет заказы, которые не выгрузились по вебхуку
func (s *Syncer) Reconcile(ctx context.Context, limit int) (int, error) {
	orders, err := s.store.ListOrdersPendingCRM(ctx, limit)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list orders pending CRM sync")
	}
	synced := 0
	for _, o := range orders {
		if ctx.Err() != nil {
			break
		}
		dealID, err := s.Sync(ctx, RecordOf(o))
		if err != nil {
			log.Error().Err(err).Int64("order_id", o.ID).Msg("CRM sync failed")
			continue
		}
		if dealID != "" {
			synced++
		}
	}
	return synced, ctx.Err()
}
