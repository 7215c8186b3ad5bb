package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"partsmarket/models"
)

const (
	defaultLocation = "РФ"
	defaultUOM      = "шт"
	initialStatus   = "В обработке"
	eventCreated    = "created"
)

// CreateOrder сохраняет заказ с позициями и первую запись истории
func (s *Storage) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.Location == "" {
		o.Location = defaultLocation
	}
	if o.StatusAdmin == "" {
		o.StatusAdmin = initialStatus
	}
	if o.StatusClient == "" {
		o.StatusClient = initialStatus
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
            INSERT INTO orders
                (vin, client_name, client_phone, client_email, location,
                 status_admin, status_client, status_supplier, owner_id, deadline, version)
            VALUES
                ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
            RETURNING id, created_at, version`
		err := tx.QueryRowxContext(ctx, query,
			o.VIN, o.ClientName, o.ClientPhone, o.ClientEmail, o.Location,
			o.StatusAdmin, o.StatusClient, o.StatusSupplier, o.OwnerID, o.Deadline).
			Scan(&o.ID, &o.CreatedAt, &o.Version)
		if err != nil {
			return errors.Wrap(err, "failed to insert order")
		}

		for i := range o.Items {
			it := &o.Items[i]
			it.OrderID = o.ID
			if it.Quantity <= 0 {
				it.Quantity = 1
			}
			if it.UOM == "" {
				it.UOM = defaultUOM
			}
			err := tx.QueryRowxContext(ctx, `
                INSERT INTO order_items
                    (order_id, name, brand, article, quantity, uom, photo_url, comment, category)
                VALUES
                    ($1, $2, $3, $4, $5, $6, $7, $8, $9)
                RETURNING id`,
				it.OrderID, it.Name, it.Brand, it.Article, it.Quantity, it.UOM, it.PhotoURL, it.Comment, it.Category).
				Scan(&it.ID)
			if err != nil {
				return errors.Wrap(err, "failed to insert order item")
			}
		}

		// Сохраняем первую версию
		return saveHistory(ctx, tx, o.ID, o.Version, eventCreated, actorOf(o.OwnerID), o.StatusAdmin, o.StatusClient, o.StatusSupplier)
	})
}

func actorOf(id uuid.NullUUID) string {
	if id.Valid {
		return id.UUID.String()
	}
	return "client"
}

func (s *Storage) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o := &models.Order{}
	err := s.db.GetContext(ctx, o, `SELECT * FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "failed to get order")
	}
	return o, nil
}

func (s *Storage) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := s.db.SelectContext(ctx, &items, `SELECT * FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	return items, errors.Wrap(err, "failed to get order items")
}

// GetItemsByOrders - позиции нескольких заказов
func (s *Storage) GetItemsByOrders(ctx context.Context, orderIDs []int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	if len(orderIDs) == 0 {
		return items, nil
	}
	err := s.db.SelectContext(ctx, &items,
		`SELECT * FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`, pq.Array(orderIDs))
	return items, errors.Wrap(err, "failed to get order items")
}

// ListClientOrders - заказы клиента по телефону
func (s *Storage) ListClientOrders(ctx context.Context, phone string) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, `
        SELECT * FROM orders
        WHERE client_phone = $1 AND NOT is_archived
        ORDER BY created_at DESC`, phone)
	return orders, errors.Wrap(err, "failed to list client orders")
}

func (s *Storage) UpdateOrderMetadata(ctx context.Context, id int64, m models.OrderMetadata) error {
	rec := goqu.Record{}
	if m.ClientName != nil {
		rec["client_name"] = *m.ClientName
	}
	if m.ClientPhone != nil {
		rec["client_phone"] = *m.ClientPhone
	}
	if m.ClientEmail != nil {
		rec["client_email"] = *m.ClientEmail
	}
	if m.Location != nil {
		rec["location"] = *m.Location
	}
	if len(rec) == 0 {
		return nil
	}
	return s.updateByID(ctx, "orders", id, rec)
}

// UpdateOrderItem - правка позиции оператором
func (s *Storage) UpdateOrderItem(ctx context.Context, it *models.OrderItem) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE order_items
        SET name=$1, brand=$2, article=$3, quantity=$4, uom=$5, comment=$6, category=$7
        WHERE id=$8 AND order_id=$9`,
		it.Name, it.Brand, it.Article, it.Quantity, it.UOM, it.Comment, it.Category, it.ID, it.OrderID)
	return affected(res, err, "failed to update order item")
}

// SetItemAdminPrice - ручная цена позиции для клиента
func (s *Storage) SetItemAdminPrice(ctx context.Context, orderID, itemID int64, price decimal.NullDecimal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE order_items SET admin_price = $1, is_manual_price = $2 WHERE id = $3 AND order_id = $4`,
		price, price.Valid, itemID, orderID)
	return affected(res, err, "failed to set item price")
}

// ApplyStatusChange записывает новые статусы, если версия заказа не изменилась
func (s *Storage) ApplyStatusChange(ctx context.Context, orderID int64, version int, ch models.StatusChange) (*models.Order, error) {
	var o *models.Order
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		o, err = applyStatus(ctx, tx, orderID, version, ch)
		return err
	})
	return o, err
}

func applyStatus(ctx context.Context, tx *sqlx.Tx, orderID int64, version int, ch models.StatusChange) (*models.Order, error) {
	o := &models.Order{}
	err := tx.GetContext(ctx, o, `
        UPDATE orders SET
            status_admin = $1,
            status_client = $2,
            status_supplier = $3,
            visible_to_client = COALESCE($4, visible_to_client),
            is_manual_processing = COALESCE($5, is_manual_processing),
            refusal_reason = COALESCE($6, refusal_reason),
            status_updated_at = $7,
            version = version + 1
        WHERE id = $8 AND version = $9
        RETURNING *`,
		ch.Admin, ch.Client, ch.Supplier, ch.VisibleToClient, ch.Manual, ch.RefusalReason,
		time.Now().UTC(), orderID, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID); err != nil {
				return nil, errors.Wrap(err, "failed to check order")
			}
			if exists {
				return nil, ErrVersionConflict
			}
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to update order status")
	}

	// Сохраняем новую версию
	if err := saveHistory(ctx, tx, o.ID, o.Version, ch.Event, ch.Actor, o.StatusAdmin, o.StatusClient, o.StatusSupplier); err != nil {
		return nil, err
	}
	return o, nil
}

func saveHistory(ctx context.Context, tx *sqlx.Tx, orderID int64, version int, event, actor, admin, client, supplier string) error {
	_, err := tx.ExecContext(ctx, `
        INSERT INTO order_status_history
            (order_id, version, event, actor, status_admin, status_client, status_supplier)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7)`,
		orderID, version, event, actor, admin, client, supplier)
	return errors.Wrap(err, "failed to save status history")
}

func (s *Storage) GetStatusHistory(ctx context.Context, orderID int64) ([]models.StatusHistory, error) {
	h := []models.StatusHistory{}
	err := s.db.SelectContext(ctx, &h, `
        SELECT * FROM order_status_history
        WHERE order_id = $1
        ORDER BY version, id`, orderID)
	return h, errors.Wrap(err, "failed to get status history")
}

// StatusRows - статусы заказов с числом предложений для счётчиков вкладок
func (s *Storage) StatusRows(ctx context.Context, ownerID uuid.NullUUID) ([]models.StatusRow, error) {
	rows := []models.StatusRow{}
	err := s.db.SelectContext(ctx, &rows, `
        SELECT o.status_admin,
               (SELECT COUNT(*) FROM offers f WHERE f.order_id = o.id) AS offer_count
        FROM orders o
        WHERE $1::uuid IS NULL OR o.owner_id = $1`, ownerID)
	return rows, errors.Wrap(err, "failed to get status rows")
}

// DeleteAllOrders - полный сброс заказов (администратор)
func (s *Storage) DeleteAllOrders(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete orders")
	}
	return res.RowsAffected()
}

// ListOrdersPendingCRM - заказы с отправленным КП без сделки в CRM
func (s *Storage) ListOrdersPendingCRM(ctx context.Context, limit int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, `
        SELECT * FROM orders
        WHERE status_admin = 'КП отправлено' AND bitrix_deal_id = ''
        ORDER BY status_updated_at NULLS FIRST, id
        LIMIT $1`, limit)
	return orders, errors.Wrap(err, "failed to list orders pending CRM")
}

// ClaimOrderForCRM помечает заказ как выгружаемый и возвращает свежую строку.
// nil - сделка уже есть, КП не отправлено или заказ захвачен другим процессом не позже ttl назад.
func (s *Storage) ClaimOrderForCRM(ctx context.Context, orderID int64, ttl time.Duration) (*models.Order, error) {
	order := &models.Order{}
	err := s.db.GetContext(ctx, order, `
        UPDATE orders SET crm_claimed_at = NOW()
        WHERE id = $1
          AND bitrix_deal_id = ''
          AND status_admin = 'КП отправлено'
          AND (crm_claimed_at IS NULL OR crm_claimed_at < NOW() - make_interval(secs => $2))
        RETURNING *`, orderID, ttl.Seconds())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim order for CRM")
	}
	return order, nil
}

func (s *Storage) ReleaseCRMClaim(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE orders SET crm_claimed_at = NULL WHERE id = $1`, orderID)
	return errors.Wrap(err, "failed to release CRM claim")
}

func (s *Storage) SetBitrixDealID(ctx context.Context, orderID int64, dealID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET bitrix_deal_id = $1, crm_claimed_at = NULL WHERE id = $2`, dealID, orderID)
	return affected(res, err, "failed to store deal id")
}

// updateByID - частичное обновление строки через goqu
func (s *Storage) updateByID(ctx context.Context, table string, id int64, rec goqu.Record) error {
	q, args, err := build(s.qb.Update(table).Prepared(true).Set(rec).Where(goqu.C("id").Eq(id)))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	return affected(res, err, "failed to update "+table)
}

// affected: 0 строк - ErrNotFound
func affected(res sql.Result, err error, msg string) error {
	if err != nil {
		return errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
