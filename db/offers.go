package db

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"partsmarket/internal/assembly"
	"partsmarket/models"
)

const offerStatusActive = "Активно"

// CreateOffer сохраняет предложение со строками и применяет к заказу
// смену статусов. Второе предложение того же поставщика - ErrOfferExists.
func (s *Storage) CreateOffer(ctx context.Context, offer *models.Offer, version int, ch models.StatusChange) (*models.Order, error) {
	if offer.Status == "" {
		offer.Status = offerStatusActive
	}

	var order *models.Order
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		err := tx.GetContext(ctx, &exists, `
            SELECT EXISTS (SELECT 1 FROM offers WHERE order_id = $1 AND supplier_name = $2)`,
			offer.OrderID, offer.SupplierName)
		if err != nil {
			return errors.Wrap(err, "failed to check offer")
		}
		if exists {
			return ErrOfferExists
		}

		err = tx.QueryRowxContext(ctx, `
            INSERT INTO offers (order_id, supplier_name, supplier_phone, created_by, status)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING id, created_at`,
			offer.OrderID, offer.SupplierName, offer.SupplierPhone, offer.CreatedBy, offer.Status).
			Scan(&offer.ID, &offer.CreatedAt)
		if isUniqueViolation(err) {
			return ErrOfferExists
		}
		if err != nil {
			return errors.Wrap(err, "failed to insert offer")
		}

		for i := range offer.Items {
			offer.Items[i].ID = 0
			offer.Items[i].OfferID = offer.ID
			if err := upsertOfferItem(ctx, tx, &offer.Items[i]); err != nil {
				return err
			}
		}

		order, err = applyStatus(ctx, tx, offer.OrderID, version, ch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

const insertOfferItem = `
        INSERT INTO offer_items
            (offer_id, order_item_id, name, quantity, price, currency, delivery_days,
             weight, photo_url, comment, supplier_sku, client_delivery_weeks)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (offer_id, order_item_id) DO UPDATE SET
            name = EXCLUDED.name,
            quantity = EXCLUDED.quantity,
            price = EXCLUDED.price,
            currency = EXCLUDED.currency,
            delivery_days = EXCLUDED.delivery_days,
            weight = EXCLUDED.weight,
            photo_url = EXCLUDED.photo_url,
            comment = EXCLUDED.comment,
            supplier_sku = EXCLUDED.supplier_sku,
            client_delivery_weeks = EXCLUDED.client_delivery_weeks
        RETURNING id`

// Строка с известным id правится на месте: у ручных строк order_item_id NULL,
// и ON CONFLICT по ним никогда не срабатывает
const updateOfferItem = `
        UPDATE offer_items SET
            order_item_id = $2,
            name = $3,
            quantity = $4,
            price = $5,
            currency = $6,
            delivery_days = $7,
            weight = $8,
            photo_url = $9,
            comment = $10,
            supplier_sku = $11,
            client_delivery_weeks = $12
        WHERE offer_id = $1 AND id = $13
        RETURNING id`

// offerItemQuery выбирает запрос сохранения строки предложения
func offerItemQuery(it *models.OfferItem) (string, []interface{}) {
	args := []interface{}{
		it.OfferID, it.OrderItemID, it.Name, it.Quantity, it.Price, it.Currency, it.DeliveryDays,
		it.Weight, it.PhotoURL, it.Comment, it.SupplierSKU, it.ClientDeliveryWeeks,
	}
	if it.ID != 0 {
		return updateOfferItem, append(args, it.ID)
	}
	return insertOfferItem, args
}

func upsertOfferItem(ctx context.Context, tx *sqlx.Tx, it *models.OfferItem) error {
	query, args := offerItemQuery(it)
	err := tx.QueryRowxContext(ctx, query, args...).Scan(&it.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, "offer item %d", it.ID)
	}
	return errors.Wrap(err, "failed to save offer item")
}

// LatestDeliveryWeeksAdd - надбавка к сроку поставки из последних курсов
func (s *Storage) LatestDeliveryWeeksAdd(ctx context.Context) (int, error) {
	var add int
	err := s.db.GetContext(ctx, &add, `
        SELECT COALESCE((SELECT delivery_weeks_add FROM exchange_rates ORDER BY date DESC LIMIT 1), 0)`)
	return add, errors.Wrap(err, "failed to get delivery weeks add")
}

func (s *Storage) GetOffer(ctx context.Context, id int64) (*models.Offer, error) {
	offer := &models.Offer{}
	if err := s.db.GetContext(ctx, offer, `SELECT * FROM offers WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "failed to get offer")
	}
	items := []models.OfferItem{}
	err := s.db.SelectContext(ctx, &items, `SELECT * FROM offer_items WHERE offer_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get offer items")
	}
	offer.Items = items
	return offer, nil
}

// ListOffersByOrders - предложения со строками для набора заказов, по id
func (s *Storage) ListOffersByOrders(ctx context.Context, orderIDs []int64) ([]models.Offer, error) {
	offers := []models.Offer{}
	if len(orderIDs) == 0 {
		return offers, nil
	}
	err := s.db.SelectContext(ctx, &offers,
		`SELECT * FROM offers WHERE order_id = ANY($1) ORDER BY id`, pq.Array(orderIDs))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list offers")
	}
	if len(offers) == 0 {
		return offers, nil
	}

	ids := make([]int64, len(offers))
	for i, o := range offers {
		ids[i] = o.ID
	}
	lines := []models.OfferItem{}
	err = s.db.SelectContext(ctx, &lines,
		`SELECT * FROM offer_items WHERE offer_id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list offer items")
	}
	assembly.LinesByOffer(offers, lines)
	return offers, nil
}

// UpdateOffer - правка предложения поставщиком; снимает блокировку
func (s *Storage) UpdateOffer(ctx context.Context, offer *models.Offer) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
            UPDATE offers
            SET supplier_phone = $1, status = $2, locked_at = NULL
            WHERE id = $3`,
			offer.SupplierPhone, offer.Status, offer.ID)
		if err := affected(res, err, "failed to update offer"); err != nil {
			return err
		}
		for i := range offer.Items {
			offer.Items[i].OfferID = offer.ID
			if err := upsertOfferItem(ctx, tx, &offer.Items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateOfferItem - правка строки предложения менеджером
func (s *Storage) UpdateOfferItem(ctx context.Context, itemID int64, upd models.OfferItemUpdate) error {
	rec := goqu.Record{}
	if upd.AdminComment != nil {
		rec["admin_comment"] = *upd.AdminComment
	}
	if upd.AdminPrice.Valid {
		rec["admin_price"] = upd.AdminPrice.Decimal.String()
	}
	if upd.Currency != nil {
		rec["currency"] = *upd.Currency
	}
	if upd.DeliveryDays != nil {
		rec["delivery_days"] = *upd.DeliveryDays
	}
	if upd.SupplierSKU != nil {
		rec["supplier_sku"] = *upd.SupplierSKU
	}
	if len(rec) == 0 {
		return nil
	}
	return s.updateByID(ctx, "offer_items", itemID, rec)
}
