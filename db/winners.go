package db

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"partsmarket/models"
)

// ApproveWinners отмечает выбранные строки предложений победителями,
// переносит цену менеджера в позицию заказа и применяет смену статусов.
// Внутри одной позиции заказа победитель один.
func (s *Storage) ApproveWinners(ctx context.Context, orderID int64, winners []models.Winner, version int, ch models.StatusChange) (*models.Order, error) {
	var order *models.Order
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, w := range winners {
			var orderItemID sql.NullInt64
			err := tx.GetContext(ctx, &orderItemID, `
                SELECT fi.order_item_id
                FROM offer_items fi
                JOIN offers f ON f.id = fi.offer_id
                WHERE fi.id = $1 AND f.order_id = $2`,
				w.OfferItemID, orderID)
			if errors.Is(err, sql.ErrNoRows) {
				return errors.Wrapf(ErrInvalidWinner, "offer item %d", w.OfferItemID)
			}
			if err != nil {
				return errors.Wrap(err, "failed to check winner")
			}

			if orderItemID.Valid {
				_, err = tx.ExecContext(ctx, `
                    UPDATE offer_items SET is_winner = FALSE
                    WHERE order_item_id = $1
                      AND offer_id IN (SELECT id FROM offers WHERE order_id = $2)`,
					orderItemID.Int64, orderID)
				if err != nil {
					return errors.Wrap(err, "failed to reset winners")
				}
			}

			_, err = tx.ExecContext(ctx, `
                UPDATE offer_items SET
                    is_winner = TRUE,
                    admin_price = $1,
                    admin_comment = $2,
                    delivery_rate = $3,
                    client_delivery_weeks = COALESCE($4, client_delivery_weeks)
                WHERE id = $5`,
				w.AdminPrice, w.AdminComment, w.DeliveryRate, w.ClientDeliveryWeeks, w.OfferItemID)
			if err != nil {
				return errors.Wrap(err, "failed to mark winner")
			}

			if orderItemID.Valid && w.AdminPrice.Valid {
				_, err = tx.ExecContext(ctx, `
                    UPDATE order_items SET admin_price = $1
                    WHERE id = $2 AND NOT is_manual_price`,
					w.AdminPrice, orderItemID.Int64)
				if err != nil {
					return errors.Wrap(err, "failed to set item price")
				}
			}
		}

		var err error
		order, err = applyStatus(ctx, tx, orderID, version, ch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ResetWinner снимает отметку победителя со строки предложения
func (s *Storage) ResetWinner(ctx context.Context, offerItemID int64) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE offer_items SET is_winner = FALSE, admin_price = NULL
        WHERE id = $1`, offerItemID)
	return affected(res, err, "failed to reset winner")
}
