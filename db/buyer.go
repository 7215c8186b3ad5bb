package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"partsmarket/internal/workflow"
	"partsmarket/models"
)

const quickBrandsLimit = 7

// ListBuyerLabels - метки закупщика на заказах
func (s *Storage) ListBuyerLabels(ctx context.Context, userID uuid.UUID, orderIDs []int64) ([]models.BuyerLabel, error) {
	labels := []models.BuyerLabel{}
	if len(orderIDs) == 0 {
		return labels, nil
	}
	err := s.db.SelectContext(ctx, &labels, `
        SELECT * FROM buyer_order_labels
        WHERE user_id = $1 AND order_id = ANY($2)`, userID, pq.Array(orderIDs))
	return labels, errors.Wrap(err, "failed to list labels")
}

// ToggleBuyerLabel: тот же цвет снимает метку, другой заменяет, иначе ставит новую.
// Возвращает nil, если метка снята.
func (s *Storage) ToggleBuyerLabel(ctx context.Context, l models.BuyerLabel) (*models.BuyerLabel, error) {
	var out *models.BuyerLabel
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		cur := models.BuyerLabel{}
		err := tx.GetContext(ctx, &cur, `
            SELECT * FROM buyer_order_labels
            WHERE user_id = $1 AND order_id = $2
            FOR UPDATE`, l.UserID, l.OrderID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			out = &l
			err = tx.QueryRowxContext(ctx, `
                INSERT INTO buyer_order_labels (user_id, order_id, color, label_text)
                VALUES ($1, $2, $3, $4)
                RETURNING id`, l.UserID, l.OrderID, l.Color, l.Text).Scan(&out.ID)
			return errors.Wrap(err, "failed to insert label")
		case err != nil:
			return errors.Wrap(err, "failed to get label")
		case cur.Color == l.Color:
			_, err = tx.ExecContext(ctx, `DELETE FROM buyer_order_labels WHERE id = $1`, cur.ID)
			return errors.Wrap(err, "failed to delete label")
		default:
			l.ID = cur.ID
			out = &l
			_, err = tx.ExecContext(ctx, `
                UPDATE buyer_order_labels SET color = $1, label_text = $2 WHERE id = $3`,
				l.Color, l.Text, cur.ID)
			return errors.Wrap(err, "failed to update label")
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QuickBrands - самые частые бренды в свежих открытых заказах без предложения закупщика
func (s *Storage) QuickBrands(ctx context.Context, userID uuid.UUID, since time.Time) ([]string, error) {
	brands := []string{}
	err := s.db.SelectContext(ctx, &brands, `
        SELECT i.brand
        FROM order_items i
        JOIN orders o ON o.id = i.order_id
        WHERE o.status_admin = $1
          AND NOT o.is_archived
          AND o.created_at >= $2
          AND i.brand <> ''
          AND NOT EXISTS (SELECT 1 FROM offers f WHERE f.order_id = o.id AND f.created_by = $3)
        GROUP BY i.brand
        ORDER BY COUNT(*) DESC, i.brand
        LIMIT $4`,
		workflow.StatusInProcessing, since, userID, quickBrandsLimit)
	return brands, errors.Wrap(err, "failed to get quick brands")
}

// BuyerTabCounts считает заказы во всех вкладках закупщика параллельно
func (s *Storage) BuyerTabCounts(ctx context.Context, userID uuid.UUID, hotBefore time.Time) (models.BuyerTabCounts, error) {
	var counts models.BuyerTabCounts
	targets := map[string]*int{
		workflow.BuyerTabNew:       &counts.New,
		workflow.BuyerTabHot:       &counts.Hot,
		workflow.BuyerTabHistory:   &counts.History,
		workflow.BuyerTabWon:       &counts.Won,
		workflow.BuyerTabLost:      &counts.Lost,
		workflow.BuyerTabCancelled: &counts.Cancelled,
	}

	g, ctx := errgroup.WithContext(ctx)
	for tab, dst := range targets {
		f := OrderFilter{
			BuyerID:   uuid.NullUUID{UUID: userID, Valid: true},
			BuyerTab:  tab,
			HotBefore: hotBefore,
		}
		g.Go(func() error {
			n, err := s.CountOrders(ctx, f)
			if err != nil {
				return errors.Wrapf(err, "tab %s", f.BuyerTab)
			}
			*dst = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.BuyerTabCounts{}, err
	}
	return counts, nil
}
