package db

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"partsmarket/models"
)

// BuyerStats - КП и выигранные позиции закупщиков за период [from, to)
func (s *Storage) BuyerStats(ctx context.Context, from, to time.Time) ([]models.BuyerStat, error) {
	query := `
        SELECT u.id AS user_id,
               u.name,
               COUNT(DISTINCT f.id) AS kp_count,
               COALESCE(SUM(fi.price * fi.quantity), 0) AS kp_sum,
               COUNT(DISTINCT f.id) FILTER (WHERE fi.is_winner) AS won_count,
               COALESCE(SUM(COALESCE(fi.admin_price, fi.price) * fi.quantity) FILTER (WHERE fi.is_winner), 0) AS won_sum
        FROM app_users u
        LEFT JOIN offers f ON f.created_by = u.id AND f.created_at >= $1 AND f.created_at < $2
        LEFT JOIN offer_items fi ON fi.offer_id = f.id
        WHERE u.role = 'buyer'
        GROUP BY u.id, u.name
        ORDER BY u.name`

	stats := []models.BuyerStat{}
	err := s.db.SelectContext(ctx, &stats, query, from, to)
	return stats, errors.Wrap(err, "failed to get buyer stats")
}
