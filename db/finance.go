package db

import (
	"context"

	"github.com/pkg/errors"

	"partsmarket/models"
)

// LatestRates - курсы на последнюю дату
func (s *Storage) LatestRates(ctx context.Context) (*models.ExchangeRates, error) {
	r := &models.ExchangeRates{}
	err := s.db.GetContext(ctx, r, `SELECT * FROM exchange_rates ORDER BY date DESC LIMIT 1`)
	if err != nil {
		return nil, notFound(err, "failed to get rates")
	}
	return r, nil
}

// UpsertRates сохраняет курсы на дату, перезаписывая существующие
func (s *Storage) UpsertRates(ctx context.Context, r models.ExchangeRates) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO exchange_rates (date, cny_rub, cny_usd, delivery_kg_usd, markup_percent, delivery_weeks_add)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (date) DO UPDATE SET
            cny_rub = EXCLUDED.cny_rub,
            cny_usd = EXCLUDED.cny_usd,
            delivery_kg_usd = EXCLUDED.delivery_kg_usd,
            markup_percent = EXCLUDED.markup_percent,
            delivery_weeks_add = EXCLUDED.delivery_weeks_add`,
		r.Date, r.CNYRUB, r.CNYUSD, r.DeliveryKgUSD, r.MarkupPercent, r.DeliveryWeeksAdd)
	return errors.Wrap(err, "failed to save rates")
}
