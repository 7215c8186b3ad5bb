// Package quote нормализует строки предложения поставщика
package quote

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"partsmarket/models"
)

const DefaultCurrency = models.CurrencyCNY

// Line - строка предложения в том виде, в каком её присылает закупщик
type Line struct {
	OfferItemID     *int64          `json:"offerItemId"`
	OrderItemID     *int64          `json:"orderItemId"`
	Name            string          `json:"name" validate:"required,max=300"`
	OfferedQuantity *int            `json:"offeredQuantity" validate:"omitempty,gte=0"`
	Quantity        int             `json:"quantity" validate:"gte=0"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	DeliveryWeeks   int             `json:"deliveryWeeks" validate:"gte=0"`
	DeliveryDays    int             `json:"deliveryDays" validate:"gte=0"`
	Weight          decimal.Decimal `json:"weight"`
	PhotoURL        string          `json:"photoUrl"`
	Comment         string          `json:"comment"`
	SupplierSKU     string          `json:"supplierSku"`
}

// DeliveryWeeks - срок в неделях: явно заданные недели, иначе дни, округлённые вверх
func DeliveryWeeks(weeks, days int) int {
	if weeks > 0 {
		return weeks
	}
	if days <= 0 {
		return 0
	}
	return (days + 6) / 7
}

// ClientDeliveryWeeks - срок для клиента с надбавкой; nil, если срок не указан
func ClientDeliveryWeeks(weeks, weeksAdd int) *int {
	if weeks <= 0 {
		return nil
	}
	v := weeks + weeksAdd
	return &v
}

// NormalizeCurrency приводит валюту к RUB/USD/CNY; пустая - CNY
func NormalizeCurrency(c string) (string, error) {
	c = strings.ToUpper(strings.TrimSpace(c))
	switch c {
	case "":
		return DefaultCurrency, nil
	case models.CurrencyRUB, models.CurrencyUSD, models.CurrencyCNY:
		return c, nil
	}
	return "", fmt.Errorf("unsupported currency %q", c)
}

// BuildLines превращает присланные строки в строки предложения.
// Количество: предложенное, иначе запрошенное, иначе 1. Срок хранится
// в днях, кратных неделе.
func BuildLines(lines []Line, weeksAdd int) ([]models.OfferItem, error) {
	out := make([]models.OfferItem, 0, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l.Name) == "" {
			return nil, fmt.Errorf("line %d: name is required", i+1)
		}
		if l.Price.IsNegative() {
			return nil, fmt.Errorf("line %d: price must not be negative", i+1)
		}
		currency, err := NormalizeCurrency(l.Currency)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}

		qty := l.Quantity
		if l.OfferedQuantity != nil {
			qty = *l.OfferedQuantity
		} else if qty == 0 {
			qty = 1
		}

		weeks := DeliveryWeeks(l.DeliveryWeeks, l.DeliveryDays)
		item := models.OfferItem{
			OrderItemID:         l.OrderItemID,
			Name:                strings.TrimSpace(l.Name),
			Quantity:            qty,
			Price:               l.Price,
			Currency:            currency,
			DeliveryDays:        weeks * 7,
			Weight:              l.Weight,
			PhotoURL:            l.PhotoURL,
			Comment:             l.Comment,
			SupplierSKU:         l.SupplierSKU,
			ClientDeliveryWeeks: ClientDeliveryWeeks(weeks, weeksAdd),
		}
		if l.OfferItemID != nil {
			item.ID = *l.OfferItemID
		}
		out = append(out, item)
	}
	return out, nil
}
