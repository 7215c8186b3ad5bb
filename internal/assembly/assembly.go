// Package assembly собирает предложения поставщиков в заказы
package assembly

import (
	"context"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"partsmarket/internal/telemetry"
	"partsmarket/internal/workflow"
	"partsmarket/models"
)

// Result - заказы с прикреплёнными предложениями и предложения без заказа
type Result struct {
	Orders  []models.Order
	Orphans []models.Offer
}

// Attach прикрепляет каждое предложение к родительскому заказу за один проход.
// Видимость предложения для клиента берётся из флага обработки заказа.
// Предложение с неизвестным order_id ни в один заказ не попадает: оно
// возвращается в Orphans, пишется в лог и учитывается в счётчике.
func Attach(ctx context.Context, orders []models.Order, offers []models.Offer, m *telemetry.Metrics) Result {
	byID := make(map[int64]int, len(orders))
	for i := range orders {
		workflow.Derived(&orders[i])
		orders[i].Offers = make([]models.Offer, 0)
		byID[orders[i].ID] = i
	}

	var res Result
	for _, of := range offers {
		idx, ok := byID[of.OrderID]
		if !ok {
			res.Orphans = append(res.Orphans, of)
			continue
		}
		parent := &orders[idx]
		of.VisibleToClient = parent.IsProcessed
		parent.Offers = append(parent.Offers, of)
	}

	for _, of := range res.Orphans {
		log.Warn().
			Int64("offer_id", of.ID).
			Int64("order_id", of.OrderID).
			Str("supplier", of.SupplierName).
			Msg("Offer references unknown order")
		m.Add(ctx, telemetry.OrphanOffers, 1, "order_id", strconv.FormatInt(of.OrderID, 10))
	}

	res.Orders = orders
	return res
}

// SortForClient - сначала обработанные заказы, внутри группы новые выше
func SortForClient(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if a.IsProcessed != b.IsProcessed {
			return a.IsProcessed
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// ItemsByOrder раскладывает позиции по заказам, сохраняя порядок
func ItemsByOrder(orders []models.Order, items []models.OrderItem) {
	byID := make(map[int64]int, len(orders))
	for i := range orders {
		byID[orders[i].ID] = i
		orders[i].Items = make([]models.OrderItem, 0)
	}
	for _, it := range items {
		if idx, ok := byID[it.OrderID]; ok {
			orders[idx].Items = append(orders[idx].Items, it)
		}
	}
}

// LinesByOffer раскладывает строки по предложениям
func LinesByOffer(offers []models.Offer, lines []models.OfferItem) {
	byID := make(map[int64]int, len(offers))
	for i := range offers {
		byID[offers[i].ID] = i
	}
	for _, l := range lines {
		if idx, ok := byID[l.OfferID]; ok {
			offers[idx].Items = append(offers[idx].Items, l)
		}
	}
}
