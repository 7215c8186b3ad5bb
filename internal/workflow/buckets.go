package workflow

import (
	"time"

	"partsmarket/models"
)

// Вкладки оператора
const (
	BucketManual     = "manual"
	BucketTrading    = "trading"
	BucketProcessing = "processing"
	BucketProcessed  = "processed"
	BucketArchive    = "archive"
)

// OperatorBucket раскладывает заказ по вкладкам оператора. Пустая строка -
// заказ не попадает ни в одну вкладку.
func OperatorBucket(statusAdmin string, offerCount int) string {
	switch statusAdmin {
	case RawManual:
		return BucketManual
	case StatusInProcessing:
		if offerCount > 0 {
			return BucketTrading
		}
		return BucketProcessing
	case RawQuoteReady:
		return BucketProcessed
	case RawArchive, StatusAnnulled, StatusRefused, StatusQuoteSent, StatusCompleted, RawManualDone:
		return BucketArchive
	}
	return ""
}

// OperatorCounts считает заказы по вкладкам оператора
func OperatorCounts(rows []models.StatusRow) map[string]int {
	counts := map[string]int{
		BucketManual: 0, BucketTrading: 0, BucketProcessing: 0, BucketProcessed: 0, BucketArchive: 0,
	}
	for _, r := range rows {
		if b := OperatorBucket(r.StatusAdmin, r.OfferCount); b != "" {
			counts[b]++
		}
	}
	return counts
}

// Вкладки администратора и статусы, которые в них попадают
var adminTabs = map[string][]string{
	"new":                {StatusInProcessing},
	"kp_sent":            {RawQuoteReady},
	"ready_to_buy":       {StatusQuoteSent, StatusReadyToBuy},
	"supplier_confirmed": {StatusSupplierConfirmed},
	"awaiting_payment":   {StatusAwaitingPayment},
	"in_transit":         {StatusInTransit},
	"completed":          {StatusCompleted},
	"annulled":           {StatusAnnulled},
	"refused":            {StatusRefused},
}

// AdminTabStatuses возвращает статусы вкладки администратора
func AdminTabStatuses(tab string) ([]string, bool) {
	s, ok := adminTabs[tab]
	return s, ok
}

// AdminTabCounts считает заказы по вкладкам администратора
func AdminTabCounts(rows []models.StatusRow) map[string]int {
	byStatus := make(map[string]string)
	counts := make(map[string]int, len(adminTabs))
	for tab, statuses := range adminTabs {
		counts[tab] = 0
		for _, s := range statuses {
			byStatus[s] = tab
		}
	}
	for _, r := range rows {
		if tab, ok := byStatus[r.StatusAdmin]; ok {
			counts[tab]++
		}
	}
	return counts
}

// View - то, что нужно для вычисления статуса в списке
type View struct {
	StatusAdmin string
	CreatedAt   time.Time
	OfferCount  int
	// Список смотрит оператор-владелец заказа
	OwnerView bool
}

// DisplayStatus - статус для строки списка: «ГОРИТ» для зависших без
// предложений заказов, «Идут торги» для владельца, если предложения есть.
func DisplayStatus(v View, now time.Time, hotAfter time.Duration) string {
	if v.StatusAdmin != StatusInProcessing {
		return v.StatusAdmin
	}
	if v.OwnerView && v.OfferCount > 0 {
		return RawTrading
	}
	if !v.OwnerView && v.OfferCount == 0 && v.CreatedAt.Before(now.Add(-hotAfter)) {
		return RawHot
	}
	return v.StatusAdmin
}

// Вкладки закупщика
const (
	BuyerTabNew       = "new"
	BuyerTabHot       = "hot"
	BuyerTabHistory   = "history"
	BuyerTabWon       = "won"
	BuyerTabLost      = "lost"
	BuyerTabCancelled = "cancelled"
)

func IsBuyerTab(tab string) bool {
	switch tab {
	case BuyerTabNew, BuyerTabHot, BuyerTabHistory, BuyerTabWon, BuyerTabLost, BuyerTabCancelled:
		return true
	}
	return false
}

// Derived заполняет вычисляемые поля заказа
func Derived(o *models.Order) {
	r := RawOf(*o)
	o.WorkflowStatus = Derive(r)
	o.IsProcessed = IsQuoteReady(r)
	o.ReadyToBuy = IsReadyToBuy(r)
	o.IsRefused = IsRefused(r)
}

// RawOf достаёт сырые статусы из заказа
func RawOf(o models.Order) Raw {
	return Raw{Admin: o.StatusAdmin, Client: o.StatusClient, Supplier: o.StatusSupplier}
}
