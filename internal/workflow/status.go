// Package workflow описывает статусы заказа: вывод единого статуса из трёх
// сырых полей, допустимые переходы и счётчики по вкладкам.
package workflow

// Итоговые статусы заказа
const (
	StatusAnnulled          = "Аннулирован"
	StatusRefused           = "Отказ"
	StatusCompleted         = "Выполнен"
	StatusInTransit         = "В пути"
	StatusAwaitingPayment   = "Ожидает оплаты"
	StatusReadyToBuy        = "Готов купить"
	StatusSupplierConfirmed = "Подтверждение от поставщика"
	StatusQuoteSent         = "КП отправлено"
	StatusInProcessing      = "В обработке"
)

// Сырые значения, которые встречаются в полях статусов, но не являются итоговыми
const (
	RawQuoteReady = "КП готово"
	RawManual     = "Ручная обработка"
	RawManualDone = "Обработано вручную"
	RawArchive    = "Архив"
	RawTrading    = "Идут торги"
	RawOpen       = "ОТКРЫТ"
	RawHot        = "ГОРИТ"
)

// Raw - три поля статусов в том виде, в каком они хранятся в заказе.
// Supplier в выводе итогового статуса не участвует.
type Raw struct {
	Admin    string
	Client   string
	Supplier string
}

type rule struct {
	label string
	match func(Raw) bool
}

// Порядок важен: срабатывает первое совпадение
var rules = []rule{
	{StatusAnnulled, func(r Raw) bool { return r.Admin == StatusAnnulled }},
	{StatusRefused, func(r Raw) bool { return r.Admin == StatusRefused || r.Client == StatusRefused }},
	{StatusCompleted, func(r Raw) bool { return r.Admin == StatusCompleted || r.Client == StatusCompleted }},
	{StatusInTransit, func(r Raw) bool { return r.Admin == StatusInTransit }},
	{StatusAwaitingPayment, func(r Raw) bool { return r.Admin == StatusAwaitingPayment }},
	{StatusReadyToBuy, func(r Raw) bool { return r.Admin == StatusReadyToBuy }},
	{StatusSupplierConfirmed, func(r Raw) bool { return r.Client == StatusSupplierConfirmed }},
	{StatusQuoteSent, IsQuoteReady},
}

// Derive возвращает итоговый статус заказа. Функция тотальна: для любых
// входных строк результат - один из Labels().
func Derive(r Raw) string {
	for _, rl := range rules {
		if rl.match(r) {
			return rl.label
		}
	}
	return StatusInProcessing
}

// Labels перечисляет все итоговые статусы в порядке приоритета
func Labels() []string {
	out := make([]string, 0, len(rules)+1)
	for _, rl := range rules {
		out = append(out, rl.label)
	}
	return append(out, StatusInProcessing)
}

// IsQuoteReady - заказ обработан: КП сформировано или отправлено клиенту
func IsQuoteReady(r Raw) bool {
	return r.Admin == StatusQuoteSent || r.Client == RawQuoteReady
}

func IsReadyToBuy(r Raw) bool {
	return r.Admin == StatusReadyToBuy || r.Client == StatusSupplierConfirmed
}

func IsRefused(r Raw) bool {
	return r.Admin == StatusRefused || r.Client == StatusRefused || r.Admin == StatusAnnulled
}

// IsTerminal - из этого статуса переходов нет
func IsTerminal(label string) bool {
	switch label {
	case StatusAnnulled, StatusRefused, StatusCompleted:
		return true
	}
	return false
}
