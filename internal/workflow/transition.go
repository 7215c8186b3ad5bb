package workflow

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"partsmarket/models"
)

// События workflow
const (
	EventOfferReceived     = "offer_received"
	EventQuoteReady        = "quote_ready"
	EventQuoteSent         = "quote_sent"
	EventClientReady       = "client_ready"
	EventSupplierConfirmed = "supplier_confirmed"
	EventAwaitingPayment   = "awaiting_payment"
	EventShipped           = "shipped"
	EventDelivered         = "delivered"
	EventRefuse            = "refuse"
	EventAnnul             = "annul"
	EventManual            = "manual"
)

var (
	// ErrTransition - событие недопустимо из текущего статуса
	ErrTransition = errors.New("transition not allowed")
	// ErrReasonRequired - отказ без причины
	ErrReasonRequired = errors.New("refusal reason is required")
	ErrUnknownEvent   = errors.New("unknown workflow event")
)

// Command - запрос на смену статуса
type Command struct {
	Event  string
	Actor  string
	Reason string
}

type transition struct {
	// nil - разрешено из любого нетерминального статуса
	from  []string
	apply func(cmd Command, r Raw, ch *models.StatusChange)
}

func both(label string) func(Command, Raw, *models.StatusChange) {
	return func(_ Command, _ Raw, ch *models.StatusChange) {
		ch.Admin = label
		ch.Client = label
	}
}

func visible(label string) func(Command, Raw, *models.StatusChange) {
	return func(_ Command, _ Raw, ch *models.StatusChange) {
		ch.Admin = label
		ch.Client = label
		ch.VisibleToClient = ptr(true)
	}
}

func refusal(label string) func(Command, Raw, *models.StatusChange) {
	return func(cmd Command, _ Raw, ch *models.StatusChange) {
		ch.Admin = label
		ch.Client = label
		reason := strings.TrimSpace(cmd.Reason)
		ch.RefusalReason = &reason
	}
}

var transitions = map[string]transition{
	EventOfferReceived: {
		apply: func(_ Command, _ Raw, ch *models.StatusChange) { ch.Supplier = RawTrading },
	},
	EventQuoteReady: {
		from:  []string{StatusInProcessing, StatusQuoteSent},
		apply: visible(RawQuoteReady),
	},
	EventQuoteSent: {
		from:  []string{StatusInProcessing, StatusQuoteSent},
		apply: visible(StatusQuoteSent),
	},
	EventClientReady: {
		from:  []string{StatusQuoteSent},
		apply: both(StatusReadyToBuy),
	},
	EventSupplierConfirmed: {
		from:  []string{StatusReadyToBuy, StatusQuoteSent},
		apply: both(StatusSupplierConfirmed),
	},
	EventAwaitingPayment: {
		from:  []string{StatusSupplierConfirmed, StatusReadyToBuy},
		apply: both(StatusAwaitingPayment),
	},
	EventShipped: {
		from:  []string{StatusAwaitingPayment},
		apply: both(StatusInTransit),
	},
	EventDelivered: {
		from:  []string{StatusInTransit},
		apply: both(StatusCompleted),
	},
	EventRefuse: {apply: refusal(StatusRefused)},
	EventAnnul:  {apply: refusal(StatusAnnulled)},
	EventManual: {
		from:  []string{StatusInProcessing},
		apply: func(_ Command, _ Raw, ch *models.StatusChange) {
			ch.Admin = RawManual
			ch.Manual = ptr(true)
		},
	},
}

// RefusalEvent - администратор аннулирует заказ, оператор фиксирует отказ
func RefusalEvent(role string) string {
	if role == models.RoleAdmin {
		return EventAnnul
	}
	return EventRefuse
}

// Apply проверяет событие против текущего итогового статуса и возвращает
// новые значения сырых полей. Поля, которые событие не трогает, переносятся как есть.
func Apply(cmd Command, r Raw) (models.StatusChange, error) {
	t, ok := transitions[cmd.Event]
	if !ok {
		return models.StatusChange{}, errors.Wrap(ErrUnknownEvent, cmd.Event)
	}

	current := Derive(r)
	if !allowed(t.from, current) {
		return models.StatusChange{}, errors.Wrap(ErrTransition, fmt.Sprintf("%s from %q", cmd.Event, current))
	}
	if (cmd.Event == EventRefuse || cmd.Event == EventAnnul) && strings.TrimSpace(cmd.Reason) == "" {
		return models.StatusChange{}, ErrReasonRequired
	}

	ch := models.StatusChange{
		Event:    cmd.Event,
		Actor:    cmd.Actor,
		Admin:    r.Admin,
		Client:   r.Client,
		Supplier: r.Supplier,
	}
	t.apply(cmd, r, &ch)
	return ch, nil
}

// Allowed - список событий, доступных из текущего состояния (для UI)
func Allowed(r Raw) []string {
	current := Derive(r)
	var out []string
	for _, ev := range []string{
		EventOfferReceived, EventQuoteReady, EventQuoteSent, EventClientReady,
		EventSupplierConfirmed, EventAwaitingPayment, EventShipped, EventDelivered,
		EventRefuse, EventAnnul, EventManual,
	} {
		if allowed(transitions[ev].from, current) {
			out = append(out, ev)
		}
	}
	return out
}

func allowed(from []string, current string) bool {
	if IsTerminal(current) {
		return false
	}
	if from == nil {
		return true
	}
	for _, f := range from {
		if f == current {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }
