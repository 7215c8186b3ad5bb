// Package telemetry - счётчики OpenTelemetry для фоновых и агрегирующих компонентов
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const MeterName = "partsmarket"

// Названия счётчиков
const (
	OrphanOffers    = "partsmarket.assembly.orphan_offers"
	LeaseContention = "partsmarket.lease.contention"
	MailIngested    = "partsmarket.mail.ingested"
	CRMSynced       = "partsmarket.crm.synced"
	CRMFailed       = "partsmarket.crm.failed"
)

// Metrics держит счётчики сервиса. Нулевой *Metrics ничего не пишет.
type Metrics struct {
	counters map[string]metric.Int64Counter
}

// New создаёт счётчики на переданном meter
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{counters: make(map[string]metric.Int64Counter)}
	for name, desc := range map[string]string{
		OrphanOffers:    "Offers whose parent order was not found during aggregation",
		LeaseContention: "Mutation lease acquisitions rejected because the lease is held",
		MailIngested:    "Order request e-mails stored from the mailbox",
		CRMSynced:       "Orders pushed to CRM as deals",
		CRMFailed:       "Failed CRM deal synchronisations",
	} {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			return nil, err
		}
		m.counters[name] = c
	}
	return m, nil
}

// Global - счётчики на глобальном MeterProvider; при ошибке возвращает no-op
func Global() *Metrics {
	m, err := New(otel.Meter(MeterName))
	if err != nil {
		m, _ = New(noop.NewMeterProvider().Meter(MeterName))
	}
	return m
}

// Add увеличивает счётчик name на n с атрибутами kv (ключ, значение, ключ, значение...)
func (m *Metrics) Add(ctx context.Context, name string, n int64, kv ...string) {
	if m == nil || n == 0 {
		return
	}
	c, ok := m.counters[name]
	if !ok {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}
