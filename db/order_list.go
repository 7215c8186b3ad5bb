package db

import (
	"context"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"partsmarket/internal/workflow"
	"partsmarket/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// OrderFilter - параметры списка заказов
type OrderFilter struct {
	Search      string
	Statuses    []string
	Phone       string
	Brands      []string
	OwnerID     uuid.NullUUID
	OperatorTab string

	// Вкладка закупщика считается относительно BuyerID
	BuyerID   uuid.NullUUID
	BuyerTab  string
	HotBefore time.Time

	IncludeArchived bool
	Sort            string
	Desc            bool
	Page            int
	Limit           int
}

var sortColumns = map[string]string{
	"id":                "o.id",
	"created_at":        "o.created_at",
	"client_name":       "o.client_name",
	"status":            "o.status_admin",
	"deadline":          "o.deadline",
	"status_updated_at": "o.status_updated_at",
}

// Normalize приводит страницу и лимит к допустимым значениям
func (f *OrderFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if _, ok := sortColumns[f.Sort]; !ok {
		f.Sort = "created_at"
		f.Desc = true
	}
}

// ListOrders - страница заказов с числом предложений
func (s *Storage) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	q, args, err := s.listQuery(f)
	if err != nil {
		return nil, err
	}
	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders, q, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list orders")
	}
	return orders, nil
}

func (s *Storage) listQuery(f OrderFilter) (string, []interface{}, error) {
	f.Normalize()

	col := goqu.I(sortColumns[f.Sort])
	order := []exp.OrderedExpression{col.Asc().NullsLast(), goqu.I("o.id").Asc()}
	if f.Desc {
		order = []exp.OrderedExpression{col.Desc().NullsLast(), goqu.I("o.id").Desc()}
	}

	return build(s.qb.From(goqu.T("orders").As("o")).
		Select(goqu.I("o.*"), offerCount().As("offer_count")).
		Where(s.orderConditions(f)...).
		Order(order...).
		Limit(uint(f.Limit)).
		Offset(uint((f.Page - 1) * f.Limit)).
		Prepared(true))
}

// CountOrders - число заказов под фильтром без учёта страницы
func (s *Storage) CountOrders(ctx context.Context, f OrderFilter) (int, error) {
	ds := s.qb.From(goqu.T("orders").As("o")).
		Select(goqu.COUNT(goqu.Star())).
		Where(s.orderConditions(f)...).
		Prepared(true)

	q, args, err := build(ds)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.GetContext(ctx, &n, q, args...)
	return n, errors.Wrap(err, "failed to count orders")
}

func offerCount() exp.LiteralExpression {
	return goqu.L("(SELECT COUNT(*) FROM offers f WHERE f.order_id = o.id)")
}

func (s *Storage) orderConditions(f OrderFilter) []exp.Expression {
	var where []exp.Expression

	if !f.IncludeArchived {
		where = append(where, goqu.I("o.is_archived").IsFalse())
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		p := "%" + q + "%"
		items := s.qb.From(goqu.T("order_items").As("i")).Select(goqu.L("1")).Where(
			goqu.I("i.order_id").Eq(goqu.I("o.id")),
			goqu.Or(
				goqu.I("i.name").ILike(p),
				goqu.I("i.brand").ILike(p),
				goqu.I("i.article").ILike(p),
			),
		)
		where = append(where, goqu.Or(
			goqu.L("o.id::text = ?", q),
			goqu.I("o.client_name").ILike(p),
			goqu.I("o.client_phone").ILike(p),
			goqu.I("o.client_email").ILike(p),
			goqu.I("o.vin").ILike(p),
			goqu.L("EXISTS ?", items),
		))
	}
	if len(f.Statuses) > 0 {
		where = append(where, goqu.I("o.status_admin").In(f.Statuses))
	}
	if f.Phone != "" {
		where = append(where, goqu.I("o.client_phone").Eq(f.Phone))
	}
	if len(f.Brands) > 0 {
		brands := s.qb.From(goqu.T("order_items").As("i")).Select(goqu.L("1")).Where(
			goqu.I("i.order_id").Eq(goqu.I("o.id")),
			goqu.I("i.brand").In(f.Brands),
		)
		where = append(where, goqu.L("EXISTS ?", brands))
	}
	if f.OwnerID.Valid {
		where = append(where, goqu.I("o.owner_id").Eq(f.OwnerID.UUID))
	}
	if f.OperatorTab != "" {
		where = append(where, operatorTab(f.OperatorTab))
	}
	if f.BuyerTab != "" && f.BuyerID.Valid {
		where = append(where, s.buyerTab(f.BuyerTab, f.BuyerID.UUID, f.HotBefore))
	}
	return where
}

func operatorTab(tab string) exp.Expression {
	status := goqu.I("o.status_admin")
	switch tab {
	case workflow.BucketManual:
		return status.Eq(workflow.RawManual)
	case workflow.BucketTrading:
		return goqu.And(status.Eq(workflow.StatusInProcessing), offerCount().Gt(0))
	case workflow.BucketProcessing:
		return goqu.And(status.Eq(workflow.StatusInProcessing), offerCount().Eq(0))
	case workflow.BucketProcessed:
		return status.Eq(workflow.RawQuoteReady)
	case workflow.BucketArchive:
		return status.In(workflow.RawArchive, workflow.StatusAnnulled, workflow.StatusRefused,
			workflow.StatusQuoteSent, workflow.StatusCompleted, workflow.RawManualDone)
	}
	return goqu.L("FALSE")
}

// buyerTab - условие вкладки закупщика
func (s *Storage) buyerTab(tab string, buyer uuid.UUID, hotBefore time.Time) exp.Expression {
	mine := s.qb.From(goqu.T("offers").As("f")).Select(goqu.L("1")).Where(
		goqu.I("f.order_id").Eq(goqu.I("o.id")),
		goqu.I("f.created_by").Eq(buyer),
	)
	won := s.qb.From(goqu.T("offers").As("f")).
		Join(goqu.T("offer_items").As("fi"), goqu.On(goqu.I("fi.offer_id").Eq(goqu.I("f.id")))).
		Select(goqu.L("1")).
		Where(
			goqu.I("f.order_id").Eq(goqu.I("o.id")),
			goqu.I("f.created_by").Eq(buyer),
			goqu.I("fi.is_winner").IsTrue(),
		)

	open := goqu.I("o.status_admin").Eq(workflow.StatusInProcessing)
	cancelled := goqu.Or(
		goqu.I("o.status_admin").In(workflow.StatusRefused, workflow.StatusAnnulled),
		goqu.I("o.status_client").Eq(workflow.StatusRefused),
	)

	switch tab {
	case workflow.BuyerTabNew:
		return goqu.And(open, goqu.L("NOT EXISTS ?", mine), goqu.I("o.created_at").Gte(hotBefore))
	case workflow.BuyerTabHot:
		return goqu.And(open, goqu.L("NOT EXISTS ?", mine), goqu.I("o.created_at").Lt(hotBefore))
	case workflow.BuyerTabHistory:
		return goqu.And(open, goqu.L("EXISTS ?", mine))
	case workflow.BuyerTabWon:
		return goqu.L("EXISTS ?", won)
	case workflow.BuyerTabLost:
		return goqu.And(
			goqu.I("o.status_admin").Neq(workflow.StatusInProcessing),
			goqu.L("EXISTS ?", mine),
			goqu.L("NOT EXISTS ?", won),
			goqu.L("NOT (?)", cancelled),
		)
	case workflow.BuyerTabCancelled:
		return goqu.And(cancelled, goqu.L("EXISTS ?", mine))
	}
	return goqu.L("FALSE")
}
