package db

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrOfferExists     = errors.New("offer for this order already exists")
	ErrVersionConflict = errors.New("order was changed by someone else")
	ErrLocked          = errors.New("locked by another user")
	ErrInvalidWinner   = errors.New("offer item does not belong to the order")
	ErrDuplicate       = errors.New("already exists")
)

const dialect = "postgres"

// Storage - доступ к данным маркетплейса
type Storage struct {
	db *sqlx.DB
	qb goqu.DialectWrapper
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db, qb: goqu.Dialect(dialect)}
}

// Ping проверяет соединение с базой
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// querier - общее у *sqlx.DB и *sqlx.Tx
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// withTx выполняет fn в транзакции; при ошибке откатывает
func (s *Storage) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

// notFound превращает sql.ErrNoRows в ErrNotFound, остальное оборачивает
func notFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// isUniqueViolation - нарушение UNIQUE-ограничения
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// build собирает запрос goqu с плейсхолдерами $n
func build(ds interface {
	ToSQL() (string, []interface{}, error)
}) (string, []interface{}, error) {
	q, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to build query")
	}
	return q, args, nil
}
