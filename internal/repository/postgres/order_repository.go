package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, user_id, session_id, total::text, currency, status, created_at, updated_at`

// OrderRepository implements order.Repository using PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// CreatePending inserts o. The unique session_id constraint makes a retried
// checkout for the same session return the order already on record.
func (r *OrderRepository) CreatePending(ctx context.Context, o *order.Order) (*order.Order, error) {
	created, err := r.scanOrder(r.db(ctx).QueryRow(ctx,
		`INSERT INTO orders (id, user_id, session_id, total, currency, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)
		 ON CONFLICT (session_id) DO NOTHING
		 RETURNING `+orderColumns,
		o.ID, o.UserID, o.SessionID, numericString(o.Total), o.Currency, string(o.Status), o.CreatedAt, o.UpdatedAt,
	))
	if errors.Is(err, domainErrors.ErrOrderNotFound) {
		return r.GetBySessionID(ctx, o.SessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return created, nil
}

// GetBySessionID retrieves the order recorded for a checkout session.
func (r *OrderRepository) GetBySessionID(ctx context.Context, sessionID string) (*order.Order, error) {
	o, err := r.scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE session_id = $1`, sessionID))
	if err != nil && !errors.Is(err, domainErrors.ErrOrderNotFound) {
		return nil, fmt.Errorf("get order by session: %w", err)
	}
	return o, err
}

// TransitionStatus is a single compare-and-set statement: the row changes only
// if it still has t.From (and belongs to t.UserID when given). Concurrent
// deliveries of the same event race on the row lock; exactly one sees a row back.
func (r *OrderRepository) TransitionStatus(ctx context.Context, t order.Transition) (*order.Order, bool, error) {
	o, err := r.scanOrder(r.db(ctx).QueryRow(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW()
		 WHERE session_id = $2 AND status = $3 AND ($4 = '' OR user_id = $4)
		 RETURNING `+orderColumns,
		string(t.To), t.SessionID, string(t.From), t.UserID,
	))
	if errors.Is(err, domainErrors.ErrOrderNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("transition order %s -> %s: %w", t.From, t.To, err)
	}
	return o, true, nil
}

func (r *OrderRepository) scanOrder(row scanner) (*order.Order, error) {
	var (
		o      order.Order
		total  string
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.SessionID, &total, &o.Currency, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Total, err = parseNumeric(total)
	if err != nil {
		return nil, err
	}
	o.Status, err = order.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}
	return &o, nil
}
