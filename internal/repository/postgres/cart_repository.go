package postgres

import (
	"context"
	"fmt"

	"github.com/cassiomorais/storefront/internal/domain/cart"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CartRepository implements cart.Repository using PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository creates a new CartRepository.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Snapshot reads the user's cart joined with current product names and prices.
func (r *CartRepository) Snapshot(ctx context.Context, userID string) (*cart.Snapshot, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT ci.product_id, p.name, ci.quantity, p.price::text
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.user_id = $1
		 ORDER BY ci.created_at, ci.product_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	snap := &cart.Snapshot{UserID: userID}
	for rows.Next() {
		var (
			it    cart.Item
			price string
		)
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		if it.UnitPrice, err = parseNumeric(price); err != nil {
			return nil, err
		}
		snap.Items = append(snap.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart: %w", err)
	}
	return snap, nil
}

// Clear deletes every cart row for the user.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.db(ctx).Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
