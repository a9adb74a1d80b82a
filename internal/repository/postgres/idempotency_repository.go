package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyEntry is a stored checkout response, replayed for retried requests.
// A reserved key whose request has not finished has ResponseStatus 0.
type IdempotencyEntry struct {
	Key            string    `db:"key"`
	ResponseBody   string    `db:"response_body"`
	ResponseStatus int       `db:"response_status"`
	CreatedAt      time.Time `db:"created_at"`
	ExpiresAt      time.Time `db:"expires_at"`
}

func (e *IdempotencyEntry) InProgress() bool { return e.ResponseStatus == 0 }

type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

func (r *IdempotencyRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Get returns nil, nil when the key is unknown or expired.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*IdempotencyEntry, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT key, response_body, response_status, created_at, expires_at
		 FROM idempotency_keys WHERE key = $1 AND expires_at > NOW()`, key)
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[IdempotencyEntry])
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("scan idempotency key: %w", err)
	}
	return e, nil
}

// Reserve claims key for a request about to run. An expired row is reclaimed
// in place; a live one is left alone and ErrDuplicateIdempotencyKey returned.
func (r *IdempotencyRepository) Reserve(ctx context.Context, key string, expiresAt time.Time) error {
	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO idempotency_keys (key, response_body, response_status, created_at, expires_at)
		 VALUES ($1, '', 0, NOW(), $2)
		 ON CONFLICT (key) DO UPDATE
		   SET response_body = '',
		       response_status = 0,
		       created_at = NOW(),
		       expires_at = EXCLUDED.expires_at
		   WHERE idempotency_keys.expires_at <= NOW()`,
		key, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("reserve idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrDuplicateIdempotencyKey
	}
	return nil
}

// Complete stores the response for a reserved key.
func (r *IdempotencyRepository) Complete(ctx context.Context, entry *IdempotencyEntry) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE idempotency_keys
		 SET response_body = $2, response_status = $3, expires_at = $4
		 WHERE key = $1 AND response_status = 0`,
		entry.Key, entry.ResponseBody, entry.ResponseStatus, entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete idempotency key %q: %w", entry.Key, domainErrors.ErrLockNotHeld)
	}
	return nil
}

// Release drops a reservation whose request failed, so the client can retry.
func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	_, err := r.db(ctx).Exec(ctx,
		`DELETE FROM idempotency_keys WHERE key = $1 AND response_status = 0`, key)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Cleanup deletes expired keys and reports how many were removed.
func (r *IdempotencyRepository) Cleanup(ctx context.Context) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
