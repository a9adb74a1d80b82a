package order

import "context"

// Transition is a conditional status change keyed by session id.
// UserID is optional; when set the order must belong to that user.
type Transition struct {
	SessionID string
	UserID    string
	From      Status
	To        Status
}

// Repository defines the interface for order persistence
type Repository interface {
	// CreatePending inserts the order, or returns the existing order when one
	// is already recorded for the same session id.
	CreatePending(ctx context.Context, o *Order) (*Order, error)

	// GetBySessionID returns errors.ErrOrderNotFound when no order exists.
	GetBySessionID(ctx context.Context, sessionID string) (*Order, error)

	// TransitionStatus atomically applies t if the order currently has t.From.
	// applied is false when the guard did not match; the order is then nil.
	TransitionStatus(ctx context.Context, t Transition) (o *Order, applied bool, err error)
}
