package cart

import "context"

// Repository defines the interface for cart persistence
type Repository interface {
	// Snapshot reads the user's cart joined with product name and price.
	// An empty cart yields a snapshot with no items, not an error.
	Snapshot(ctx context.Context, userID string) (*Snapshot, error)

	// Clear deletes every cart row for the user. Clearing an empty cart succeeds.
	Clear(ctx context.Context, userID string) error
}
