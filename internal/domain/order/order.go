package order

import (
	"strings"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the order status in the payment state machine
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// transitions lists the only edges an order may take. Paid and failed are terminal.
var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusFailed},
	StatusPaid:    {},
	StatusFailed:  {},
}

// Order is the local record of a checkout session. Exactly one order exists per session.
type Order struct {
	ID        uuid.UUID
	UserID    string
	SessionID string
	Total     decimal.Decimal
	Currency  string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPending creates a pending order for a freshly created checkout session.
func NewPending(userID, sessionID string, total decimal.Decimal, currency string) (*Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.NewValidationError("user_id", "is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.NewValidationError("session_id", "is required")
	}
	if total.IsNegative() {
		return nil, errors.NewValidationError("total", "must not be negative")
	}

	now := time.Now().UTC()
	return &Order{
		ID:        uuid.New(),
		UserID:    userID,
		SessionID: sessionID,
		Total:     total,
		Currency:  strings.ToLower(currency),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// ParseStatus converts a stored status, rejecting values the state machine
// does not know.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", errors.NewValidationError("status", "unknown order status "+s)
	}
	return st, nil
}

// CanTransition checks whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Resolution classifies an attempted transition against the order's current status.
type Resolution int

const (
	// Apply means the transition is allowed and should be persisted.
	Apply Resolution = iota
	// AlreadyApplied means the order already has the target status.
	AlreadyApplied
	// Conflict means the order reached the opposite terminal status.
	Conflict
)

// Resolve classifies moving from current to target.
func Resolve(current, target Status) Resolution {
	switch {
	case current == target:
		return AlreadyApplied
	case CanTransition(current, target):
		return Apply
	default:
		return Conflict
	}
}
