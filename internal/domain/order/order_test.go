package order_test

import (
	"testing"

	"github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPending_Valid(t *testing.T) {
	o, err := order.NewPending("u1", "sess_abc", decimal.RequireFromString("119.97"), "USD")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, "sess_abc", o.SessionID)
	assert.Equal(t, "usd", o.Currency)
	assert.Equal(t, "119.97", o.Total.StringFixed(2))
	assert.False(t, o.CreatedAt.IsZero())
}

func TestNewPending_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		session string
		total   decimal.Decimal
		field   string
	}{
		{"missing user", "", "sess_1", decimal.NewFromInt(1), "user_id"},
		{"blank user", "   ", "sess_1", decimal.NewFromInt(1), "user_id"},
		{"missing session", "u1", "", decimal.NewFromInt(1), "session_id"},
		{"negative total", "u1", "sess_1", decimal.NewFromInt(-1), "total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := order.NewPending(tt.userID, tt.session, tt.total, "usd")
			var ve *errors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to order.Status
		allowed  bool
	}{
		{order.StatusPending, order.StatusPaid, true},
		{order.StatusPending, order.StatusFailed, true},
		{order.StatusPaid, order.StatusFailed, false},
		{order.StatusFailed, order.StatusPaid, false},
		{order.StatusPaid, order.StatusPending, false},
		{order.StatusFailed, order.StatusPending, false},
		{order.StatusPaid, order.StatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, order.CanTransition(tt.from, tt.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := order.ParseStatus("paid")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, st)

	_, err = order.ParseStatus("refunded")
	assert.ErrorIs(t, err, errors.ErrValidationFailed)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, order.Apply, order.Resolve(order.StatusPending, order.StatusPaid))
	assert.Equal(t, order.Apply, order.Resolve(order.StatusPending, order.StatusFailed))
	assert.Equal(t, order.AlreadyApplied, order.Resolve(order.StatusPaid, order.StatusPaid))
	assert.Equal(t, order.AlreadyApplied, order.Resolve(order.StatusFailed, order.StatusFailed))
	assert.Equal(t, order.Conflict, order.Resolve(order.StatusPaid, order.StatusFailed))
	assert.Equal(t, order.Conflict, order.Resolve(order.StatusFailed, order.StatusPaid))
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, order.StatusPending.IsTerminal())
	assert.True(t, order.StatusPaid.IsTerminal())
	assert.True(t, order.StatusFailed.IsTerminal())
}
