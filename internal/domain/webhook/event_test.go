package webhook

import (
	"testing"

	"github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/stretchr/testify/assert"
)

func TestEventKinds(t *testing.T) {
	events := []struct {
		event Event
		kind  Kind
		id    string
	}{
		{CheckoutCompleted{ID: "evt_1", SessionID: "sess_abc"}, KindCheckoutCompleted, "evt_1"},
		{PaymentFailed{ID: "evt_2", SessionID: "sess_abc"}, KindPaymentFailed, "evt_2"},
		{Unknown{ID: "evt_3", Type: "customer.created"}, KindUnknown, "evt_3"},
	}

	for _, tt := range events {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.event.Kind())
			assert.Equal(t, tt.id, tt.event.EventID())
		})
	}
}

func TestValidate_MissingSession(t *testing.T) {
	assert.ErrorIs(t, CheckoutCompleted{ID: "evt_1"}.Validate(), errors.ErrValidationFailed)
	assert.ErrorIs(t, PaymentFailed{ID: "evt_1"}.Validate(), errors.ErrValidationFailed)

	assert.NoError(t, CheckoutCompleted{SessionID: "sess_abc"}.Validate())
	assert.NoError(t, PaymentFailed{SessionID: "sess_abc"}.Validate())
}
