package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/cassiomorais/storefront/internal/domain/webhook"
	"github.com/cassiomorais/storefront/internal/testutil"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitEffects(t *testing.T, h *harness) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.effects.Wait(ctx))
}

func completed(sessionID, userID string) webhook.CheckoutCompleted {
	return webhook.CheckoutCompleted{ID: "evt_" + sessionID, SessionID: sessionID, UserID: userID, CustomerEmail: "buyer@example.com"}
}

func failed(sessionID, userID string) webhook.PaymentFailed {
	return webhook.PaymentFailed{ID: "evt_f_" + sessionID, SessionID: sessionID, UserID: userID, Reason: "card_declined"}
}

func TestReconciler_Transitions(t *testing.T) {
	tests := []struct {
		name        string
		initial     order.Status
		event       string
		wantOutcome Outcome
		wantStatus  order.Status
	}{
		{"pending to paid", order.StatusPending, "paid", OutcomeApplied, order.StatusPaid},
		{"pending to failed", order.StatusPending, "failed", OutcomeApplied, order.StatusFailed},
		{"paid again is a noop", order.StatusPaid, "paid", OutcomeNoop, order.StatusPaid},
		{"failed again is a noop", order.StatusFailed, "failed", OutcomeNoop, order.StatusFailed},
		{"failure after payment is rejected", order.StatusPaid, "failed", OutcomeRejected, order.StatusPaid},
		{"payment after failure is rejected", order.StatusFailed, "paid", OutcomeRejected, order.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.orders.AddOrder(testutil.NewTestOrder("user-1", "cs_1", tt.initial))

			var (
				outcome Outcome
				err     error
			)
			if tt.event == "paid" {
				outcome, err = h.reconciler.MarkPaid(context.Background(), completed("cs_1", "user-1"))
			} else {
				outcome, err = h.reconciler.MarkFailed(context.Background(), failed("cs_1", "user-1"))
			}
			require.NoError(t, err)
			waitEffects(t, h)

			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Equal(t, tt.wantStatus, h.orders.Status("cs_1"))
		})
	}
}

func TestReconciler_TerminalConflictIsCounted(t *testing.T) {
	h := newHarness(t)
	h.orders.AddOrder(testutil.NewTestOrder("user-1", "cs_1", order.StatusPaid))

	_, err := h.reconciler.MarkFailed(context.Background(), failed("cs_1", "user-1"))
	require.NoError(t, err)
	assert.Equal(t, float64(1), promtestutil.ToFloat64(h.metrics.OrderAnomaliesTotal.WithLabelValues("terminal_conflict")))
}

func TestReconciler_UserMismatchLeavesOrderAlone(t *testing.T) {
	h := newHarness(t)
	h.orders.AddOrder(testutil.NewTestOrder("user-1", "cs_1", order.StatusPending))
	h.carts.SetCart("user-1", testutil.PhoneRepairCart()...)

	outcome, err := h.reconciler.MarkPaid(context.Background(), completed("cs_1", "intruder"))
	require.NoError(t, err)
	waitEffects(t, h)

	assert.Equal(t, OutcomeRejected, outcome)
	assert.Equal(t, order.StatusPending, h.orders.Status("cs_1"))
	assert.Equal(t, 2, h.carts.ItemCount("user-1"))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(h.metrics.OrderAnomaliesTotal.WithLabelValues("user_mismatch")))
}

func TestReconciler_EventWithoutUserMatchesBySession(t *testing.T) {
	h := newHarness(t)
	h.orders.AddOrder(testutil.NewTestOrder("user-1", "cs_1", order.StatusPending))

	outcome, err := h.reconciler.MarkPaid(context.Background(), completed("cs_1", ""))
	require.NoError(t, err)
	waitEffects(t, h)

	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, order.StatusPaid, h.orders.Status("cs_1"))
}

func TestReconciler_UnknownSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.reconciler.MarkPaid(context.Background(), completed("cs_missing", "user-1"))
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotFound)

	_, err = h.reconciler.MarkFailed(context.Background(), failed("cs_missing", "user-1"))
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotFound)
}

func TestReconciler_StoreUnavailable(t *testing.T) {
	h := newHarness(t)
	h.orders.TransitionStatusFunc = func(context.Context, order.Transition) (*order.Order, bool, error) {
		return nil, false, errors.New("connection reset")
	}

	_, err := h.reconciler.MarkPaid(context.Background(), completed("cs_1", "user-1"))
	assert.ErrorIs(t, err, domainErrors.ErrUpstreamUnavailable)
}

func TestReconciler_TransactionFailure(t *testing.T) {
	h := newHarness(t)
	h.orders.AddOrder(testutil.NewTestOrder("user-1", "cs_1", order.StatusPending))
	h.tx.WithTransactionFunc = func(ctx context.Context, fn func(ctx context.Context) error) error {
		if err := fn(ctx); err != nil {
			return err
		}
		return errors.New("commit failed")
	}

	_, err := h.reconciler.MarkPaid(context.Background(), completed("cs_1", "user-1"))
	assert.ErrorIs(t, err, domainErrors.ErrUpstreamUnavailable)
	waitEffects(t, h)
	assert.Empty(t, h.publisher.Published(), "effects must not run when the commit fails")
}

func TestReconciler_PaidRunsEffectsOnce(t *testing.T) {
	h := newHarness(t)
	h.orders.AddOrder(testutil.NewTestOrder("user-1", "cs_1", order.StatusPending))
	h.carts.SetCart("user-1", testutil.PhoneRepairCart()...)

	for i := 0; i < 3; i++ {
		_, err := h.reconciler.MarkPaid(context.Background(), completed("cs_1", "user-1"))
		require.NoError(t, err)
	}
	waitEffects(t, h)

	assert.Equal(t, 1, h.orders.AppliedTransitions())
	assert.Equal(t, 1, h.carts.ClearCalls("user-1"))
	assert.Equal(t, 0, h.carts.ItemCount("user-1"))

	published := h.publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "buyer@example.com", published[0].Email)
	assert.Equal(t, "cs_1", published[0].SessionID)
}

func TestReconciler_FailedRunsNoEffects(t *testing.T) {
	h := newHarness(t)
	h.orders.AddOrder(testutil.NewTestOrder("user-1", "cs_1", order.StatusPending))
	h.carts.SetCart("user-1", testutil.PhoneRepairCart()...)

	_, err := h.reconciler.MarkFailed(context.Background(), failed("cs_1", "user-1"))
	require.NoError(t, err)
	waitEffects(t, h)

	assert.Equal(t, 2, h.carts.ItemCount("user-1"))
	assert.Empty(t, h.publisher.Published())
}

func TestReconciler_ConcurrentDeliveries(t *testing.T) {
	h := newHarness(t)
	h.orders.AddOrder(testutil.NewTestOrder("user-1", "cs_1", order.StatusPending))

	const n = 20
	outcomes := make([]Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				outcomes[i], err = h.reconciler.MarkPaid(context.Background(), completed("cs_1", "user-1"))
			} else {
				outcomes[i], err = h.reconciler.MarkFailed(context.Background(), failed("cs_1", "user-1"))
			}
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	waitEffects(t, h)

	applied := 0
	for _, o := range outcomes {
		if o == OutcomeApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, h.orders.AppliedTransitions())
	assert.True(t, h.orders.Status("cs_1").IsTerminal())
}

func TestReconciler_EffectFailureDoesNotFailTransition(t *testing.T) {
	h := newHarness(t)
	h.orders.AddOrder(testutil.NewTestOrder("user-1", "cs_1", order.StatusPending))
	h.carts.ClearFunc = func(context.Context, string) error { return errors.New("cart store down") }

	outcome, err := h.reconciler.MarkPaid(context.Background(), completed("cs_1", "user-1"))
	require.NoError(t, err)
	waitEffects(t, h)

	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, order.StatusPaid, h.orders.Status("cs_1"))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(h.metrics.EffectsTotal.WithLabelValues("cart_clear", "failure")))
	// The confirmation still goes out after the cart clear failed.
	assert.Len(t, h.publisher.Published(), 1)
}
