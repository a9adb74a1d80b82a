package service

import (
	"testing"

	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/cassiomorais/storefront/internal/providers"
	"github.com/cassiomorais/storefront/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const testSecret = "whsec_test_secret"

// --- Test Helpers ---

type harness struct {
	carts     *testutil.MockCartRepository
	orders    *testutil.MockOrderRepository
	tx        *testutil.MockTransactionManager
	publisher *testutil.MockPublisher
	provider  *providers.MockProvider
	metrics   *observability.Metrics
	effects   *EffectRunner

	checkout   *CheckoutService
	reconciler *Reconciler
	webhooks   *WebhookService
}

func newHarness(t *testing.T, opts ...providers.MockProviderOption) *harness {
	t.Helper()
	h := &harness{
		carts:     testutil.NewMockCartRepository(),
		orders:    testutil.NewMockOrderRepository(),
		tx:        testutil.NewMockTransactionManager(),
		publisher: &testutil.MockPublisher{},
		provider:  providers.NewMockProvider(testSecret, opts...),
		metrics:   observability.NewMetrics("test", prometheus.NewRegistry()),
	}
	logger := zerolog.Nop()

	h.effects = NewEffectRunner(0, h.metrics, logger,
		NewCartClearer(h.carts),
		NewConfirmationNotifier(h.publisher, logger),
	)
	h.checkout = NewCheckoutService(h.carts, h.orders, h.provider, checkoutConfig(), h.metrics, logger)
	h.reconciler = NewReconciler(h.orders, h.tx, h.effects, h.metrics, logger)
	h.webhooks = NewWebhookService(NewWebhookVerifier(h.provider), NewEventDispatcher(h.reconciler), h.metrics, logger)
	return h
}
