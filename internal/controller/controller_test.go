package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/cassiomorais/storefront/internal/providers"
	"github.com/cassiomorais/storefront/internal/service"
	"github.com/cassiomorais/storefront/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_controller_test"

// --- Test Helpers ---

type testServer struct {
	router      *chi.Mux
	carts       *testutil.MockCartRepository
	orders      *testutil.MockOrderRepository
	publisher   *testutil.MockPublisher
	idempotency *testutil.MockIdempotencyStore
	provider    *providers.GuardedProvider
	mock        *providers.MockProvider
	effects     *service.EffectRunner
}

type serverOption func(*RouterDeps)

func withAuth(secret string) serverOption {
	return func(d *RouterDeps) { d.Auth.JWTSecret = secret }
}

func withHealthChecks(checks ...HealthCheck) serverOption {
	return func(d *RouterDeps) { d.HealthChecks = checks }
}

func newTestServer(t *testing.T, mockOpts []providers.MockProviderOption, opts ...serverOption) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	logger := zerolog.Nop()

	s := &testServer{
		carts:       testutil.NewMockCartRepository(),
		orders:      testutil.NewMockOrderRepository(),
		publisher:   &testutil.MockPublisher{},
		idempotency: testutil.NewMockIdempotencyStore(),
		mock:        providers.NewMockProvider(testWebhookSecret, mockOpts...),
	}
	s.provider = providers.NewGuardedProvider(s.mock, providers.BreakerSettings{OpenTimeout: time.Minute}, metrics)
	s.effects = service.NewEffectRunner(time.Second, metrics, logger,
		service.NewCartClearer(s.carts),
		service.NewConfirmationNotifier(s.publisher, logger),
	)

	checkout := service.NewCheckoutService(s.carts, s.orders, s.provider, config.CheckoutConfig{
		SuccessURL: "https://shop.example/checkout/success",
		CancelURL:  "https://shop.example/cart",
		Currency:   "usd",
	}, metrics, logger)
	reconciler := service.NewReconciler(s.orders, testutil.NewMockTransactionManager(), s.effects, metrics, logger)
	webhooks := service.NewWebhookService(
		service.NewWebhookVerifier(s.provider),
		service.NewEventDispatcher(reconciler),
		metrics, logger)

	deps := RouterDeps{
		CheckoutService: checkout,
		WebhookService:  webhooks,
		SignatureHeader: s.provider.SignatureHeader(),
		IdempotencyRepo: s.idempotency,
		Breaker:         s.provider,
		Metrics:         metrics,
		Gatherer:        reg,
		CORS:            config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit:       config.RateLimitConfig{CheckoutPerMinute: 100},
	}
	for _, o := range opts {
		o(&deps)
	}
	s.router = NewRouter(deps)
	return s
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) waitEffects(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.effects.Wait(ctx))
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}
