package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics("test", prometheus.NewRegistry())
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		driver   string
		wantName string
		wantErr  error
	}{
		{"stripe", "stripe", "stripe", nil},
		{"mock", "mock", "mock", nil},
		{"unknown", "paypal", "", domainErrors.ErrProviderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(&config.ProcessorConfig{
				Driver:                  tt.driver,
				SecretKey:               "sk_test_123",
				WebhookSecret:           testWebhookSecret,
				WebhookTolerance:        5 * time.Minute,
				RequestTimeout:          time.Second,
				CircuitBreakerThreshold: 3,
				CircuitBreakerTimeout:   time.Second,
			}, newTestMetrics())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
			assert.Equal(t, gobreaker.StateClosed, p.State())
		})
	}
}

func TestGuardedProvider_OpensOnUnavailability(t *testing.T) {
	metrics := newTestMetrics()
	inner := NewMockProvider(testWebhookSecret, WithError(domainErrors.Unavailable("mock", errors.New("down"))))
	g := NewGuardedProvider(inner, BreakerSettings{FailureThreshold: 2, OpenTimeout: time.Minute}, metrics)

	for i := 0; i < 2; i++ {
		_, err := g.CreateSession(context.Background(), sessionRequest())
		require.ErrorIs(t, err, domainErrors.ErrUpstreamUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	_, err := g.CreateSession(context.Background(), sessionRequest())
	assert.ErrorIs(t, err, domainErrors.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	assert.Equal(t, float64(gobreaker.StateOpen), testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("mock")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues("mock", "rejected")))
}

func TestGuardedProvider_RejectionsDoNotTrip(t *testing.T) {
	inner := NewMockProvider(testWebhookSecret)
	g := NewGuardedProvider(inner, BreakerSettings{FailureThreshold: 1, OpenTimeout: time.Minute}, newTestMetrics())

	for i := 0; i < 3; i++ {
		_, err := g.CreateSession(context.Background(), SessionRequest{UserID: "user-1"})
		require.ErrorIs(t, err, domainErrors.ErrProviderRejected)
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestGuardedProvider_PassesWebhooksThrough(t *testing.T) {
	inner := NewMockProvider(testWebhookSecret)
	g := NewGuardedProvider(inner, BreakerSettings{}, newTestMetrics())
	payload := NewMockEventPayload("evt_1", MockEventCheckoutCompleted, MockEventData{SessionID: "cs_mock_1"})

	ev, err := g.ParseWebhook(payload, SignPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.EventID())
	assert.Equal(t, MockSignatureHeader, g.SignatureHeader())
}
