package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
)

// New builds the configured processor wrapped in a circuit breaker.
func New(cfg *config.ProcessorConfig, metrics *observability.Metrics) (*GuardedProvider, error) {
	var p Provider
	switch cfg.Driver {
	case "stripe":
		p = NewStripeProvider(cfg.SecretKey, cfg.WebhookSecret, cfg.WebhookTolerance,
			WithBackend(NewStripeBackend(cfg.APIBase, cfg.RequestTimeout)))
	case "mock":
		p = NewMockProvider(cfg.WebhookSecret,
			WithTolerance(cfg.WebhookTolerance),
			WithCheckoutBaseURL(cfg.APIBase))
	default:
		return nil, fmt.Errorf("%w: %q", domainErrors.ErrProviderNotFound, cfg.Driver)
	}

	return NewGuardedProvider(p, BreakerSettings{
		FailureThreshold: uint32(cfg.CircuitBreakerThreshold),
		OpenTimeout:      cfg.CircuitBreakerTimeout,
		RequestTimeout:   cfg.RequestTimeout,
	}, metrics), nil
}

type BreakerSettings struct {
	// FailureThreshold is the number of consecutive unavailability errors that opens the breaker.
	FailureThreshold uint32
	OpenTimeout      time.Duration
	RequestTimeout   time.Duration
}

// GuardedProvider runs CreateSession through a circuit breaker. Webhook parsing
// is local and passes straight through.
type GuardedProvider struct {
	Provider
	breaker        *gobreaker.CircuitBreaker[*Session]
	requestTimeout time.Duration
	metrics        *observability.Metrics
}

func NewGuardedProvider(p Provider, s BreakerSettings, metrics *observability.Metrics) *GuardedProvider {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	metrics.CircuitBreakerState.WithLabelValues(p.Name()).Set(float64(gobreaker.StateClosed))

	return &GuardedProvider{
		Provider:       p,
		requestTimeout: s.RequestTimeout,
		metrics:        metrics,
		breaker: gobreaker.NewCircuitBreaker[*Session](gobreaker.Settings{
			Name:        p.Name(),
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     s.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// Rejections are answers, not outages.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, domainErrors.ErrProviderRejected)
			},
			OnStateChange: func(name string, _ gobreaker.State, to gobreaker.State) {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			},
		}),
	}
}

func (g *GuardedProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if g.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.requestTimeout)
		defer cancel()
	}

	s, err := g.breaker.Execute(func() (*Session, error) {
		return g.Provider.CreateSession(ctx, req)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.metrics.CircuitBreakerRequests.WithLabelValues(g.Name(), "rejected").Inc()
		return nil, domainErrors.Unavailable(g.Name(), err)
	case err != nil:
		g.metrics.CircuitBreakerRequests.WithLabelValues(g.Name(), "failure").Inc()
		return nil, err
	}
	g.metrics.CircuitBreakerRequests.WithLabelValues(g.Name(), "success").Inc()
	return s, nil
}

// State exposes the breaker state for health reporting.
func (g *GuardedProvider) State() gobreaker.State {
	return g.breaker.State()
}
