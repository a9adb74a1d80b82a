package providers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/webhook"
	"github.com/google/uuid"
	stripewebhook "github.com/stripe/stripe-go/v80/webhook"
)

const (
	MockSignatureHeader = "X-Mock-Signature"

	MockEventCheckoutCompleted = "checkout_completed"
	MockEventPaymentFailed     = "payment_failed"
)

// MockProvider is a local processor for development and tests. Sessions live in
// memory; webhooks use the same timestamped HMAC-SHA256 scheme as Stripe.
type MockProvider struct {
	secret      string
	tolerance   time.Duration
	baseURL     string
	latency     time.Duration
	failureRate float64 // 0.0 to 1.0
	failWith    error

	mu       sync.Mutex
	sessions map[string]SessionRequest
}

type MockProviderOption func(*MockProvider)

func WithLatency(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.latency = d }
}

// WithFailureRate makes CreateSession fail with ErrUpstreamUnavailable at the given rate.
func WithFailureRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.failureRate = rate }
}

// WithError makes every CreateSession call return err.
func WithError(err error) MockProviderOption {
	return func(p *MockProvider) { p.failWith = err }
}

func WithTolerance(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.tolerance = d }
}

func WithCheckoutBaseURL(u string) MockProviderOption {
	return func(p *MockProvider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func NewMockProvider(webhookSecret string, opts ...MockProviderOption) *MockProvider {
	p := &MockProvider{
		secret:    webhookSecret,
		tolerance: 5 * time.Minute,
		baseURL:   "http://localhost:8080/mock-checkout",
		sessions:  make(map[string]SessionRequest),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) SignatureHeader() string { return MockSignatureHeader }

func (p *MockProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return nil, domainErrors.Unavailable("mock", ctx.Err())
		}
	}

	if p.failWith != nil {
		return nil, p.failWith
	}
	if p.failureRate > 0 && rand.Float64() < p.failureRate {
		return nil, domainErrors.Unavailable("mock", fmt.Errorf("simulated outage"))
	}
	if len(req.LineItems) == 0 {
		return nil, fmt.Errorf("mock: %w: line items are required", domainErrors.ErrProviderRejected)
	}

	req.Metadata = sessionMetadata(req)
	id := "cs_mock_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	p.mu.Lock()
	p.sessions[id] = req
	p.mu.Unlock()

	return &Session{ID: id, URL: p.baseURL + "/" + id}, nil
}

// Session returns the request a session was created with.
func (p *MockProvider) Session(id string) (SessionRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.sessions[id]
	return req, ok
}

// MockEvent is the wire format of mock webhook deliveries.
type MockEvent struct {
	ID   string        `json:"id"`
	Type string        `json:"type"`
	Data MockEventData `json:"data"`
}

type MockEventData struct {
	SessionID     string `json:"session_id"`
	UserID        string `json:"user_id,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	AmountTotal   int64  `json:"amount_total,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func (p *MockProvider) ParseWebhook(payload []byte, signatureHeader string) (webhook.Event, error) {
	if err := stripewebhook.ValidatePayloadWithTolerance(payload, signatureHeader, p.secret, p.tolerance); err != nil {
		return nil, fmt.Errorf("mock: %w: %v", domainErrors.ErrSignatureInvalid, err)
	}

	var evt MockEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, domainErrors.NewValidationError("body", "malformed event: "+err.Error())
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, domainErrors.NewValidationError("type", "event id and type are required")
	}

	switch evt.Type {
	case MockEventCheckoutCompleted:
		ev := webhook.CheckoutCompleted{
			ID:            evt.ID,
			SessionID:     evt.Data.SessionID,
			UserID:        evt.Data.UserID,
			CustomerEmail: evt.Data.CustomerEmail,
			AmountTotal:   evt.Data.AmountTotal,
		}
		if err := ev.Validate(); err != nil {
			return nil, err
		}
		return ev, nil
	case MockEventPaymentFailed:
		ev := webhook.PaymentFailed{
			ID:        evt.ID,
			SessionID: evt.Data.SessionID,
			UserID:    evt.Data.UserID,
			Reason:    evt.Data.Reason,
		}
		if err := ev.Validate(); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return webhook.Unknown{ID: evt.ID, Type: evt.Type}, nil
	}
}

// SignPayload produces a "t=<unix>,v1=<hex>" signature header for payload.
func SignPayload(payload []byte, secret string, ts time.Time) string {
	sig := stripewebhook.ComputeSignature(ts, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig))
}

// NewMockEventPayload encodes a mock webhook body.
func NewMockEventPayload(id, eventType string, data MockEventData) []byte {
	b, _ := json.Marshal(MockEvent{ID: id, Type: eventType, Data: data})
	return b
}
