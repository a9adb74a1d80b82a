package notification

import (
	"context"
	"errors"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/cassiomorais/storefront/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paidOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := order.NewPending("user-1", "cs_test_1", decimal.RequireFromString("119.97"), "USD")
	require.NoError(t, err)
	require.True(t, order.CanTransition(o.Status, order.StatusPaid))
	o.Status = order.StatusPaid
	return o
}

func TestOrderConfirmation_ValuesRoundTrip(t *testing.T) {
	o := paidOrder(t)
	c := NewOrderConfirmation(o, "buyer@example.com")

	values, err := c.Values()
	require.NoError(t, err)
	assert.Equal(t, EventOrderPaid, values["event_type"])
	assert.Equal(t, o.ID.String(), values["order_id"])

	decoded, err := DecodeValues(values)
	require.NoError(t, err)
	assert.Equal(t, c.OrderID, decoded.OrderID)
	assert.Equal(t, "buyer@example.com", decoded.Email)
	assert.True(t, c.Total.Equal(decoded.Total))
	assert.Equal(t, "usd", decoded.Currency)
}

func TestDecodeValues_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{"missing payload", map[string]any{}},
		{"not json", map[string]any{"payload": "{"}},
		{"missing order id", map[string]any{"payload": `{"email":"a@example.com"}`}},
		{"missing email", map[string]any{"payload": `{"order_id":"` + uuid.NewString() + `"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeValues(tt.values)
			assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
		})
	}
}

func TestOrderConfirmation_Rendering(t *testing.T) {
	c := NewOrderConfirmation(paidOrder(t), "buyer@example.com")

	assert.Equal(t, "Your order "+c.OrderID.String()[:8]+" is confirmed", c.Subject())
	assert.Contains(t, c.Body(), "119.97 USD")
	assert.Contains(t, c.Body(), c.OrderID.String())
}

type fakeAppender struct {
	stream string
	values map[string]any
	err    error
}

func (f *fakeAppender) Publish(_ context.Context, stream string, values map[string]any) (string, error) {
	f.stream, f.values = stream, values
	return "1-0", f.err
}

func TestStreamPublisher_Publish(t *testing.T) {
	app := &fakeAppender{}
	p := NewStreamPublisher(app, "orders:confirmations")
	c := NewOrderConfirmation(paidOrder(t), "buyer@example.com")

	require.NoError(t, p.Publish(context.Background(), c))
	assert.Equal(t, "orders:confirmations", app.stream)
	assert.Equal(t, c.OrderID.String(), app.values["order_id"])

	app.err = errors.New("redis down")
	assert.Error(t, p.Publish(context.Background(), c))
}

type fakeSNS struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	return &sns.PublishOutput{}, f.err
}

func TestSNSPublisher_Publish(t *testing.T) {
	client := &fakeSNS{}
	p := NewSNSPublisher(client, "arn:aws:sns:us-east-1:000000000000:order-confirmations")
	c := NewOrderConfirmation(paidOrder(t), "buyer@example.com")

	require.NoError(t, p.Publish(context.Background(), c))
	require.NotNil(t, client.input)
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:order-confirmations", *client.input.TopicArn)
	assert.Contains(t, *client.input.Message, c.OrderID.String())
	assert.Equal(t, EventOrderPaid, *client.input.MessageAttributes["event_type"].StringValue)

	client.err = errors.New("throttled")
	assert.ErrorContains(t, p.Publish(context.Background(), c), "throttled")
}

func TestNewPublisher(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	p, err := NewPublisher(ctx, &config.NotificationConfig{Driver: "redis", Stream: "s"}, &fakeAppender{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &StreamPublisher{}, p)

	p, err = NewPublisher(ctx, &config.NotificationConfig{Driver: "none"}, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &LogPublisher{}, p)
	assert.NoError(t, p.Publish(ctx, OrderConfirmation{}))

	_, err = NewPublisher(ctx, &config.NotificationConfig{Driver: "kafka"}, nil, logger)
	assert.Error(t, err)
}

func TestSMTPSender_SendEmail(t *testing.T) {
	s := NewSMTPSender(&config.EmailConfig{
		SMTPHost: "smtp.example.com", SMTPPort: 587, From: "shop@example.com", Username: "shop", Password: "pw",
	})

	var gotAddr string
	var gotMsg []byte
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotMsg = addr, msg
		assert.NotNil(t, a)
		assert.Equal(t, "shop@example.com", from)
		assert.Equal(t, []string{"buyer@example.com"}, to)
		return nil
	}

	require.NoError(t, s.SendEmail(context.Background(), "buyer@example.com", "Hello", "<p>hi</p>"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.True(t, strings.HasPrefix(string(gotMsg), "From: shop@example.com\r\nTo: buyer@example.com\r\nSubject: Hello\r\n"))
	assert.True(t, strings.HasSuffix(string(gotMsg), "\r\n\r\n<p>hi</p>"))
}

func TestSMTPSender_PermanentRejectionIsNotRetried(t *testing.T) {
	s := NewSMTPSender(&config.EmailConfig{SMTPHost: "smtp.example.com", SMTPPort: 25, From: "shop@example.com"})
	calls := 0
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		calls++
		return &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
	}

	err := retry.Do(context.Background(), retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		return s.SendEmail(context.Background(), "nobody@example.com", "s", "b")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSMTPSender_TransientFailureIsRetried(t *testing.T) {
	s := NewSMTPSender(&config.EmailConfig{SMTPHost: "smtp.example.com", SMTPPort: 25, From: "shop@example.com"})
	calls := 0
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		calls++
		if calls == 1 {
			return &textproto.Error{Code: 421, Msg: "try again later"}
		}
		return nil
	}

	err := retry.Do(context.Background(), retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		return s.SendEmail(context.Background(), "buyer@example.com", "s", "b")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestNewEmailSender(t *testing.T) {
	assert.IsType(t, &LogSender{}, NewEmailSender(&config.EmailConfig{}, zerolog.Nop()))
	assert.IsType(t, &SMTPSender{}, NewEmailSender(&config.EmailConfig{SMTPHost: "localhost", SMTPPort: 25}, zerolog.Nop()))
}
