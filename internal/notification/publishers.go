package notification

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/cassiomorais/storefront/internal/infrastructure/config"
	"github.com/rs/zerolog"
)

type streamAppender interface {
	Publish(ctx context.Context, stream string, values map[string]any) (string, error)
}

// StreamPublisher appends confirmations to a Redis stream read by the worker.
type StreamPublisher struct {
	producer streamAppender
	stream   string
}

func NewStreamPublisher(producer streamAppender, stream string) *StreamPublisher {
	return &StreamPublisher{producer: producer, stream: stream}
}

func (p *StreamPublisher) Publish(ctx context.Context, c OrderConfirmation) error {
	values, err := c.Values()
	if err != nil {
		return err
	}
	if _, err := p.producer.Publish(ctx, p.stream, values); err != nil {
		return fmt.Errorf("publish confirmation %s: %w", c.OrderID, err)
	}
	return nil
}

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher fans confirmations out through an SNS topic.
type SNSPublisher struct {
	client   snsAPI
	topicARN string
}

func NewSNSPublisher(client snsAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

// NewSNSClient loads the default AWS credential chain. endpoint overrides the
// service URL for LocalStack.
func NewSNSClient(ctx context.Context, region, endpoint string) (*sns.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (p *SNSPublisher) Publish(ctx context.Context, c OrderConfirmation) error {
	values, err := c.Values()
	if err != nil {
		return err
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(values["payload"].(string)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(EventOrderPaid)},
			"order_id":   {DataType: aws.String("String"), StringValue: aws.String(c.OrderID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish failed for topic %s: %w", p.topicARN, err)
	}
	return nil
}

// LogPublisher only records that a confirmation would have been sent.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, c OrderConfirmation) error {
	p.logger.Info().
		Str("order_id", c.OrderID.String()).
		Str("session_id", c.SessionID).
		Msg("Order confirmation not dispatched (notification driver: none)")
	return nil
}

// NewPublisher selects the publisher for cfg.Driver.
func NewPublisher(ctx context.Context, cfg *config.NotificationConfig, producer streamAppender, logger zerolog.Logger) (Publisher, error) {
	switch cfg.Driver {
	case "redis":
		return NewStreamPublisher(producer, cfg.Stream), nil
	case "sns":
		client, err := NewSNSClient(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
		if err != nil {
			return nil, err
		}
		return NewSNSPublisher(client, cfg.SNSTopicARN), nil
	case "none":
		return NewLogPublisher(logger), nil
	default:
		return nil, fmt.Errorf("unknown notification driver %q", cfg.Driver)
	}
}
