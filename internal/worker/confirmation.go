package worker

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/storefront/internal/infrastructure/redis"
	"github.com/cassiomorais/storefront/internal/notification"
	"github.com/cassiomorais/storefront/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Message outcomes, also used as the status metric label.
const (
	StatusSent      = "sent"
	StatusDuplicate = "duplicate"
	StatusInvalid   = "invalid"
	StatusFailed    = "failed"
	StatusLocked    = "locked"
	StatusError     = "error"
)

type MessageSource interface {
	Stream() string
	Read(ctx context.Context) ([]redis.XMessage, error)
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
}

type DeadLetterer interface {
	PublishToDLQ(ctx context.Context, stream, messageID, reason string, values map[string]any) error
}

type Lock interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

type Locker interface {
	TryLock(ctx context.Context, name string) (Lock, error)
}

type SentMarkers interface {
	IsSent(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, id string) error
}

// NewRedisLocker adapts the Redis lock to Locker.
func NewRedisLocker(l *infraRedis.Locker) Locker {
	return redisLocker{l}
}

type redisLocker struct {
	l *infraRedis.Locker
}

func (r redisLocker) TryLock(ctx context.Context, name string) (Lock, error) {
	lock, err := r.l.TryLock(ctx, name)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

type ConfirmationSettings struct {
	SendAttempts   uint
	SendRetryDelay time.Duration
	ClaimMinIdle   time.Duration
	// LockTTL is the per-order lock lifetime; it is extended before every retry.
	LockTTL time.Duration
}

// ConfirmationWorker delivers order confirmation emails from the
// confirmation stream. Delivery is at-least-once upstream; a per-order lock
// and a sent marker keep it to one email per order.
type ConfirmationWorker struct {
	source   MessageSource
	dlq      DeadLetterer
	locker   Locker
	markers  SentMarkers
	sender   notification.EmailSender
	settings ConfirmationSettings
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewConfirmationWorker(
	source MessageSource,
	dlq DeadLetterer,
	locker Locker,
	markers SentMarkers,
	sender notification.EmailSender,
	settings ConfirmationSettings,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ConfirmationWorker {
	if settings.SendAttempts == 0 {
		settings.SendAttempts = 3
	}
	if settings.ClaimMinIdle <= 0 {
		settings.ClaimMinIdle = time.Minute
	}
	if settings.LockTTL <= 0 {
		settings.LockTTL = 30 * time.Second
	}
	return &ConfirmationWorker{
		source:   source,
		dlq:      dlq,
		locker:   locker,
		markers:  markers,
		sender:   sender,
		settings: settings,
		metrics:  metrics,
		logger:   observability.ForService(logger, "confirmation-worker"),
	}
}

// Run consumes until ctx is cancelled. Messages abandoned by a crashed
// consumer are reclaimed once they have been idle for ClaimMinIdle.
func (w *ConfirmationWorker) Run(ctx context.Context) error {
	lastClaim := time.Time{}
	for {
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(lastClaim) >= w.settings.ClaimMinIdle {
			lastClaim = time.Now()
			stale, err := w.source.ClaimStale(ctx, w.settings.ClaimMinIdle)
			if err != nil {
				w.logger.Error().Err(err).Msg("Failed to claim stale messages")
			}
			w.processBatch(ctx, stale)
		}

		msgs, err := w.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error().Err(err).Msg("Failed to read from stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		w.processBatch(ctx, msgs)
	}
}

func (w *ConfirmationWorker) processBatch(ctx context.Context, msgs []redis.XMessage) {
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return
		}
		w.Process(ctx, msg)
	}
}

// Process handles one stream message and returns its outcome. Locked and
// error outcomes leave the message pending for redelivery.
func (w *ConfirmationWorker) Process(ctx context.Context, msg redis.XMessage) string {
	start := time.Now()
	stream := w.source.Stream()
	status := w.process(ctx, msg)
	w.metrics.WorkerMessagesProcessed.WithLabelValues(stream, status).Inc()
	w.metrics.WorkerProcessingDuration.WithLabelValues(stream).Observe(time.Since(start).Seconds())
	return status
}

func (w *ConfirmationWorker) process(ctx context.Context, msg redis.XMessage) string {
	log := w.logger.With().Str("message_id", msg.ID).Logger()

	c, err := notification.DecodeValues(msg.Values)
	if err != nil {
		log.Error().Err(err).Msg("Invalid confirmation message")
		w.deadLetter(ctx, msg, err.Error())
		return StatusInvalid
	}
	orderID := c.OrderID.String()
	log = log.With().Str("order_id", orderID).Logger()

	lock, err := w.locker.TryLock(ctx, orderID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrLockAcquisitionFailed) {
			log.Debug().Msg("Confirmation is being sent by another consumer")
			return StatusLocked
		}
		log.Error().Err(err).Msg("Failed to acquire confirmation lock")
		return StatusError
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("Failed to release confirmation lock")
		}
	}()

	sent, err := w.markers.IsSent(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to check sent marker")
		return StatusError
	}
	if sent {
		w.ack(ctx, msg.ID, log)
		return StatusDuplicate
	}

	// The backoff can outlast the lock, so every retry pushes the expiry past
	// the coming wait. Once the lock is lost another consumer may be sending;
	// stop and leave the message pending.
	maxDelay := 10 * w.settings.SendRetryDelay
	var lockErr error
	err = retry.Do(ctx, retry.Config{
		MaxAttempts:  w.settings.SendAttempts,
		InitialDelay: w.settings.SendRetryDelay,
		MaxDelay:     maxDelay,
		OnRetry: func(attempt uint, err error) {
			log.Warn().Err(err).Uint("attempt", attempt+1).Msg("Retrying confirmation email")
			if lockErr == nil {
				lockErr = lock.Extend(ctx, w.settings.LockTTL+maxDelay)
			}
		},
	}, func() error {
		if lockErr != nil {
			return retry.Permanent(lockErr)
		}
		return w.sender.SendEmail(ctx, c.Email, c.Subject(), c.Body())
	})
	if lockErr != nil {
		log.Warn().Err(lockErr).Msg("Lost confirmation lock while retrying, leaving message pending")
		return StatusLocked
	}
	if err != nil {
		if ctx.Err() != nil {
			return StatusError
		}
		log.Error().Err(err).Msg("Confirmation email failed")
		w.deadLetter(ctx, msg, err.Error())
		return StatusFailed
	}

	if err := w.markers.MarkSent(ctx, orderID); err != nil {
		log.Warn().Err(err).Msg("Failed to record sent marker")
	}
	w.ack(ctx, msg.ID, log)
	log.Info().Msg("Order confirmation sent")
	return StatusSent
}

// deadLetter parks msg on the DLQ and acks it. If the DLQ write fails the
// message stays pending and is retried after ClaimMinIdle.
func (w *ConfirmationWorker) deadLetter(ctx context.Context, msg redis.XMessage, reason string) {
	log := w.logger.With().Str("message_id", msg.ID).Logger()
	if err := w.dlq.PublishToDLQ(ctx, w.source.Stream(), msg.ID, reason, msg.Values); err != nil {
		log.Error().Err(err).Msg("Failed to publish to DLQ")
		return
	}
	w.ack(ctx, msg.ID, log)
}

func (w *ConfirmationWorker) ack(ctx context.Context, id string, log zerolog.Logger) {
	if err := w.source.Ack(ctx, id); err != nil {
		log.Error().Err(err).Msg("Failed to ack message")
	}
}
