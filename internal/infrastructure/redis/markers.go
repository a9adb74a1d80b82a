package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SentMarkers records which order confirmations have already gone out, so a
// redelivered stream message does not send a second email.
type SentMarkers struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewSentMarkers(client *redis.Client, prefix string, ttl time.Duration) *SentMarkers {
	return &SentMarkers{client: client, prefix: prefix, ttl: ttl}
}

func (m *SentMarkers) key(id string) string {
	return fmt.Sprintf("%s:sent:%s", m.prefix, id)
}

func (m *SentMarkers) IsSent(ctx context.Context, id string) (bool, error) {
	n, err := m.client.Exists(ctx, m.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check sent marker: %w", err)
	}
	return n > 0, nil
}

func (m *SentMarkers) MarkSent(ctx context.Context, id string) error {
	if err := m.client.Set(ctx, m.key(id), time.Now().Unix(), m.ttl).Err(); err != nil {
		return fmt.Errorf("set sent marker: %w", err)
	}
	return nil
}
