// Package analytics records notification delivery counters in Redis.
// Counters are bucketed by time window and expire with the configured
// retention, giving operators a rolling view of fan-out volume per event
// kind without growing an unbounded keyspace.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tolkly/bookingd/internal/domain"
)

// Config controls bucketing and retention of delivery counters.
type Config struct {
	Window    time.Duration
	Retention time.Duration
}

// DefaultConfig buckets per minute and keeps counters for a week.
func DefaultConfig() Config {
	return Config{
		Window:    time.Minute,
		Retention: 7 * 24 * time.Hour,
	}
}

type RedisSink struct {
	client *redis.Client
	config Config
}

func NewRedisSink(client *redis.Client, config Config) *RedisSink {
	return &RedisSink{client: client, config: config}
}

// Dispatched increments the delivery counter for the event kind's bucket.
func (s *RedisSink) Dispatched(ctx context.Context, kind domain.EventKind, at time.Time) error {
	key := buildKey(kind, at, s.config.Window)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.config.Retention)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}

	return nil
}

func buildKey(kind domain.EventKind, t time.Time, window time.Duration) string {
	return fmt.Sprintf("notify:%s:%s", kind, truncateToBucket(t, window))
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	default:
		return t.Format("200601021504")
	}
}
