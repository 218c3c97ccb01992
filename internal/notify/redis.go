// Package notify publishes committed position updates to Redis for
// out-of-process consumers (dashboards, alerting).
//
// Only ephemeral keys are written: a PUBLISH per changed ticker and a TTL'd
// latest-value key. Nothing is journaled.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"portfolio-enginev1/internal/portfolio"
)

const defaultLatestTTL = 30 * time.Minute

// RedisConfig configures the Redis publisher.
type RedisConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// RedisPublisher is a notification-hub observer backed by a Redis client.
type RedisPublisher struct {
	client *goredis.Client
	store  *portfolio.Store

	// OnPublish is an optional metrics hook called with the pipeline latency.
	OnPublish func(took time.Duration)
}

// NewRedisPublisher creates a publisher and pings the server.
func NewRedisPublisher(cfg RedisConfig, store *portfolio.Store) (*RedisPublisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis publisher connected", "addr", cfg.Addr)
	return &RedisPublisher{client: client, store: store}, nil
}

// Client returns the underlying Redis client for health checks.
func (p *RedisPublisher) Client() *goredis.Client { return p.client }

// OnCommit implements the hub observer: re-read each changed ticker and
// publish its current state in a single pipeline roundtrip. Removed tickers
// get their latest key deleted and a tombstone published.
func (p *RedisPublisher) OnCommit(ctx context.Context, changed []string) error {
	start := time.Now()
	pipe := p.client.Pipeline()

	for _, ticker := range changed {
		channel := "pub:position:" + ticker
		latestKey := "position:latest:" + ticker

		pos, ok := p.store.Get(ticker)
		if !ok {
			pipe.Del(ctx, latestKey)
			pipe.Publish(ctx, channel, `{"ticker":"`+ticker+`","removed":true}`)
			continue
		}

		data, err := json.Marshal(pos)
		if err != nil {
			return fmt.Errorf("redis publish %s: marshal: %w", ticker, err)
		}
		pipe.Set(ctx, latestKey, data, defaultLatestTTL)
		pipe.Publish(ctx, channel, data)
	}

	sum, err := json.Marshal(p.store.Summary())
	if err != nil {
		return fmt.Errorf("redis publish summary: marshal: %w", err)
	}
	pipe.Set(ctx, "portfolio:summary", sum, defaultLatestTTL)
	pipe.Publish(ctx, "pub:summary", sum)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish pipeline (%d tickers): %w", len(changed), err)
	}
	if p.OnPublish != nil {
		p.OnPublish(time.Since(start))
	}
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
