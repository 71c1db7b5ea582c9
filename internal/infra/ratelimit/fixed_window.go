// Package ratelimit counts requests per actor in fixed time windows stored in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// FixedWindow allows at most max requests per actor per window. When Redis
// is unreachable it allows the request.
type FixedWindow struct {
	client *redis.Client
	max    int64
	window time.Duration
	now    func() time.Time
	logger *logrus.Entry
}

func NewFixedWindow(client *redis.Client, max int64, window time.Duration, logger *logrus.Entry) *FixedWindow {
	return &FixedWindow{
		client: client,
		max:    max,
		window: window,
		now:    time.Now,
		logger: logger.WithField("component", "rate_limiter"),
	}
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func (l *FixedWindow) key(actor string, at time.Time) string {
	slot := at.UnixNano() / int64(l.window)
	return fmt.Sprintf("ratelimit:%s:%d", actor, slot)
}

// Allow counts one request for actor and reports whether it is within the limit.
func (l *FixedWindow) Allow(ctx context.Context, actor string) bool {
	key := l.key(actor, l.now())

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		l.logger.WithError(err).WithField("actor", actor).Warn("Rate limiter backend unavailable; allowing request")
		return true
	}

	count := incr.Val()
	if count > l.max {
		l.logger.WithFields(logrus.Fields{"actor": actor, "count": count, "max": l.max}).Info("Rate limit exceeded")
		return false
	}
	return true
}
