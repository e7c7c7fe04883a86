package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect creates a Redis client from the configured URL, verifies
// connectivity with a ping, and retries transient failures.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}

	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToParseRedisConnString, err)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	client := redis.NewClient(opt)

	attempts := max(cfg.RetryAttempts, 1)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && cfg.RetryInterval > 0 {
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, fmt.Errorf("%w: %v", ErrRedisNotReady, ctx.Err())
			case <-time.After(cfg.RetryInterval):
			}
		}
		if err := client.Ping(ctx).Err(); err != nil {
			lastErr = err
			continue
		}
		return client, nil
	}

	_ = client.Close()
	return nil, fmt.Errorf("%w: %v", ErrRedisNotReady, lastErr)
}

// Healthcheck returns a health check function for monitoring Redis
// connectivity.
func Healthcheck(client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrHealthcheckFailed, err)
		}
		return nil
	}
}
