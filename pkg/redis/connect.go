package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

var (
	ErrEmptyConnectionURL           = errors.New("empty redis connection url, use REDIS_URL env var")
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not answer within the retry budget")
	ErrHealthcheckFailed            = errors.New("redis healthcheck failed")
)

// Connect parses cfg.ConnectionURL and pings the server until it answers,
// making up to RetryAttempts attempts RetryInterval apart within
// ConnectTimeout.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client := redis.NewClient(opts)
	backoff := retry.WithMaxRetries(uint64(max(cfg.RetryAttempts-1, 0)), retry.NewConstant(max(cfg.RetryInterval, 1)))

	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrRedisNotReady, err)
	}

	return client, nil
}

// Healthcheck pings the server; it backs the readiness endpoint.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
