package mongo

import (
	"context"
	"errors"

	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// New creates a client and pings the server until it answers or
// RetryAttempts is exhausted.
func New(ctx context.Context, cfg Config) (*mongo.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}

	client, err := mongo.Connect(
		options.Client().
			ApplyURI(cfg.ConnectionURL).
			SetConnectTimeout(cfg.ConnectTimeout).
			SetMaxPoolSize(cfg.MaxPoolSize).
			SetMinPoolSize(cfg.MinPoolSize).
			SetMaxConnIdleTime(cfg.MaxConnIdleTime).
			SetRetryWrites(cfg.RetryWrites).
			SetRetryReads(cfg.RetryReads),
	)
	if err != nil {
		return nil, errors.Join(ErrFailedToConnectToMongo, err)
	}

	backoff := retry.WithMaxRetries(uint64(max(cfg.RetryAttempts-1, 0)), retry.NewConstant(max(cfg.RetryInterval, 1)))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, errors.Join(ErrFailedToConnectToMongo, err)
	}

	return client, nil
}

// NewWithDatabase creates a client and returns the database named in cfg.
func NewWithDatabase(ctx context.Context, cfg Config) (*mongo.Database, error) {
	client, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client.Database(cfg.Database), nil
}

// Healthcheck pings the primary; it backs the readiness endpoint.
func Healthcheck(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
