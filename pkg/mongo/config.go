package mongo

import "time"

// Config holds the MongoDB connection settings, loaded from MONGODB_* env vars.
type Config struct {
	ConnectionURL string `env:"MONGODB_URL,required"`
	// Database is the database NewWithDatabase returns.
	Database string `env:"MONGODB_DATABASE" envDefault:"sessionguard"`

	ConnectTimeout  time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize     uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"100"`
	MinPoolSize     uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"1"`
	MaxConnIdleTime time.Duration `env:"MONGODB_MAX_CONN_IDLE_TIME" envDefault:"5m"`

	// Driver-level retries for single operations. Session updates are
	// versioned, so a retried write that already landed surfaces as a conflict.
	RetryWrites bool `env:"MONGODB_RETRY_WRITES" envDefault:"true"`
	RetryReads  bool `env:"MONGODB_RETRY_READS" envDefault:"true"`

	// Startup ping attempts and the pause between them.
	RetryAttempts int           `env:"MONGODB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"MONGODB_RETRY_INTERVAL" envDefault:"2s"`
}
