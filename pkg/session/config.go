package session

import (
	"errors"
	"fmt"
	"time"
)

// Config holds session policy and store access settings.
type Config struct {
	MaxConcurrent int `env:"SESSION_MAX_CONCURRENT" envDefault:"5"`

	IdleTimeout     time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	AbsoluteTimeout time.Duration `env:"SESSION_ABSOLUTE_TIMEOUT" envDefault:"12h"`

	// SuspiciousRequestThreshold is the number of validations per
	// RequestWindow above which a session is flagged.
	SuspiciousRequestThreshold int           `env:"SESSION_SUSPICIOUS_REQUEST_THRESHOLD" envDefault:"100"`
	RequestWindow              time.Duration `env:"SESSION_REQUEST_WINDOW" envDefault:"1m"`

	// IdleWarningRatio is the fraction of IdleTimeout after which
	// validation reports an idle warning.
	IdleWarningRatio float64 `env:"SESSION_IDLE_WARNING_RATIO" envDefault:"0.8"`

	RetentionGrace  time.Duration `env:"SESSION_RETENTION_GRACE" envDefault:"24h"`
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"5m"`

	StoreTimeout       time.Duration `env:"SESSION_STORE_TIMEOUT" envDefault:"2s"`
	StoreRetryAttempts int           `env:"SESSION_STORE_RETRY_ATTEMPTS" envDefault:"3"`
	StoreRetryInterval time.Duration `env:"SESSION_STORE_RETRY_INTERVAL" envDefault:"50ms"`
	ConflictRetries    int           `env:"SESSION_CONFLICT_RETRIES" envDefault:"10"`

	CookieName    string `env:"SESSION_COOKIE_NAME" envDefault:"sid"`
	SecureCookies bool   `env:"SESSION_SECURE_COOKIES" envDefault:"true"`
	CSRFHeader    string `env:"SESSION_CSRF_HEADER" envDefault:"X-CSRF-Token"`
}

// DefaultConfig returns the defaults used when no environment is loaded.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:              5,
		IdleTimeout:                30 * time.Minute,
		AbsoluteTimeout:            12 * time.Hour,
		SuspiciousRequestThreshold: 100,
		RequestWindow:              time.Minute,
		IdleWarningRatio:           0.8,
		RetentionGrace:             24 * time.Hour,
		CleanupInterval:            5 * time.Minute,
		StoreTimeout:               2 * time.Second,
		StoreRetryAttempts:         3,
		StoreRetryInterval:         50 * time.Millisecond,
		ConflictRetries:            10,
		CookieName:                 "sid",
		SecureCookies:              true,
		CSRFHeader:                 "X-CSRF-Token",
	}
}

// Validate checks that the values can be enforced.
func (c Config) Validate() error {
	var errs []error
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("max concurrent sessions must be at least 1, got %d", c.MaxConcurrent))
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, errors.New("idle timeout must be positive"))
	}
	if c.AbsoluteTimeout <= 0 {
		errs = append(errs, errors.New("absolute timeout must be positive"))
	}
	if c.SuspiciousRequestThreshold < 1 {
		errs = append(errs, errors.New("suspicious request threshold must be at least 1"))
	}
	if c.RequestWindow <= 0 {
		errs = append(errs, errors.New("request window must be positive"))
	}
	if c.IdleWarningRatio <= 0 || c.IdleWarningRatio > 1 {
		errs = append(errs, fmt.Errorf("idle warning ratio must be in (0, 1], got %v", c.IdleWarningRatio))
	}
	if c.RetentionGrace < 0 {
		errs = append(errs, errors.New("retention grace must not be negative"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("store timeout must be positive"))
	}
	if c.StoreRetryAttempts < 1 {
		errs = append(errs, errors.New("store retry attempts must be at least 1"))
	}
	if c.ConflictRetries < 1 {
		errs = append(errs, errors.New("conflict retries must be at least 1"))
	}
	if c.CookieName == "" {
		errs = append(errs, errors.New("cookie name is required"))
	}
	if c.CSRFHeader == "" {
		errs = append(errs, errors.New("csrf header is required"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

// sessionTTL is the lifetime granted at creation and on refresh.
func (c Config) sessionTTL() time.Duration {
	return min(c.IdleTimeout, c.AbsoluteTimeout)
}

// idleWarningAfter is the inactivity after which an idle warning is raised.
func (c Config) idleWarningAfter() time.Duration {
	return time.Duration(float64(c.IdleTimeout) * c.IdleWarningRatio)
}
