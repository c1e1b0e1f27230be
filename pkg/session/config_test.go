package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionguard/pkg/config"
	"github.com/dmitrymomot/sessionguard/pkg/session"
)

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	var cfg session.Config
	require.NoError(t, config.Load(&cfg, config.WithEnvironment(map[string]string{"UNRELATED": "1"})))
	assert.Equal(t, session.DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_FromEnvironment(t *testing.T) {
	t.Parallel()

	var cfg session.Config
	err := config.Load(&cfg, config.WithEnvironment(map[string]string{
		"SESSION_MAX_CONCURRENT":               "3",
		"SESSION_IDLE_TIMEOUT":                 "15m",
		"SESSION_ABSOLUTE_TIMEOUT":             "8h",
		"SESSION_SUSPICIOUS_REQUEST_THRESHOLD": "250",
		"SESSION_SECURE_COOKIES":               "false",
	}))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxConcurrent)
	assert.Equal(t, 15*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 8*time.Hour, cfg.AbsoluteTimeout)
	assert.Equal(t, 250, cfg.SuspiciousRequestThreshold)
	assert.False(t, cfg.SecureCookies)
	assert.Equal(t, time.Minute, cfg.RequestWindow)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*session.Config)
	}{
		{"zero sessions", func(c *session.Config) { c.MaxConcurrent = 0 }},
		{"no idle timeout", func(c *session.Config) { c.IdleTimeout = 0 }},
		{"negative absolute timeout", func(c *session.Config) { c.AbsoluteTimeout = -time.Hour }},
		{"zero threshold", func(c *session.Config) { c.SuspiciousRequestThreshold = 0 }},
		{"warning ratio above one", func(c *session.Config) { c.IdleWarningRatio = 1.5 }},
		{"no store timeout", func(c *session.Config) { c.StoreTimeout = 0 }},
		{"no retry attempts", func(c *session.Config) { c.StoreRetryAttempts = 0 }},
		{"empty cookie name", func(c *session.Config) { c.CookieName = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := session.DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), session.ErrInvalidConfig)
		})
	}
}
