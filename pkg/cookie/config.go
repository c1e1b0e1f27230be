package cookie

import "strings"

// Config holds cookie manager configuration.
type Config struct {
	// Secrets is a comma separated list; the first entry signs new cookies.
	Secrets string `env:"COOKIE_SECRETS,required"`
	Domain  string `env:"COOKIE_DOMAIN" envDefault:""`
	Secure  bool   `env:"COOKIE_SECURE" envDefault:"true"`
}

// NewFromConfig creates a Manager from cfg. Additional options override the
// configured values.
func NewFromConfig(cfg Config, opts ...Option) (*Manager, error) {
	var secrets []string
	for s := range strings.SplitSeq(cfg.Secrets, ",") {
		if s = strings.TrimSpace(s); s != "" {
			secrets = append(secrets, s)
		}
	}

	configOpts := []Option{WithSecure(cfg.Secure)}
	if cfg.Domain != "" {
		configOpts = append(configOpts, WithDomain(cfg.Domain))
	}

	return New(secrets, append(configOpts, opts...)...)
}
