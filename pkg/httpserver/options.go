package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Option configures the HTTP server. Invalid arguments panic at construction
// time since they indicate a programming error, not a runtime condition.
type Option func(*config)

func positive(name string, d time.Duration) {
	if d <= 0 {
		panic(fmt.Sprintf("httpserver.%s: duration must be > 0, got %s", name, d))
	}
}

func notNil(name string, ok bool) {
	if !ok {
		panic("httpserver." + name + ": nil argument")
	}
}

// WithAddr sets the listen address, e.g. ":8080" or "127.0.0.1:0".
func WithAddr(addr string) Option {
	if addr == "" {
		panic("httpserver.WithAddr: empty address")
	}
	return func(c *config) { c.addr = addr }
}

// WithReadTimeout caps reading the whole request, body included.
func WithReadTimeout(d time.Duration) Option {
	positive("WithReadTimeout", d)
	return func(c *config) { c.readTimeout = d }
}

// WithReadHeaderTimeout caps reading request headers. Slow clients holding
// connections open without sending headers are cut off after d.
func WithReadHeaderTimeout(d time.Duration) Option {
	positive("WithReadHeaderTimeout", d)
	return func(c *config) { c.readHeaderTimeout = d }
}

// WithWriteTimeout caps writing the response.
func WithWriteTimeout(d time.Duration) Option {
	positive("WithWriteTimeout", d)
	return func(c *config) { c.writeTimeout = d }
}

// WithIdleTimeout caps how long a keep-alive connection may sit unused.
func WithIdleTimeout(d time.Duration) Option {
	positive("WithIdleTimeout", d)
	return func(c *config) { c.idleTimeout = d }
}

// WithShutdownTimeout caps how long Run waits for in-flight requests
// after its context is cancelled.
func WithShutdownTimeout(d time.Duration) Option {
	positive("WithShutdownTimeout", d)
	return func(c *config) { c.shutdownTimeout = d }
}

// WithServer supplies a preconfigured http.Server. Non-zero timeouts on it
// win over the options above; Handler is always replaced.
func WithServer(srv *http.Server) Option {
	notNil("WithServer", srv != nil)
	return func(c *config) { c.server = srv }
}

// WithLogger sets the lifecycle logger. Nil discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithStartHook runs h after the listener is bound and before serving.
func WithStartHook(h func(*slog.Logger)) Option {
	notNil("WithStartHook", h != nil)
	return func(c *config) { c.startHooks = append(c.startHooks, h) }
}

// WithStopHook runs h once the server has stopped accepting requests.
func WithStopHook(h func(*slog.Logger)) Option {
	notNil("WithStopHook", h != nil)
	return func(c *config) { c.stopHooks = append(c.stopHooks, h) }
}
