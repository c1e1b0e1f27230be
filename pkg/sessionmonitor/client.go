package sessionmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/dmitrymomot/sessionguard/pkg/session"
	"github.com/dmitrymomot/sessionguard/pkg/sessionapi"
)

// Status is the session view returned by the server.
type Status = sessionapi.StatusResponse

// Client talks to the session endpoints.
type Client interface {
	Status(ctx context.Context) (*Status, error)
	Refresh(ctx context.Context) (*Status, error)
}

// HTTPClient is a Client for sessionapi routes mounted at a base URL. The
// underlying http.Client must carry the session cookie, usually through a
// cookie jar.
type HTTPClient struct {
	baseURL    string
	hc         *http.Client
	csrfHeader string

	mu   sync.Mutex
	csrf string
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithCSRFHeader overrides the header carrying the CSRF token.
func WithCSRFHeader(name string) HTTPClientOption {
	return func(c *HTTPClient) {
		if name != "" {
			c.csrfHeader = name
		}
	}
}

// WithCSRFToken seeds the CSRF token, for example from the header returned
// at login. Otherwise it is learned from the first status call.
func WithCSRFToken(token string) HTTPClientOption {
	return func(c *HTTPClient) { c.csrf = token }
}

// NewHTTPClient talks to a sessionapi handler mounted at baseURL.
// A nil hc uses http.DefaultClient.
func NewHTTPClient(baseURL string, hc *http.Client, opts ...HTTPClientOption) *HTTPClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		hc:         hc,
		csrfHeader: session.DefaultConfig().CSRFHeader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status fetches the current session state.
func (c *HTTPClient) Status(ctx context.Context) (*Status, error) {
	return c.do(ctx, http.MethodGet, "/status")
}

// Refresh extends the session. The CSRF token is fetched first when it is
// not known yet.
func (c *HTTPClient) Refresh(ctx context.Context) (*Status, error) {
	if c.token() == "" {
		if _, err := c.Status(ctx); err != nil {
			return nil, err
		}
	}
	return c.do(ctx, http.MethodPost, "/refresh")
}

func (c *HTTPClient) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.csrf
}

func (c *HTTPClient) do(ctx context.Context, method, path string) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("sessionmonitor: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if method != http.MethodGet {
		req.Header.Set(c.csrfHeader, c.token())
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Join(ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var body struct {
			Data Status `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, errors.Join(ErrUnexpectedResponse, err)
		}
		if body.Data.CSRFToken != "" {
			c.mu.Lock()
			c.csrf = body.Data.CSRFToken
			c.mu.Unlock()
		}
		return &body.Data, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, errors.Join(ErrSessionEnded, fmt.Errorf("server code %q", errorCode(resp)))
	case resp.StatusCode == http.StatusServiceUnavailable, resp.StatusCode >= 500:
		return nil, errors.Join(ErrUnavailable, fmt.Errorf("status %d", resp.StatusCode))
	default:
		return nil, errors.Join(ErrUnexpectedResponse, fmt.Errorf("status %d code %q", resp.StatusCode, errorCode(resp)))
	}
}

func errorCode(resp *http.Response) string {
	var body struct {
		Error session.ErrorDetail `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return body.Error.Code
}

var _ Client = (*HTTPClient)(nil)
