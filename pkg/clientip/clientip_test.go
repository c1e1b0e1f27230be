package clientip_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/sessionguard/pkg/clientip"
)

func TestGetIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{
			name: "cloudflare header wins",
			headers: map[string]string{
				"CF-Connecting-IP": "203.0.113.195",
				"X-Forwarded-For":  "192.168.1.1",
			},
			remoteAddr: "172.16.0.1:54321",
			expected:   "203.0.113.195",
		},
		{
			name:       "digitalocean header",
			headers:    map[string]string{"DO-Connecting-IP": "198.51.100.178", "X-Real-IP": "10.0.0.1"},
			remoteAddr: "10.0.0.1:54321",
			expected:   "198.51.100.178",
		},
		{
			name:       "first valid forwarded hop",
			headers:    map[string]string{"X-Forwarded-For": "garbage, 198.51.100.7, 203.0.113.1"},
			remoteAddr: "10.0.0.1:54321",
			expected:   "198.51.100.7",
		},
		{
			name:       "real ip header",
			headers:    map[string]string{"X-Real-IP": "192.168.1.1"},
			remoteAddr: "10.0.0.1:54321",
			expected:   "192.168.1.1",
		},
		{
			name:       "remote addr fallback",
			remoteAddr: "10.0.0.9:443",
			expected:   "10.0.0.9",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "2001:db8::1",
			expected:   "2001:db8::1",
		},
		{
			name:       "ipv4 mapped address is unmapped",
			remoteAddr: "[::ffff:192.0.2.4]:80",
			expected:   "192.0.2.4",
		},
		{
			name:       "invalid everything",
			headers:    map[string]string{"X-Real-IP": "not-an-ip"},
			remoteAddr: "nonsense",
			expected:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, clientip.GetIP(r))
		})
	}
}

func TestPrefix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "203.0.113.0/24", clientip.Prefix("203.0.113.195"))
	assert.Equal(t, "203.0.113.0/24", clientip.Prefix("203.0.113.7"))
	assert.Equal(t, "192.0.2.0/24", clientip.Prefix("::ffff:192.0.2.4"))
	assert.Equal(t, "2001:db8:abcd::/48", clientip.Prefix("2001:db8:abcd:12::1"))
	assert.Empty(t, clientip.Prefix(""))
	assert.Empty(t, clientip.Prefix("localhost"))
}
