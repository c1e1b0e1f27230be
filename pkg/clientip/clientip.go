package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const (
	ipv4PrefixBits = 24
	ipv6PrefixBits = 48
)

// headers lists the proxy headers consulted by GetIP, highest priority first.
var headers = []string{
	"CF-Connecting-IP",
	"DO-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// GetIP returns the client's IP address from the HTTP request.
func GetIP(r *http.Request) string {
	for _, name := range headers {
		value := r.Header.Get(name)
		if value == "" {
			continue
		}
		// X-Forwarded-For may carry a chain; the first valid hop is the client.
		for candidate := range strings.SplitSeq(value, ",") {
			if ip := normalize(candidate); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return normalize(r.RemoteAddr)
	}
	return normalize(host)
}

// Prefix returns the coarse network of ip in CIDR notation.
// IPv4-mapped IPv6 addresses are treated as IPv4.
func Prefix(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return ""
	}
	addr = addr.Unmap()

	bits := ipv6PrefixBits
	if addr.Is4() {
		bits = ipv4PrefixBits
	}

	prefix, err := addr.WithZone("").Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.String()
}

// normalize validates an address and returns its canonical form.
func normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}
