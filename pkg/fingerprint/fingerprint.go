package fingerprint

import (
	"crypto/subtle"
	"crypto/tls"
	"encoding/hex"
	"net/http"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"github.com/dmitrymomot/sessionguard/pkg/clientip"
)

// Version prefixes every fingerprint so the algorithm can evolve without
// silently matching hashes produced by an older scheme.
const Version = "v1"

// Attributes are the request properties considered stable for a given client.
type Attributes struct {
	UserAgent      string
	AcceptLanguage string
	// IP is the full client address. Only its network prefix is hashed.
	IP             string
	TLSVersion     uint16
	TLSCipherSuite uint16
}

// FromRequest extracts fingerprint attributes from an HTTP request.
func FromRequest(r *http.Request) Attributes {
	attrs := Attributes{
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		IP:             clientip.GetIP(r),
	}
	if r.TLS != nil {
		attrs.TLSVersion = r.TLS.Version
		attrs.TLSCipherSuite = r.TLS.CipherSuite
	}
	return attrs
}

// Compute returns the fingerprint of attrs: the version prefix followed by
// 32 hex characters.
func Compute(attrs Attributes) string {
	h, _ := blake2b.New256(nil) // only fails for oversized keys

	// Length-prefix every component so that ("ab","c") and ("a","bc") differ.
	for _, part := range []string{
		attrs.UserAgent,
		attrs.AcceptLanguage,
		clientip.Prefix(attrs.IP),
		tlsVersionName(attrs.TLSVersion),
		tlsCipherName(attrs.TLSCipherSuite),
	} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}

	sum := h.Sum(nil)
	return Version + ":" + hex.EncodeToString(sum[:16])
}

// Match reports whether two fingerprints are equal using a constant-time
// comparison. An empty stored fingerprint never matches.
func Match(stored, current string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(current)) == 1
}

func tlsVersionName(v uint16) string {
	if v == 0 {
		return ""
	}
	return tls.VersionName(v)
}

func tlsCipherName(c uint16) string {
	if c == 0 {
		return ""
	}
	return tls.CipherSuiteName(c)
}
