// Package clientip resolves the originating client address of an HTTP request
// and reduces it to the coarse network prefix used for device fingerprinting.
//
// GetIP inspects proxy headers in descending priority and falls back to the
// TCP peer address:
//
//  1. CF-Connecting-IP
//  2. DO-Connecting-IP
//  3. X-Forwarded-For (first valid entry)
//  4. X-Real-IP
//  5. RemoteAddr
//
// Prefix masks an address to /24 for IPv4 and /48 for IPv6 so that mobile
// clients hopping between addresses of the same carrier keep a stable
// fingerprint:
//
//	ip := clientip.GetIP(r)          // "203.0.113.195"
//	net := clientip.Prefix(ip)       // "203.0.113.0/24"
//
// Neither function returns an error. Unparseable input yields an empty string.
package clientip
