package clientip

import (
	"net"
	"net/http"
	"strings"
)

// RealClientIP returns the client IP from r.RemoteAddr only. Proxy headers
// are ignored so a caller cannot spoof its rate limit bucket.
func RealClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}

// Key is the bucket key for per-client limits, prefixed by scope,
// e.g. "otp:203.0.113.7".
func Key(scope string, r *http.Request) string {
	return scope + ":" + RealClientIP(r)
}
