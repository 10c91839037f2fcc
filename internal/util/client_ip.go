package util

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller IP from forwarded headers or the peer
// address. Used only for rate-limit keys and audit logs.
func ClientIP(r *http.Request) string {
	if xfwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xfwd != "" {
		if first := strings.TrimSpace(strings.Split(xfwd, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
