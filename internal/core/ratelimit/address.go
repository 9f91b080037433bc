package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// AddressOptions controls how ClientAddress identifies a client.
type AddressOptions struct {
	// KeyHeader, when set and present on the request, is used verbatim.
	KeyHeader string
	// TrustForwardedFor uses the first X-Forwarded-For hop.
	TrustForwardedFor bool
}

// ClientAddress returns the rate-limit key for r, or "" when none can be
// determined.
func ClientAddress(r *http.Request, opts AddressOptions) string {
	if r == nil {
		return ""
	}

	if opts.KeyHeader != "" {
		if v := strings.TrimSpace(r.Header.Get(opts.KeyHeader)); v != "" {
			return v
		}
	}

	if opts.TrustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
