package handlers

import (
	"net"
	"net/http"
	"strings"
)

// RateLimiter is the minimal interface required to guard sensitive endpoints.
type RateLimiter interface {
	Allow(key string) bool
}

// allowOTPSend checks the caller's IP key and the target email key against
// the limiter. Both must pass, so neither a single IP nor a single inbox
// can be flooded. A nil limiter allows everything.
func allowOTPSend(limiter RateLimiter, r *http.Request, email string) bool {
	if limiter == nil {
		return true
	}
	if !limiter.Allow("otp-ip:" + clientIP(r)) {
		return false
	}
	return limiter.Allow("otp-email:" + email)
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
