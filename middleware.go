package main

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/example/carego/internal/auth"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// clientIP resolves the caller address. Forwarding headers are honoured
// only when the direct peer sits inside one of the trusted proxy prefixes;
// X-Forwarded-For is then walked right to left, skipping further trusted
// hops. Anything that does not parse as an IP is discarded, so the result is
// either a canonical address or empty.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	remote, ok := parseIPCandidate(r.RemoteAddr)
	if !ok || !isTrusted(remote, trusted) {
		return addrString(remote, ok)
	}

	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, ok := parseIPCandidate(hops[i])
			if !ok {
				break
			}
			if !isTrusted(hop, trusted) {
				return hop.String()
			}
		}
	}
	if xrip, ok := parseIPCandidate(r.Header.Get("X-Real-IP")); ok {
		return xrip.String()
	}
	return remote.String()
}

func addrString(a netip.Addr, ok bool) string {
	if !ok {
		return ""
	}
	return a.String()
}

func isTrusted(a netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// parseIPCandidate accepts a bare address, host:port, or a bracketed IPv6
// literal, and drops any zone.
func parseIPCandidate(raw string) (netip.Addr, bool) {
	s := strings.Trim(strings.TrimSpace(raw), "\"")
	if s == "" || len(s) > 64 {
		return netip.Addr{}, false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone("").Unmap(), true
}

const maxClientString = 512

// truncateUTF8 cuts s to at most n bytes without splitting a rune. Invalid
// sequences are dropped first.
func truncateUTF8(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (a *App) clientIP(r *http.Request) string {
	return clientIP(r, a.cfg.TrustedProxies)
}

func (a *App) requestMeta(r *http.Request) auth.RequestMeta {
	return auth.RequestMeta{
		OriginAddress: a.clientIP(r),
		ClientString:  truncateUTF8(r.UserAgent(), maxClientString),
	}
}

// CORS answers preflight requests and echoes allowed origins. An empty
// allow-list admits every origin.
func (a *App) CORS(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(a.cfg.CORSAllowedOrigins))
	for _, o := range a.cfg.CORSAllowedOrigins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (len(allowed) == 0 || allowed[origin] || allowed["*"]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimiter keeps a token bucket per client address.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	perMin   int
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMinute,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		limiter, exists = rl.limiters[key]
		if !exists {
			limiter = rate.NewLimiter(rate.Limit(rl.perMin)/60, rl.perMin)
			rl.limiters[key] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter
}

// Sweep drops buckets that have refilled completely, since a fresh bucket
// behaves the same. It returns how many were dropped.
func (rl *RateLimiter) Sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for key, l := range rl.limiters {
		if l.TokensAt(now) >= float64(rl.perMin) {
			delete(rl.limiters, key)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (rl *RateLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			rl.Sweep(now)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// RateLimit enforces the per-address request budget. Health and metrics
// endpoints are exempt.
func (a *App) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/ready" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		if !a.rateLimiter.getLimiter(a.clientIP(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Logging middleware logs requests
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		a.Log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", a.clientIP(r)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}
