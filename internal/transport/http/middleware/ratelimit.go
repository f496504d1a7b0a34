package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"payslip/internal/requestctx"
	"payslip/internal/transport/http/api"
)

type RateLimitKeyFunc func(r *http.Request) string

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per caller key. Requests whose key function
// returns an empty key are not limited by this instance.
type RateLimiter struct {
	mu       sync.Mutex
	perMin   int
	limit    rate.Limit
	burst    int
	keyFn    RateLimitKeyFunc
	visitors map[string]*visitor
	now      func() time.Time
}

func NewRateLimiter(perMinute int, keyFn RateLimitKeyFunc) *RateLimiter {
	if keyFn == nil {
		keyFn = IPKey
	}
	return &RateLimiter{
		perMin:   perMinute,
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    max(perMinute, 1),
		keyFn:    keyFn,
		visitors: map[string]*visitor{},
		now:      time.Now,
	}
}

// Handler is a no-op on a nil limiter.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.enforce(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Prune drops callers idle for longer than idle and returns how many were removed.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	cutoff := rl.now().Add(-idle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) enforce(w http.ResponseWriter, r *http.Request) bool {
	if rl.perMin <= 0 {
		return true
	}
	key := rl.keyFn(r)
	if key == "" {
		return true
	}
	now := rl.now()

	rl.mu.Lock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	allowed := v.limiter.AllowN(now, 1)
	remaining := int(v.limiter.TokensAt(now))
	rl.mu.Unlock()

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMin))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))

	if !allowed {
		retryAfter := max(int(time.Duration(float64(time.Second)/float64(rl.limit)).Seconds()), 1)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		requestctx.Logger(r.Context()).Warn("rate limit exceeded",
			zap.String("key", redactKey(key)),
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.Int("perMinute", rl.perMin),
		)
		api.Fail(w, http.StatusTooManyRequests, api.CodeRateLimited, "too many requests", GetRequestID(r.Context()))
		return false
	}
	return true
}

// IPKey buckets by client IP. Presented but unchecked API keys are ignored.
func IPKey(r *http.Request) string {
	return "ip:" + ClientIP(r)
}

// ValidatedAPIKey buckets by the key RequireAPIKey accepted, and is empty
// when the request carries no validated key.
func ValidatedAPIKey(r *http.Request) string {
	if key := GetAPIKey(r.Context()); key != "" {
		return "key:" + key
	}
	return ""
}

// ClientIP is the first X-Forwarded-For hop, else the remote host.
func ClientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		if value := strings.TrimSpace(parts[0]); value != "" {
			return value
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func redactKey(key string) string {
	if strings.HasPrefix(key, "key:") && len(key) > 12 {
		return key[:12] + "..."
	}
	return key
}
