package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/respond"
)

// ipLimiter holds a rate limiter and the last time it was used.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client IP. It sits in front of the intake
// route only: every intake costs one inference call.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
	idle     time.Duration
}

// NewRateLimiter creates a per-IP limiter allowing perMinute requests per
// minute with a burst of the same size. Stale entries are swept until ctx is
// cancelled.
func NewRateLimiter(ctx context.Context, perMinute int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		idle:     5 * time.Minute,
	}
	go rl.cleanupLoop(ctx, 3*time.Minute)
	return rl
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters[ip]; ok {
		l.lastSeen = time.Now()
		return l.limiter
	}
	l := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[ip] = &ipLimiter{limiter: l, lastSeen: time.Now()}
	return l
}

func (rl *RateLimiter) cleanupLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep(time.Now())
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, l := range rl.limiters {
		if now.Sub(l.lastSeen) > rl.idle {
			delete(rl.limiters, ip)
		}
	}
}

// Middleware rejects over-limit requests with 429, a Retry-After header and
// the standard error body. The client IP is r.RemoteAddr, which chi's RealIP
// middleware has already rewritten from X-Forwarded-For / X-Real-IP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.getLimiter(clientIP(r))

		if !limiter.Allow() {
			retryAfter := max(int(time.Duration(float64(time.Second)/float64(rl.rate)).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			respond.Error(w, apperror.RateLimited("too many intake requests, slow down"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Blocked reports whether r's client has no tokens left, without spending
// one. Together with Penalize it lets auth.RequireSecret budget failed
// secret checks only.
func (rl *RateLimiter) Blocked(r *http.Request) bool {
	return rl.getLimiter(clientIP(r)).Tokens() < 1
}

// Penalize spends one token from r's client.
func (rl *RateLimiter) Penalize(r *http.Request) {
	rl.getLimiter(clientIP(r)).Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
