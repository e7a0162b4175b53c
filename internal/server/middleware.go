package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

type peerAddrKey struct{}

// PeerAddr records the socket peer before RealIP rewrites RemoteAddr from
// client-supplied headers. It must run ahead of RealIP.
func PeerAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerAddrKey{}, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// peerIP returns the host of the connection peer, without the port.
func peerIP(r *http.Request) string {
	addr, ok := r.Context().Value(peerAddrKey{}).(string)
	if !ok {
		addr = r.RemoteAddr
	}
	return hostOnly(addr)
}

// forwardedIP returns the client address taken from proxy headers, or ""
// when it matches the peer.
func forwardedIP(r *http.Request) string {
	if ip := hostOnly(r.RemoteAddr); ip != peerIP(r) {
		return ip
	}
	return ""
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements a simple token bucket rate limiter per IP address.
// Buckets idle for longer than idleTTL are dropped.
type RateLimiter struct {
	limiters  map[string]*limiterEntry
	mu        sync.Mutex
	rateLimit rate.Limit // Requests per second
	burstSize int        // Maximum burst size
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a new rate limiter
// rateLimit: requests per second
// burstSize: maximum number of requests allowed in a burst
func NewRateLimiter(rateLimit rate.Limit, burstSize int) *RateLimiter {
	// A bucket idle for idleTTL is full again.
	idleTTL := time.Minute
	if rateLimit > 0 {
		idleTTL = time.Duration(float64(burstSize) / float64(rateLimit) * float64(time.Second))
	}

	return &RateLimiter{
		limiters:  make(map[string]*limiterEntry),
		rateLimit: rateLimit,
		burstSize: burstSize,
		idleTTL:   idleTTL,
		now:       time.Now,
	}
}

// GetLimiter returns the rate limiter for a given IP address
// Creates a new limiter for the IP if one doesn't exist
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		rl.sweep(now)
	}

	entry, exists := rl.limiters[ip]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rateLimit, rl.burstSize)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = now

	return entry.limiter
}

// Len returns the number of tracked addresses.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) sweep(now time.Time) {
	for ip, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) >= rl.idleTTL {
			delete(rl.limiters, ip)
		}
	}
	rl.lastSweep = now
}

// NewWebhookRateLimitMiddleware creates middleware for webhook-specific rate limiting
// limit: requests per minute
func NewWebhookRateLimitMiddleware(limit int, logger *slog.Logger) func(http.Handler) http.Handler {
	return rateLimitMiddleware(NewRateLimiter(rate.Limit(float64(limit)/60.0), limit), logger)
}

// rateLimitMiddleware keys buckets on the socket peer. Forwarding headers
// are ignored here since any client can set them.
func rateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := peerIP(r)

			if !limiter.GetLimiter(ip).Allow() {
				logger.Warn("Webhook rate limit exceeded", "ip", ip, "forwarded_ip", forwardedIP(r), "path", r.URL.Path)
				respondText(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDHeader echoes the chi request ID back to the caller.
func RequestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-Id", id)
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request once the response is written.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"remote_ip", peerIP(r),
					"forwarded_ip", forwardedIP(r),
					"request_id", middleware.GetReqID(r.Context()),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
