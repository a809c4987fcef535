package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// ClientLimiter hands out a token-bucket limiter per client address and
// evicts buckets that have gone quiet.
type ClientLimiter struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rate    rate.Limit
	burst   int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows r events per second per client with the given
// burst. For "10 per minute" pass rate.Every(6*time.Second) with burst 10.
func NewClientLimiter(r rate.Limit, burst int) *ClientLimiter {
	cl := &ClientLimiter{
		buckets: make(map[string]*clientBucket),
		rate:    r,
		burst:   burst,
	}
	go cl.evictLoop()
	return cl
}

// Allow reports whether the client may proceed.
func (cl *ClientLimiter) Allow(clientIP string) bool {
	cl.mu.Lock()
	bucket, ok := cl.buckets[clientIP]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(cl.rate, cl.burst)}
		cl.buckets[clientIP] = bucket
	}
	bucket.lastSeen = time.Now()
	limiter := bucket.limiter
	cl.mu.Unlock()
	return limiter.Allow()
}

func (cl *ClientLimiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cl.mu.Lock()
		for ip, bucket := range cl.buckets {
			if time.Since(bucket.lastSeen) > 10*time.Minute {
				delete(cl.buckets, ip)
			}
		}
		cl.mu.Unlock()
	}
}

// RateLimitMiddleware rejects clients over their budget with 429.
func RateLimitMiddleware(cl *ClientLimiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cl.Allow(clientIP(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client address, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
