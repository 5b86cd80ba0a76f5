package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/logging"
)

// Per-IP token-bucket defaults. A pipeline run is expensive (one embed batch
// plus one generation call per question), so the sustained rate is modest and
// the burst absorbs a client submitting a handful of documents back to back.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// Stale-entry eviction parameters for the per-IP limiter map.
const (
	evictInterval = time.Minute
	evictAfter    = 5 * time.Minute
)

// visitor is the per-IP state: a token bucket plus the last request time,
// which drives eviction of idle entries.
type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-client-IP token-bucket limit on the run
// endpoint. Idle entries are swept periodically so the map stays bounded.
type rateLimiter struct {
	// mu protects visitors.
	mu sync.Mutex
	// visitors maps remote IP to its bucket and last-seen time.
	visitors map[string]*visitor
	// rps is the sustained per-IP request rate.
	rps rate.Limit
	// burst is the per-IP instantaneous allowance.
	burst int
	// log receives rate-limit rejection events.
	log *slog.Logger
}

// newRateLimiter constructs a rateLimiter and starts its sweep goroutine.
// Calling the returned stop function terminates the goroutine.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		log:      log,
	}

	done := make(chan struct{})
	go rl.sweepLoop(done)

	return rl, func() { close(done) }
}

// bucketFor returns the token bucket for ip, creating the entry on first
// sight and refreshing its last-seen time.
func (rl *rateLimiter) bucketFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.bucket
}

// sweepLoop periodically drops visitors idle longer than evictAfter.
// Exits when done is closed.
func (rl *rateLimiter) sweepLoop(done <-chan struct{}) {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-evictAfter)
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// middleware wraps next with the per-IP limit. Rejected requests get a 429
// with a Retry-After header and a WARN log line.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.bucketFor(ip).Allow() {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. X-Forwarded-For is deliberately
// ignored: the server binds to localhost and a spoofable header must not
// select the rate bucket.
func clientIP(r *http.Request) string {
	// RemoteAddr is "host:port" for TCP; the port follows the last colon.
	if i := strings.LastIndexByte(r.RemoteAddr, ':'); i >= 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}
