package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig configures token bucket limiting. With PerClient set each
// remote address gets its own bucket; otherwise one bucket is shared.
type RateLimitConfig struct {
	Enabled   bool
	RPS       float64
	Burst     int
	PerClient bool
}

// maxClientBuckets bounds the per-client table; idle buckets are swept when
// it fills.
const maxClientBuckets = 10000

// RateLimitMiddleware rejects requests over the configured rate with 429.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.RPS <= 0 || cfg.Burst <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	limiter := &rateLimiter{cfg: cfg, clients: make(map[string]*tokenBucket)}
	shared := newTokenBucket(cfg.RPS, cfg.Burst, time.Now())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket := shared
			if cfg.PerClient {
				bucket = limiter.bucket(clientKey(r), time.Now())
			}
			if !bucket.allow(time.Now()) {
				w.Header().Set("Retry-After", "1")
				writeGraphQLError(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type rateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*tokenBucket
}

func (l *rateLimiter) bucket(key string, now time.Time) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.clients[key]; ok {
		return b
	}
	if len(l.clients) >= maxClientBuckets {
		l.sweep(now)
	}
	b := newTokenBucket(l.cfg.RPS, l.cfg.Burst, now)
	l.clients[key] = b
	return b
}

// sweep drops buckets that have refilled completely; they carry no state.
func (l *rateLimiter) sweep(now time.Time) {
	for key, b := range l.clients {
		if b.idle(now) {
			delete(l.clients, key)
		}
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type tokenBucket struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
}

func newTokenBucket(rps float64, burst int, now time.Time) *tokenBucket {
	return &tokenBucket{rate: rps, burst: float64(burst), tokens: float64(burst), last: now}
}

func (b *tokenBucket) refill(now time.Time) {
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.last = now
	}
}

func (b *tokenBucket) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (b *tokenBucket) idle(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	return b.tokens >= b.burst
}
