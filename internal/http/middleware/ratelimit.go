package middleware

// Per-bridge token buckets. The hub is fed by a handful of bridge processes
// relaying WeChat traffic, so buckets are keyed by the X-Client-ID header and
// fall back to the caller IP. The limiter is process-local and keeps a
// runaway bridge from flooding the scorer; it does not authorize anyone.

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// HeaderClientID identifies the bridge process calling the hub.
const HeaderClientID = "X-Client-ID"

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByClientOrIP prefers the X-Client-ID header and falls back to the
// client IP. Keys carry a namespace prefix ("client:bridge-1", "ip:203.0.113.7").
func KeyByClientOrIP() keyFunc {
	return func(c *gin.Context) string {
		if id := strings.TrimSpace(c.GetHeader(HeaderClientID)); id != "" {
			return "client:" + truncate(id, 64)
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per key. Buckets idle for longer
// than idleTTL are swept at most once per sweepEvery. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time

	idleTTL    time.Duration
	sweepEvery time.Duration
	now        func() time.Time
}

// NewRateLimiter builds a limiter refilling rps tokens per second with the
// given burst. rps <= 0 disables limiting; burst <= 0 becomes 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:        rate.Limit(rps),
		burst:      burst,
		keyFn:      keyFn,
		buckets:    make(map[string]*bucket),
		idleTTL:    10 * time.Minute,
		sweepEvery: time.Minute,
		now:        time.Now,
	}
}

// limiterFor returns the bucket for key, creating it on first use.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// retryAfter is the whole number of seconds until one token refills.
func (rl *RateLimiter) retryAfter() string {
	secs := math.Ceil(1 / float64(rl.rps))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(int(secs))
}

// IsRateBypass reports whether DeliveryKey marked this request as a replay
// of an already processed delivery. Replays are answered from the dedup
// store and do not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Get(ctxKeyRateBypass)
	v, _ := b.(bool)
	return v
}

// Handler enforces the per-key limits. Rejected requests get 429 with a
// Retry-After header and the usual error envelope.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rps <= 0 || IsRateBypass(c) || rl.limiterFor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		httpRateLimited.Inc()
		c.Header("Retry-After", rl.retryAfter())
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
