// Package ratelimit throttles API callers with a per-key token bucket.
// Anonymous callers are keyed by client IP and authenticated callers by
// their API key, so one noisy agent owner cannot starve a shared NAT.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config tunes the limiter.
type Config struct {
	// RequestsPerMinute is the per-key sustained rate.
	RequestsPerMinute int
	// BurstSize caps how far a key can run ahead of the sustained rate.
	BurstSize int
	// CleanupInterval controls how often idle buckets are dropped.
	CleanupInterval time.Duration
}

// DefaultConfig is one request per second sustained with bursts of ten.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   time.Minute,
	}
}

// bucket is one key's token state.
type bucket struct {
	tokens float64
	seen   time.Time
}

// refill credits tokens for the time elapsed since the last request,
// capped at the burst size.
func (b *bucket) refill(now time.Time, perSecond float64, burst int) {
	b.tokens += now.Sub(b.seen).Seconds() * perSecond
	if b.tokens > float64(burst) {
		b.tokens = float64(burst)
	}
	b.seen = now
}

// Limiter applies a token bucket per string key.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*bucket
	done    chan struct{}
}

// New starts a limiter and its background sweep of idle buckets.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Stop ends the background sweep.
func (l *Limiter) Stop() {
	close(l.done)
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * time.Minute)
			l.mu.Lock()
			for key, b := range l.buckets {
				if b.seen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.done:
			return
		}
	}
}

// Allow reports whether the key may make another request now.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: float64(l.cfg.BurstSize - 1), seen: now}
		return true
	}

	b.refill(now, float64(l.cfg.RequestsPerMinute)/60.0, l.cfg.BurstSize)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware throttles requests, keying authenticated callers by a
// prefix of their Authorization header and everyone else by client IP.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if auth := c.GetHeader("Authorization"); auth != "" {
			key = "auth:" + auth[:min(20, len(auth))]
		}

		if !l.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": 1,
			})
			return
		}
		c.Next()
	}
}
