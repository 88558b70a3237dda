package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	defaultLimiterTTL     = 10 * time.Minute
	defaultCleanupPeriod  = time.Minute
	tooManyRequestsReason = "Too many requests, please try again later"
)

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP and drops buckets that
// have been idle longer than the TTL.
type RateLimiter struct {
	mu            sync.Mutex
	m             map[string]*limiterEntry
	rps           float64
	burst         int
	ttl           time.Duration
	cleanupPeriod time.Duration
	now           func() time.Time

	startCleanup sync.Once
	stopOnce     sync.Once
	stopCh       chan struct{}
}

func NewRateLimiter(rps float64, burst int, ttl time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = defaultLimiterTTL
	}
	return &RateLimiter{
		m:             make(map[string]*limiterEntry),
		rps:           rps,
		burst:         burst,
		ttl:           ttl,
		cleanupPeriod: defaultCleanupPeriod,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

// get returns the limiter for key, creating it if missing; the cleanup loop
// starts with the first request.
func (l *RateLimiter) get(key string) *rate.Limiter {
	l.startCleanup.Do(func() {
		go l.cleanupLoop()
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if e, ok := l.m[key]; ok {
		e.lastSeen = now
		return e.l
	}

	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.m[key] = &limiterEntry{l: lim, lastSeen: now}
	return lim
}

func (l *RateLimiter) evictIdle() {
	cutoff := l.now().Add(-l.ttl)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.m {
		if e.lastSeen.Before(cutoff) {
			delete(l.m, k)
		}
	}
}

func (l *RateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stopCh:
			return
		}
	}
}

// Stop ends the cleanup loop. Safe to call more than once.
func (l *RateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Handler throttles requests per client IP.
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": tooManyRequestsReason,
			})
			return
		}
		c.Next()
	}
}
