package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// sweepThreshold is the number of tracked clients above which idle buckets are evicted.
const sweepThreshold = 1024

// SimpleTokenBucket is an in-memory per-client rate limiter.
type SimpleTokenBucket struct {
	capacity  int
	rate      int
	idle      time.Duration
	threshold int

	mu        sync.Mutex
	state     map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewSimpleTokenBucket creates a limiter with capacity tokens refilled at
// perMinute. A non-positive rate disables limiting.
func NewSimpleTokenBucket(capacity, perMinute int) *SimpleTokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &SimpleTokenBucket{
		capacity:  capacity,
		rate:      perMinute,
		idle:      refillTime(capacity, perMinute),
		threshold: sweepThreshold,
		state:     make(map[string]*bucket),
		now:       time.Now,
	}
}

// refillTime is how long an empty bucket takes to fill up, at least a minute.
// A bucket idle that long is indistinguishable from a new one.
func refillTime(capacity, perMinute int) time.Duration {
	if perMinute <= 0 {
		return time.Minute
	}
	return max(time.Minute, time.Duration(capacity)*time.Minute/time.Duration(perMinute))
}

// GinMiddleware returns a gin handler enforcing per-IP limits.
func (l *SimpleTokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rate <= 0 {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (l *SimpleTokenBucket) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.state) >= l.threshold && now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}

	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}
	if refill := int(now.Sub(b.last).Minutes() * float64(l.rate)); refill > 0 {
		b.tokens = min(l.capacity, b.tokens+refill)
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets untouched for the idle window. Callers hold l.mu.
func (l *SimpleTokenBucket) sweep(now time.Time) {
	for key, b := range l.state {
		if now.Sub(b.last) >= l.idle {
			delete(l.state, key)
		}
	}
	l.lastSweep = now
}

