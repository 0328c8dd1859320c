package http

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = 10 * time.Minute
	limiterCleanupPeriod = 5 * time.Minute
)

// rateLimiter keeps one token bucket per client IP. Buckets of clients that
// stay idle for limiterIdleTTL are evicted by the sweep goroutine, which runs
// until stop is called.
type rateLimiter struct {
	mu       sync.Mutex
	clients  *cache.Cache
	interval time.Duration
	burst    int
	disabled bool

	done     chan struct{}
	stopOnce sync.Once
}

// newRateLimiter allows perMinute requests per client per minute, with bursts
// of the same size. perMinute <= 0 disables limiting.
func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		return &rateLimiter{disabled: true}
	}
	rl := &rateLimiter{
		// no cache janitor: sweep owns eviction so it stops with the server
		clients:  cache.New(limiterIdleTTL, 0),
		interval: time.Minute / time.Duration(perMinute),
		burst:    perMinute,
		done:     make(chan struct{}),
	}
	go rl.sweep(limiterCleanupPeriod)
	return rl
}

func (rl *rateLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.clients.DeleteExpired()
		}
	}
}

func (rl *rateLimiter) limiterFor(clientIP string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, found := rl.clients.Get(clientIP); found {
		limiter := v.(*rate.Limiter)
		rl.clients.SetDefault(clientIP, limiter)
		return limiter
	}
	limiter := rate.NewLimiter(rate.Every(rl.interval), rl.burst)
	rl.clients.SetDefault(clientIP, limiter)
	return limiter
}

// allow reports whether a request from clientIP may proceed. When it may not,
// retryAfter is the time it takes to refill one token.
func (rl *rateLimiter) allow(clientIP string, metrics *securityMetrics) (ok bool, retryAfter time.Duration) {
	if rl.disabled {
		return true, 0
	}

	limiter := rl.limiterFor(clientIP)
	if limiter.Allow() {
		return true, 0
	}

	if metrics != nil {
		atomic.AddInt64(&metrics.rateLimitHits, 1)
	}
	return false, rl.interval
}

// retryAfterSeconds renders d as a whole number of seconds, at least 1.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// stop ends the sweep goroutine and releases the cached limiters. It is safe
// to call more than once.
func (rl *rateLimiter) stop() {
	if rl.disabled {
		return
	}
	rl.stopOnce.Do(func() {
		close(rl.done)
		rl.clients.Flush()
	})
}
