/*
Package limiter provides client-side rate limiting of outbound backend calls.

It utilizes the Token Bucket algorithm (rate.Limiter) to control the request frequency
per endpoint key and includes a cleanup goroutine that periodically removes idle
limiters, preventing unbounded growth of the key set.
*/
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"streamify/internal/pkg/errs"
	"streamify/internal/pkg/logx"
)

// cleanupInterval is how often idle limiters are evicted.
const cleanupInterval = 3 * time.Minute

// KeyedLimiter holds one token bucket per key (typically an endpoint name).
type KeyedLimiter struct {
	// mu is used to protect concurrent access to the limits map.
	mu sync.RWMutex

	// limits stores the map from key to the *rate.Limiter instance.
	limits map[string]*rate.Limiter

	// r is the number of events allowed per second for each key.
	r rate.Limit

	// b is the burst size (token bucket size) for each key.
	b int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewKeyedLimiter creates a KeyedLimiter with rate r and burst b and starts the
// background cleanup goroutine. Call Stop to release it.
// A non-positive r disables limiting.
func NewKeyedLimiter(r rate.Limit, b int) *KeyedLimiter {
	if r <= 0 {
		r = rate.Inf
	}
	if b <= 0 {
		b = 1
	}

	l := &KeyedLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		stop:   make(chan struct{}),
	}

	go l.cleanUpIdle()

	return l
}

// GetLimiter retrieves the limiter for key, creating it on first use.
// It uses double-checked locking to ensure concurrent-safe creation.
func (l *KeyedLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limits[key]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		limiter, exists = l.limits[key]
		if !exists {
			limiter = rate.NewLimiter(l.r, l.b)
			l.limits[key] = limiter
		}
		l.mu.Unlock()
	}

	return limiter
}

// Allow reports whether a call for key may happen now without waiting.
func (l *KeyedLimiter) Allow(key string) bool {
	return l.GetLimiter(key).Allow()
}

// Wait blocks until a call for key is permitted or ctx is done.
// Cancellation returns ctx.Err(); a deadline too short for the next token
// returns ErrRateLimitExceeded.
func (l *KeyedLimiter) Wait(ctx context.Context, key string) error {
	if err := l.GetLimiter(key).Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errs.Wrap(errs.ErrRateLimitExceeded, err)
	}
	return nil
}

// Stop terminates the cleanup goroutine. It is safe to call more than once.
func (l *KeyedLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// cleanUpIdle periodically removes limiters whose bucket is full, i.e. keys that
// have not been used recently.
func (l *KeyedLimiter) cleanUpIdle() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle(time.Now())
		}
	}
}

func (l *KeyedLimiter) evictIdle(now time.Time) int {
	l.mu.Lock()
	count := 0
	for key, limiter := range l.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(l.limits, key)
			count++
		}
	}
	remaining := len(l.limits)
	l.mu.Unlock()

	if count > 0 {
		logx.Debug("Limiter cleanup removed idle keys", "removed", count, "remaining", remaining)
	}
	return count
}
