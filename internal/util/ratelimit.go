package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket refilled at a fixed rate.
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	burst    float64
	tokens   float64
	lastTime time.Time
	now      func() time.Time
}

// NewRateLimiter allows perMinute operations per minute with bursts of up
// to burst operations. A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		rate:  float64(perMinute) / 60.0,
		burst: float64(burst),
		now:   time.Now,
	}
	rl.tokens = rl.burst
	rl.lastTime = rl.now()
	return rl
}

// reserve takes a token if one is available and otherwise reports how long
// until the next one.
func (rl *RateLimiter) reserve() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.rate <= 0 {
		return 0, true
	}
	now := rl.now()
	rl.tokens += now.Sub(rl.lastTime).Seconds() * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.lastTime = now
	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}
	need := (1 - rl.tokens) / rl.rate
	return time.Duration(need * float64(time.Second)), false
}

// Allow takes a token without blocking.
func (rl *RateLimiter) Allow() bool {
	_, ok := rl.reserve()
	return ok
}

// Wait blocks until a token is available or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait, ok := rl.reserve()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
