// Package server throttles inbound frames per connection so one client cannot
// monopolize the store or the room fan-out.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// frameLimiter is a token bucket holding Burst frames. Tokens refill one at a
// time, so an empty bucket is full again after RefillInterval.
type frameLimiter struct {
	limiter *rate.Limiter
	cfg     RateLimitConfig
}

func newFrameLimiter(cfg RateLimitConfig) *frameLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}

	every := cfg.RefillInterval / time.Duration(cfg.Burst)
	return &frameLimiter{
		limiter: rate.NewLimiter(rate.Every(every), cfg.Burst),
		cfg:     cfg,
	}
}

func (l *frameLimiter) allow() bool {
	return l.limiter.Allow()
}
