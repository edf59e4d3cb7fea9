package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Actions with their own buckets.
const (
	ActionSendMessage        = "send_message"
	ActionCreateConversation = "create_conversation"
	ActionHTTP               = "http"
)

// Limit is a steady rate with a burst allowance.
type Limit struct {
	PerMinute int
	Burst     int
}

func (l Limit) limiter() *rate.Limiter {
	perMinute := l.PerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	burst := l.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

// DefaultLimits applies when no override is given for an action.
var DefaultLimits = map[string]Limit{
	ActionSendMessage:        {PerMinute: 30, Burst: 10},
	ActionCreateConversation: {PerMinute: 10, Burst: 5},
	ActionHTTP:               {PerMinute: 120, Burst: 30},
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per user and action.
type RateLimiter struct {
	limits  map[string]Limit
	buckets map[string]*bucket
	mutex   sync.Mutex
}

// NewRateLimiter creates a limiter. overrides replace DefaultLimits per action.
func NewRateLimiter(overrides map[string]Limit) *RateLimiter {
	limits := make(map[string]Limit, len(DefaultLimits)+len(overrides))
	for action, limit := range DefaultLimits {
		limits[action] = limit
	}
	for action, limit := range overrides {
		limits[action] = limit
	}
	return &RateLimiter{
		limits:  limits,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes a token for the user's action. When denied it returns how
// long the caller should wait before retrying.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	now := time.Now()
	reservation := rl.bucket(userID, action, now).ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Minute
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *RateLimiter) bucket(userID, action string, now time.Time) *rate.Limiter {
	key := userID + ":" + action

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rl.limits[action].limiter()}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Cleanup drops buckets idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupRoutine runs Cleanup periodically until ctx is done.
func (rl *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			case <-ctx.Done():
				return
			}
		}
	}()
}
