package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter guarding outbound enrichment
// requests, adapted from the strategy engine's limiter for a single
// concern: bounding calls to the remote model per §4.10.
type RateLimiter struct {
	maxRequests int
	burstLimit  int

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time

	historyMu      sync.RWMutex
	requestHistory []time.Time
}

// NewRateLimiter builds a limiter allowing maxRequestsPerMinute steady-state
// with burstLimit instantaneous capacity.
func NewRateLimiter(maxRequestsPerMinute, burstLimit int) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequestsPerMinute,
		burstLimit:  burstLimit,
		tokens:      burstLimit,
		lastRefill:  time.Now(),
	}
}

// Allow reports whether a request may proceed right now, consuming a token
// if so.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens > 0 {
		rl.tokens--
		rl.record()
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.Allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.nextTokenIn()):
		}
	}
}

func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	add := int(elapsed.Seconds() * float64(rl.maxRequests) / 60.0)
	if add > 0 {
		rl.tokens += add
		if rl.tokens > rl.burstLimit {
			rl.tokens = rl.burstLimit
		}
		rl.lastRefill = now
	}
}

func (rl *RateLimiter) record() {
	rl.historyMu.Lock()
	defer rl.historyMu.Unlock()
	now := time.Now()
	rl.requestHistory = append(rl.requestHistory, now)
	cutoff := now.Add(-2 * time.Minute)
	i := 0
	for i < len(rl.requestHistory) && rl.requestHistory[i].Before(cutoff) {
		i++
	}
	rl.requestHistory = rl.requestHistory[i:]
}

func (rl *RateLimiter) nextTokenIn() time.Duration {
	if rl.tokens > 0 {
		return 0
	}
	return time.Duration(60.0/float64(rl.maxRequests)) * time.Second
}

// RequestsInLastMinute reports recent request volume for diagnostics.
func (rl *RateLimiter) RequestsInLastMinute() int {
	rl.historyMu.RLock()
	defer rl.historyMu.RUnlock()
	now := time.Now()
	var n int
	for _, t := range rl.requestHistory {
		if now.Sub(t) <= time.Minute {
			n++
		}
	}
	return n
}
