package llm

import (
	"testing"
	"time"
)

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(60, 2)

	if !rl.Allow() {
		t.Fatalf("first request should be allowed within burst")
	}
	if !rl.Allow() {
		t.Fatalf("second request should be allowed within burst")
	}
	if rl.Allow() {
		t.Fatalf("third request should be denied, burst exhausted")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	rl.Allow()
	if rl.Allow() {
		t.Fatalf("request should be denied immediately after burst exhausted")
	}
	rl.lastRefill = time.Now().Add(-2 * time.Second)
	if !rl.Allow() {
		t.Fatalf("request should be allowed after refill")
	}
}
