package coaching

import (
	"testing"
	"time"

	"racecoach/config"
)

func TestQueueLLMOverridesLocal(t *testing.T) {
	cfg := config.Default().Coaching
	q := NewQueue(cfg)
	base := time.Now()

	local := NewMessage("ease off the throttle earlier", CategoryThrottle, PriorityMedium, SourceLocal, 0.5)
	local.Timestamp = base
	q.Enqueue(local)

	remote := NewMessage("smoother throttle application through exit", CategoryThrottle, PriorityHigh, SourceRemote, 0.9)
	remote.Timestamp = base.Add(1500 * time.Millisecond)
	q.Enqueue(remote)

	if q.Len() != 1 {
		t.Fatalf("queue len = %d, want 1 (local should be removed on remote enqueue)", q.Len())
	}

	laterLocal := NewMessage("throttle input needs work", CategoryThrottle, PriorityMedium, SourceLocal, 0.5)
	laterLocal.Timestamp = base.Add(2 * time.Second)
	q.Enqueue(laterLocal)

	if q.Len() != 1 {
		t.Fatalf("queue len = %d, want 1 (local suppressed while remote queued)", q.Len())
	}

	msg, ok := q.Dequeue(base.Add(3 * time.Second))
	if !ok {
		t.Fatalf("Dequeue() ok = false, want a deliverable message")
	}
	if msg.Source != SourceRemote {
		t.Fatalf("delivered source = %v, want remote", msg.Source)
	}
}

func TestQueueGlobalRateLimit(t *testing.T) {
	cfg := config.Default().Coaching
	cfg.CategoryCooldowns = map[string]time.Duration{} // isolate the rate limit from cooldowns
	cfg.DefaultCooldown = 0
	q := NewQueue(cfg)
	base := time.Now()

	for i := 0; i < 6; i++ {
		m := NewMessage("tip", CategoryTip, PriorityLow, SourceLocal, 0.5)
		m.Timestamp = base.Add(time.Duration(i) * time.Millisecond)
		q.Enqueue(m)
	}

	var delivered int
	for i := 0; i < 6; i++ {
		if _, ok := q.Dequeue(base.Add(time.Duration(i) * 100 * time.Millisecond)); ok {
			delivered++
		}
	}
	if delivered != cfg.GlobalRateLimitPerMin {
		t.Fatalf("delivered = %d, want %d (global rate limit)", delivered, cfg.GlobalRateLimitPerMin)
	}
}

func TestQueueCriticalBypassesRateLimit(t *testing.T) {
	cfg := config.Default().Coaching
	cfg.CategoryCooldowns = map[string]time.Duration{}
	cfg.DefaultCooldown = 0
	q := NewQueue(cfg)
	base := time.Now()

	for i := 0; i < cfg.GlobalRateLimitPerMin; i++ {
		m := NewMessage("tip", CategoryTip, PriorityLow, SourceLocal, 0.5)
		m.Timestamp = base
		q.Enqueue(m)
		q.Dequeue(base)
	}

	critical := NewMessage("safety alert", CategorySafety, PriorityCritical, SourceLocal, 1.0)
	critical.Timestamp = base
	q.Enqueue(critical)

	msg, ok := q.Dequeue(base)
	if !ok || msg.Priority != PriorityCritical {
		t.Fatalf("critical message should bypass the global rate limit, got ok=%v msg=%+v", ok, msg)
	}
}
