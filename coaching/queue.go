package coaching

import (
	"container/heap"
	"strings"
	"sync"
	"time"

	"racecoach/config"
)

// heapItem wraps a Message for container/heap, ordering by priority then by
// FIFO insertion sequence among equal priorities.
type heapItem struct {
	msg Message
	seq int
}

type priorityHeap []*heapItem

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	pi, pj := priorityRank(h[i].msg.Priority), priorityRank(h[j].msg.Priority)
	if pi != pj {
		return pi < pj
	}
	return h[i].seq < h[j].seq
}
func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *priorityHeap) Push(x any)   { *h = append(*h, x.(*heapItem)) }
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is the single logical per-session message queue implementing
// priority ordering, the LLM-override rule, combine, per-category cooldown,
// global rate limiting and fuzzy dedupe, per §4.8.
type Queue struct {
	mu   sync.Mutex
	cfg  config.CoachingConfig
	heap priorityHeap
	seq  int

	lastDeliveredByCategory map[Category]Message
	deliveredTimestamps     []time.Time // rolling window for the global rate limit
}

// NewQueue builds an empty Queue bound to the given config.
func NewQueue(cfg config.CoachingConfig) *Queue {
	q := &Queue{cfg: cfg, lastDeliveredByCategory: make(map[Category]Message)}
	heap.Init(&q.heap)
	return q
}

// Enqueue inserts msg, applying the LLM-priority-override and combine rules.
func (q *Queue) Enqueue(msg Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if msg.Source == SourceRemote {
		q.removeLocalWithinWindow(msg.Category, msg.Timestamp)
	} else if q.hasRemoteWithinWindow(msg.Category, msg.Timestamp) {
		return // local message suppressed: remote already covers this category
	}

	if combined, ok := q.tryCombine(msg); ok {
		msg = combined
	}

	q.seq++
	heap.Push(&q.heap, &heapItem{msg: msg, seq: q.seq})
}

func (q *Queue) removeLocalWithinWindow(category Category, at time.Time) {
	kept := q.heap[:0]
	for _, item := range q.heap {
		if item.msg.Category == category && item.msg.Source == SourceLocal && withinWindow(item.msg.Timestamp, at, q.cfg.OverrideWindow) {
			continue
		}
		kept = append(kept, item)
	}
	q.heap = kept
	heap.Init(&q.heap)
}

func (q *Queue) hasRemoteWithinWindow(category Category, at time.Time) bool {
	for _, item := range q.heap {
		if item.msg.Category == category && item.msg.Source == SourceRemote && withinWindow(item.msg.Timestamp, at, q.cfg.OverrideWindow) {
			return true
		}
	}
	return false
}

func withinWindow(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// combinable categories per §4.8.
var combinableCategories = map[Category]bool{
	CategoryThrottle:    true,
	CategoryBraking:     true,
	CategoryCornering:   true,
	CategoryConsistency: true,
}

func (q *Queue) tryCombine(msg Message) (Message, bool) {
	if !combinableCategories[msg.Category] {
		return msg, false
	}
	var matches []*heapItem
	var matchIdx []int
	for i, item := range q.heap {
		if item.msg.Category != msg.Category {
			continue
		}
		if !withinWindow(item.msg.Timestamp, msg.Timestamp, q.cfg.CombineWindow) {
			continue
		}
		if sharedKeywordCount(item.msg.Content, msg.Content, categoryKeywords[msg.Category]) < q.cfg.CombineMinKeywords {
			continue
		}
		matches = append(matches, item)
		matchIdx = append(matchIdx, i)
		if len(matches) >= q.cfg.CombineMaxMessages {
			break
		}
	}
	if len(matches) == 0 {
		return msg, false
	}

	remaining := q.heap[:0]
	removeSet := make(map[int]bool, len(matchIdx))
	for _, i := range matchIdx {
		removeSet[i] = true
	}
	for i, item := range q.heap {
		if !removeSet[i] {
			remaining = append(remaining, item)
		}
	}
	q.heap = remaining
	heap.Init(&q.heap)

	combined := buildCombined(msg, matches)
	return combined, true
}

func sharedKeywordCount(a, b string, keywords []string) int {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	var n int
	for _, kw := range keywords {
		if strings.Contains(la, kw) && strings.Contains(lb, kw) {
			n++
		}
	}
	return n
}

func buildCombined(msg Message, matches []*heapItem) Message {
	highest := msg.Priority
	var sumConf float64 = msg.Confidence
	var secondary []string
	for _, m := range matches {
		if priorityRank(m.msg.Priority) < priorityRank(highest) {
			highest = m.msg.Priority
		}
		sumConf += m.msg.Confidence
		secondary = append(secondary, m.msg.Content)
	}
	avgConf := sumConf / float64(len(matches)+1)

	combined := NewMessage(combineTemplate(msg.Category, len(matches)+1), msg.Category, highest, SourceCombined, avgConf)
	combined.Timestamp = msg.Timestamp
	combined.SecondaryMessages = secondary
	return combined
}

// Dequeue returns the next deliverable message, or false if none currently
// qualifies (queue empty, or the next candidate is rate-limited).
// Candidates suppressed by cooldown or dedupe are dropped from the queue and
// the next one is tried; the drops are not counted. A rate-limited candidate
// is pushed back and stays queued for a later call.
func (q *Queue) Dequeue(now time.Time) (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneRateWindow(now)

	for q.heap.Len() > 0 {
		item := heap.Pop(&q.heap).(*heapItem)
		msg := item.msg

		if !q.passesCooldown(msg, now) {
			continue // filtered
		}
		if msg.Priority != PriorityCritical && q.rateLimited(now) {
			// not delivered, not permanently dropped: push back for the next window
			q.seq++
			heap.Push(&q.heap, &heapItem{msg: msg, seq: item.seq})
			return Message{}, false
		}
		if q.isFuzzyDuplicate(msg, now) {
			continue // filtered
		}

		msg.Delivered = true
		q.lastDeliveredByCategory[msg.Category] = msg
		if msg.Priority != PriorityCritical {
			q.deliveredTimestamps = append(q.deliveredTimestamps, now)
		}
		return msg, true
	}
	return Message{}, false
}

func (q *Queue) passesCooldown(msg Message, now time.Time) bool {
	last, ok := q.lastDeliveredByCategory[msg.Category]
	if !ok {
		return true
	}
	if msg.Priority == PriorityCritical {
		return true
	}
	cooldown, ok := q.cfg.CategoryCooldowns[string(msg.Category)]
	if !ok {
		cooldown = q.cfg.DefaultCooldown
	}
	return now.Sub(last.Timestamp) >= cooldown
}

func (q *Queue) isFuzzyDuplicate(msg Message, now time.Time) bool {
	last, ok := q.lastDeliveredByCategory[msg.Category]
	if !ok || msg.Priority == PriorityCritical {
		return false
	}
	cooldown, ok := q.cfg.CategoryCooldowns[string(msg.Category)]
	if !ok {
		cooldown = q.cfg.DefaultCooldown
	}
	if now.Sub(last.Timestamp) >= cooldown {
		return false
	}
	return wordOverlap(last.Content, msg.Content) > q.cfg.SimilarityThreshold
}

func wordOverlap(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	var inter int
	union := make(map[string]bool, len(wa)+len(wb))
	for w := range wa {
		union[w] = true
		if wb[w] {
			inter++
		}
	}
	for w := range wb {
		union[w] = true
	}
	return float64(inter) / float64(len(union))
}

func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}

func (q *Queue) pruneRateWindow(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(q.deliveredTimestamps) && q.deliveredTimestamps[i].Before(cutoff) {
		i++
	}
	q.deliveredTimestamps = q.deliveredTimestamps[i:]
}

func (q *Queue) rateLimited(now time.Time) bool {
	q.pruneRateWindow(now)
	return len(q.deliveredTimestamps) >= q.cfg.GlobalRateLimitPerMin
}

// Len reports how many messages are currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}
