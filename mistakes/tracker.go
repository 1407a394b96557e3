// Package mistakes converts per-corner MicroAnalyses into MistakeEvents and
// aggregates them into MistakePatterns, per spec §4.6.
package mistakes

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"racecoach/analysis"
	"racecoach/config"
)

// Priority mirrors analysis.Priority's closed set.
type Priority = analysis.Priority

const (
	PriorityCritical = analysis.PriorityCritical
	PriorityHigh     = analysis.PriorityHigh
	PriorityMedium   = analysis.PriorityMedium
	PriorityLow      = analysis.PriorityLow
)

// SeverityTrend compares recent vs earlier mistake severity for a pattern.
type SeverityTrend string

const (
	TrendImproving SeverityTrend = "improving"
	TrendStable    SeverityTrend = "stable"
	TrendDeclining SeverityTrend = "declining"
)

// Event is a single classified mistake instance.
type Event struct {
	MistakeType string
	CornerID    string
	At          time.Time
	Severity    float64
	TimeLossS   float64
	Description string
}

// Pattern aggregates Events sharing a (mistakeType, corner) key.
type Pattern struct {
	MistakeType     string
	CornerID        string
	Frequency       int
	TotalTimeLossS  float64
	AvgTimeLossS    float64
	FirstSeen       time.Time
	LastSeen        time.Time
	RecentCount     int // rolling recent-window count
	SeverityTrend   SeverityTrend
	Priority        Priority

	events []Event
}

// SessionSummary is surfaced at session end.
type SessionSummary struct {
	Score        float64
	TotalMistakes int
	TotalTimeLostS float64
	MostCommon   []*Pattern
	MostCostly   []*Pattern
}

// priorityThreshold is one row of the frequency/avg-loss priority table.
type priorityThreshold struct {
	priority    Priority
	minFreq     int
	minAvgLossS float64
}

var priorityTable = []priorityThreshold{
	{PriorityCritical, 5, 0.30},
	{PriorityHigh, 3, 0.20},
	{PriorityMedium, 2, 0.10},
	{PriorityLow, 1, 0.05},
}

// Tracker owns all MistakePatterns for a session.
type Tracker struct {
	cfg      config.MistakeConfig
	patterns map[string]*Pattern // key: mistakeType|cornerID
}

// NewTracker builds a Tracker bound to the given config.
func NewTracker(cfg config.MistakeConfig) *Tracker {
	return &Tracker{cfg: cfg, patterns: make(map[string]*Pattern)}
}

// Classify applies the ordered rule cascade (timing -> speed -> technique ->
// line -> default) to a MicroAnalysis, mirroring the original classifier.
func Classify(m *analysis.MicroAnalysis) string {
	switch {
	case m.BrakeTimingDeltaS > 0.05:
		return "late_brake"
	case m.BrakeTimingDeltaS < -0.05:
		return "early_brake"
	case m.ThrottleTimingDeltaS > 0.05:
		return "late_throttle"
	case m.ThrottleTimingDeltaS < -0.05:
		return "early_throttle"
	case m.ApexSpeedDeltaKph < -3:
		return "low_apex_speed"
	case m.ApexSpeedDeltaKph > 3:
		return "high_apex_speed"
	case m.EntrySpeedDeltaKph < -5:
		return "low_entry_speed"
	case m.EntrySpeedDeltaKph > 5:
		return "high_entry_speed"
	case m.ExitSpeedDeltaKph < -3:
		return "low_exit_speed"
	case m.ExitSpeedDeltaKph > 3:
		return "high_exit_speed"
	case containsPattern(m.Patterns, "understeer"):
		return "understeer"
	case containsPattern(m.Patterns, "off_throttle_oversteer"):
		return "off_throttle_oversteer"
	case m.Smoothness < 0.5:
		return "inconsistent_inputs"
	case m.RacingLineDeviation > 0.1:
		return "poor_racing_line"
	default:
		if m.TotalTimeLossS > 0.2 {
			return "poor_racing_line"
		}
		return "general_mistake"
	}
}

func containsPattern(patterns []string, want string) bool {
	for _, p := range patterns {
		if p == want {
			return true
		}
	}
	return false
}

// AddFromMicroAnalysis converts m into an Event iff its time loss exceeds the
// minimum threshold, then folds it into the matching Pattern.
func (t *Tracker) AddFromMicroAnalysis(m *analysis.MicroAnalysis) (*Event, bool) {
	if m.TotalTimeLossS <= t.cfg.MinTimeLoss {
		return nil, false
	}
	ev := Event{
		MistakeType: Classify(m),
		CornerID:    m.CornerID,
		At:          m.At,
		Severity:    minF(1.0, m.TotalTimeLossS/t.cfg.SeverityNormalize),
		TimeLossS:   m.TotalTimeLossS,
		Description: firstOr(m.Feedback, "mistake detected"),
	}
	t.add(ev)
	return &ev, true
}

func firstOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return items[0]
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func (t *Tracker) add(ev Event) {
	key := ev.MistakeType + "|" + ev.CornerID
	p, ok := t.patterns[key]
	if !ok {
		p = &Pattern{MistakeType: ev.MistakeType, CornerID: ev.CornerID, FirstSeen: ev.At}
		t.patterns[key] = p
	}
	p.events = append(p.events, ev)
	t.recompute(p, ev.At)
}

func (t *Tracker) recompute(p *Pattern, now time.Time) {
	p.Frequency = len(p.events)
	p.LastSeen = now

	var total float64
	var recent int
	cutoff := now.Add(-t.cfg.RecentWindow)
	for _, e := range p.events {
		total += e.TimeLossS
		if !e.At.Before(cutoff) {
			recent++
		}
	}
	p.TotalTimeLossS = total
	p.AvgTimeLossS = total / float64(len(p.events))
	p.RecentCount = recent
	p.SeverityTrend = trendFor(p.events, t.cfg.TrendMinEvents)
	p.Priority = priorityFor(p.Frequency, p.AvgTimeLossS)
}

func trendFor(events []Event, minEvents int) SeverityTrend {
	if len(events) < minEvents {
		return TrendStable
	}
	mid := len(events) / 2
	earlier, recent := events[:mid], events[mid:]
	earlierAvg := avgLoss(earlier)
	recentAvg := avgLoss(recent)
	switch {
	case recentAvg < earlierAvg*0.9:
		return TrendImproving
	case recentAvg > earlierAvg*1.1:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func avgLoss(events []Event) float64 {
	if len(events) == 0 {
		return 0
	}
	var sum float64
	for _, e := range events {
		sum += e.TimeLossS
	}
	return sum / float64(len(events))
}

func priorityFor(freq int, avgLossS float64) Priority {
	for _, row := range priorityTable {
		if freq >= row.minFreq && avgLossS >= row.minAvgLossS {
			return row.priority
		}
	}
	return PriorityLow
}

// Summary computes the session-level rollup per §4.6.
func (t *Tracker) Summary() SessionSummary {
	var totalMistakes int
	var totalLoss float64
	patterns := make([]*Pattern, 0, len(t.patterns))
	for _, p := range t.patterns {
		patterns = append(patterns, p)
		totalMistakes += p.Frequency
		totalLoss += p.TotalTimeLossS
	}

	score := 1.0 - minF(0.5, 0.1*float64(totalMistakes)) - minF(0.3, totalLoss/10)
	if score < 0 {
		score = 0
	}

	mostCommon := topN(patterns, func(a, b *Pattern) bool { return a.Frequency > b.Frequency }, 5)
	mostCostly := topN(patterns, func(a, b *Pattern) bool { return a.TotalTimeLossS > b.TotalTimeLossS }, 5)

	return SessionSummary{
		Score:          score,
		TotalMistakes:  totalMistakes,
		TotalTimeLostS: totalLoss,
		MostCommon:     mostCommon,
		MostCostly:     mostCostly,
	}
}

// topN sorts a copy of patterns by less and returns at most n, using lo.Subset
// for the bounds-safe truncation (handles n > len gracefully).
func topN(patterns []*Pattern, less func(a, b *Pattern) bool, n int) []*Pattern {
	sorted := lo.Filter(patterns, func(p *Pattern, _ int) bool { return p != nil })
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	return lo.Subset(sorted, 0, uint(n))
}
