// Package coaching turns detector insights and micro-analyses into
// prioritized, deduplicated CoachingMessages and delivers them through a
// rate-limited queue, per spec §4.7-4.8.
package coaching

import (
	"time"

	"github.com/google/uuid"

	"racecoach/analysis"
)

// Priority mirrors analysis.Priority's closed set.
type Priority = analysis.Priority

const (
	PriorityCritical = analysis.PriorityCritical
	PriorityHigh     = analysis.PriorityHigh
	PriorityMedium   = analysis.PriorityMedium
	PriorityLow      = analysis.PriorityLow
)

// Category is a closed set of message topics.
type Category string

const (
	CategoryBraking       Category = "braking"
	CategoryThrottle      Category = "throttle"
	CategoryCornering     Category = "cornering"
	CategoryConsistency   Category = "consistency"
	CategoryRacingLine    Category = "racing-line"
	CategoryHandling      Category = "handling"
	CategoryGearShifting  Category = "gear-shifting"
	CategoryWeightTransfer Category = "weight-transfer"
	CategoryGForces       Category = "g-forces"
	CategoryPositive      Category = "positive"
	CategoryTip           Category = "tip"
	CategorySession       Category = "session"
	CategoryBaseline      Category = "baseline"
	CategoryGeneral       Category = "general"
	CategoryPitStrategy   Category = "pit-strategy"
	CategoryTireManagement Category = "tire-management"
	CategorySafety        Category = "safety"
)

// Source identifies where a message originated.
type Source string

const (
	SourceLocal    Source = "local"
	SourceRemote   Source = "remote"
	SourceCombined Source = "combined"
	SourceReference Source = "reference"
)

// Message is a single coaching utterance.
type Message struct {
	ID         string
	Content    string
	Category   Category
	Priority   Priority
	Source     Source
	Confidence float64
	Context    string
	Timestamp  time.Time
	AudioB64   string // opaque; never synthesized locally
	Delivered  bool
	Attempts   int

	SecondaryMessages []string
}

// NewMessage stamps a message with a generated id and timestamp.
func NewMessage(content string, category Category, priority Priority, source Source, confidence float64) Message {
	return Message{
		ID:         uuid.NewString(),
		Content:    content,
		Category:   category,
		Priority:   priority,
		Source:     source,
		Confidence: confidence,
		Timestamp:  time.Now(),
	}
}

// priorityRank gives the sort key used by the queue: lower sorts first.
func priorityRank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}
