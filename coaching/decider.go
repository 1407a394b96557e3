package coaching

import (
	"racecoach/analysis"
	"racecoach/config"
	"racecoach/detect"
)

// situationCategory maps a detector situation to its message category.
var situationCategory = map[detect.Situation]Category{
	detect.SituationOversteer:            CategoryHandling,
	detect.SituationUndersteer:           CategoryHandling,
	detect.SituationInsufficientBraking:  CategoryBraking,
	detect.SituationLateBraking:          CategoryBraking,
	detect.SituationInputOverlap:         CategoryBraking,
	detect.SituationTrailBraking:         CategoryPositive,
	detect.SituationShiftEarly:           CategoryGearShifting,
	detect.SituationShiftLate:            CategoryGearShifting,
	detect.SituationPoorRevMatching:      CategoryGearShifting,
	detect.SituationMissedEngineBraking:  CategoryGearShifting,
	detect.SituationHighGWarning:         CategoryGForces,
	detect.SituationRoughGTransitions:    CategoryWeightTransfer,
	detect.SituationUnderusedGrip:        CategoryWeightTransfer,
	detect.SituationInconsistentLapTimes: CategoryConsistency,
	detect.SituationExcellentConsistency: CategoryPositive,
	detect.SituationOffUnderBraking:      CategoryBraking,
	detect.SituationOffUnderPower:        CategoryThrottle,
	detect.SituationOffMidcorner:         CategoryRacingLine,
	detect.SituationTrackLimitsPattern:   CategoryRacingLine,
}

// llmEligibleCategories is the decider-level category set that always asks the LLM,
// expressed in terms that match a derived category mapping for micro-analysis
// patterns (corner_analysis / race_strategy / technique_improvement).
var llmEligibleCategories = map[Category]bool{
	CategoryRacingLine:   true, // corner_analysis
	CategoryConsistency:  true, // technique_improvement
	CategoryHandling:     true, // technique_improvement
	CategoryPitStrategy:  true, // race_strategy
}

func priorityFromImportance(importance float64) Priority {
	switch {
	case importance > 0.9:
		return PriorityCritical
	case importance > 0.7:
		return PriorityHigh
	case importance > 0.4:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Decision is the decider's verdict for one insight.
type Decision struct {
	Category   Category
	Priority   Priority
	AskLLM     bool
	Confidence float64
}

// Decider implements §4.7's decision rule.
type Decider struct {
	cfg config.CoachingConfig
}

// NewDecider builds a Decider bound to the given config.
func NewDecider(cfg config.CoachingConfig) *Decider {
	return &Decider{cfg: cfg}
}

// DecideInsight evaluates a detector insight.
func (d *Decider) DecideInsight(insight detect.Insight) Decision {
	category, ok := situationCategory[insight.Situation]
	if !ok {
		category = CategoryGeneral
	}
	priority := priorityFromImportance(insight.Importance)
	askLLM := llmEligibleCategories[category] ||
		(insight.Confidence < d.cfg.LocalConfidenceMax && insight.Importance > d.cfg.ImportanceMin)
	return Decision{Category: category, Priority: priority, AskLLM: askLLM, Confidence: insight.Confidence}
}

// DecideMicroAnalysis evaluates a completed micro-analysis.
func (d *Decider) DecideMicroAnalysis(m *analysis.MicroAnalysis) Decision {
	category := CategoryRacingLine
	importance := m.TotalTimeLossS / 0.5 // normalize against the "high" threshold
	if importance > 1 {
		importance = 1
	}
	confidence := 1 - m.TotalTimeLossS
	if confidence < 0 {
		confidence = 0
	}
	priority := Priority(m.Priority)
	askLLM := llmEligibleCategories[category] || (confidence < d.cfg.LocalConfidenceMax && importance > d.cfg.ImportanceMin)
	return Decision{Category: category, Priority: priority, AskLLM: askLLM, Confidence: confidence}
}
