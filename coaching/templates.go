package coaching

import (
	"fmt"

	"racecoach/analysis"
	"racecoach/detect"
)

// categoryKeywords back the combine-detection heuristic in the queue: two
// messages of the same category "share intent" if they both mention at least
// CombineMinKeywords of these words for that category.
var categoryKeywords = map[Category][]string{
	CategoryThrottle:    {"throttle", "power", "accelerat", "traction"},
	CategoryBraking:     {"brake", "braking", "stopping"},
	CategoryCornering:   {"corner", "apex", "turn", "steering"},
	CategoryConsistency: {"consistent", "consistency", "variation"},
}

// combineTemplate renders a single message out of N similar ones sharing a
// category, per §4.8's combine rule.
func combineTemplate(category Category, count int) string {
	switch category {
	case CategoryThrottle:
		return fmt.Sprintf("Throttle application needs attention in %d spots this lap", count)
	case CategoryBraking:
		return fmt.Sprintf("Braking technique flagged %d times, focus on smoothness", count)
	case CategoryCornering:
		return fmt.Sprintf("Cornering line was off in %d places, work the apex", count)
	case CategoryConsistency:
		return fmt.Sprintf("Lap times varied across %d samples, aim for repeatable inputs", count)
	default:
		return fmt.Sprintf("%d similar issues flagged this lap", count)
	}
}

// baselineTemplate renders the countdown/established messages for §8 scenario 1.
func baselineTemplate(remaining int) string {
	if remaining <= 0 {
		return "Your baseline has been established — full coaching is now active"
	}
	return fmt.Sprintf("Still building your baseline, %d more valid lap(s) needed", remaining)
}

// situationTemplate renders a default local message for a detector
// situation when the decider chooses not to ask the LLM.
func situationTemplate(situationKey string, descriptor map[string]any) string {
	switch situationKey {
	case "understeer":
		return "Understeer detected — try a later, more progressive turn-in"
	case "oversteer":
		return "Oversteer detected — ease off and look where you want to go"
	case "insufficient_braking":
		return "You're not using all the available brake pressure"
	case "late_braking":
		return "Your brake point is later than your reference here"
	case "input_overlap":
		return "Avoid overlapping brake and throttle at low speed"
	case "shift_early":
		return "Shifting a little early — let the revs build more"
	case "shift_late":
		return "Shifting a little late — you're past the optimal band"
	case "poor_rev_matching":
		return "Rev-match your downshifts more precisely"
	case "missed_engine_braking":
		return "Get off the throttle fully while trail-braking into this corner"
	case "high_g_warning":
		return "High combined g load — check for excess input"
	case "rough_g_transitions":
		return "Smooth out your weight transfer between inputs"
	case "underused_grip":
		return "You're leaving grip on the table through here"
	case "inconsistent_lap_times":
		return "Lap times are inconsistent — focus on repeatable reference points"
	case "excellent_consistency":
		return "Great consistency across your recent laps"
	case "off_under_braking":
		return "Went off track under braking — check your brake point and pressure"
	case "off_under_power":
		return "Went off track under power — ease the throttle at exit"
	case "off_midcorner":
		return "Went off track mid-corner — check your line"
	case "track_limits_pattern":
		return "Repeated track-limits issues through this section"
	default:
		return "Keep an eye on this section, there's time to find"
	}
}

// RenderInsight builds the local (pre-LLM) Message for a detector insight
// and the decision already made about it, rendering from situationTemplate.
func RenderInsight(insight detect.Insight, decision Decision) Message {
	msg := NewMessage(situationTemplate(string(insight.Situation), insight.Descriptor), decision.Category, decision.Priority, SourceLocal, decision.Confidence)
	if insight.Reference != nil {
		msg.Context = fmt.Sprintf("delta %.2fs, improvement potential %.2f", insight.Reference.Delta, insight.Reference.ImprovementPotential)
	}
	return msg
}

// RenderBaseline builds the §3 baseline-countdown/established message.
func RenderBaseline(remaining int) Message {
	return NewMessage(baselineTemplate(remaining), CategoryBaseline, PriorityLow, SourceLocal, 1.0)
}

// RenderMicroAnalysis builds the local Message for a completed corner
// micro-analysis, leading on its first feedback line with the rest carried
// as secondary messages (§6.2's coaching.data.secondary_messages).
func RenderMicroAnalysis(m *analysis.MicroAnalysis, decision Decision) Message {
	lead := "Good through this corner, keep it up"
	var secondary []string
	if len(m.Feedback) > 0 {
		lead = m.Feedback[0]
		secondary = m.Feedback[1:]
	}
	msg := NewMessage(lead, decision.Category, decision.Priority, SourceLocal, decision.Confidence)
	msg.SecondaryMessages = secondary
	msg.Context = fmt.Sprintf("corner %s, time loss %.2fs", m.CornerID, m.TotalTimeLossS)
	return msg
}
