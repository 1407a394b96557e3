package detect

import (
	"time"

	"racecoach/config"
	"racecoach/telemetry"
)

// OffTrackDetector classifies on-track -> off-track transitions and tracks
// a rolling off-track sample ratio, per §4.4.6.
type OffTrackDetector struct {
	cfg config.OffTrackConfig

	prevSurface telemetry.TrackSurface
	haveLast    bool
	recent      []bool // true = off-track sample
}

// NewOffTrackDetector builds a detector bound to the given config.
func NewOffTrackDetector(cfg config.OffTrackConfig) *OffTrackDetector {
	return &OffTrackDetector{cfg: cfg}
}

// Detect evaluates the latest sample's surface transition and the pattern
// window.
func (d *OffTrackDetector) Detect(s telemetry.Sample, cornerID string, now time.Time) []Insight {
	offNow := s.Surface == telemetry.SurfaceOffTrack
	d.recent = append(d.recent, offNow)
	if len(d.recent) > d.cfg.PatternWindow {
		d.recent = d.recent[len(d.recent)-d.cfg.PatternWindow:]
	}

	var out []Insight
	if d.haveLast && d.prevSurface == telemetry.SurfaceOnTrack && offNow && s.SpeedMps > d.cfg.SpeedGateMps {
		situation := SituationOffMidcorner
		switch {
		case s.Brake > d.cfg.BrakeThreshold:
			situation = SituationOffUnderBraking
		case s.Throttle > d.cfg.ThrottleThreshold:
			situation = SituationOffUnderPower
		}
		out = append(out, Insight{
			Situation:  situation,
			Confidence: 0.7,
			Importance: 0.7,
			CornerID:   cornerID,
			Descriptor: map[string]any{"speed_mps": s.SpeedMps, "brake": s.Brake, "throttle": s.Throttle},
			Reference:  &ReferenceContext{ImprovementPotential: 0.2},
			At:         now,
		})
	}

	if len(d.recent) == d.cfg.PatternWindow {
		var offCount int
		for _, v := range d.recent {
			if v {
				offCount++
			}
		}
		if float64(offCount)/float64(len(d.recent)) > d.cfg.PatternRatio {
			out = append(out, Insight{
				Situation:  SituationTrackLimitsPattern,
				Confidence: 0.6,
				Importance: 0.5,
				CornerID:   cornerID,
				Descriptor: map[string]any{"off_ratio": float64(offCount) / float64(len(d.recent))},
				At:         now,
			})
		}
	}

	d.prevSurface = s.Surface
	d.haveLast = true
	return out
}
