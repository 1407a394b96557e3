package detect

import (
	"time"

	"racecoach/config"
	"racecoach/telemetry"
)

type brakeEvent struct {
	peakBrake float64
	at        time.Time
}

// BrakingDetector finds insufficient braking, late braking and input-overlap
// patterns, per §4.4.2.
type BrakingDetector struct {
	cfg config.BrakingConfig

	applying    bool
	peakInCur   float64
	recent      []brakeEvent
}

// NewBrakingDetector builds a detector bound to the given config.
func NewBrakingDetector(cfg config.BrakingConfig) *BrakingDetector {
	return &BrakingDetector{cfg: cfg}
}

// Detect evaluates the latest sample against the previous one (by index
// len(snapshot)-2) to find brake-apply/release edges and overlap conditions.
func (d *BrakingDetector) Detect(snapshot []telemetry.Sample, cornerID string, now time.Time) []Insight {
	if len(snapshot) == 0 {
		return nil
	}
	cur := snapshot[len(snapshot)-1]
	var prevBrake float64
	if len(snapshot) >= 2 {
		prevBrake = snapshot[len(snapshot)-2].Brake
	}

	var out []Insight

	crossedUp := prevBrake < d.cfg.PressThreshold && cur.Brake >= d.cfg.PressThreshold
	crossedDown := prevBrake >= d.cfg.PressThreshold && cur.Brake < d.cfg.PressThreshold

	if crossedUp {
		d.applying = true
		d.peakInCur = cur.Brake
		if cur.SpeedMps > d.cfg.LateBrakeSpeed && cur.Brake > d.cfg.LateBrakeBrake {
			out = append(out, Insight{
				Situation:  SituationLateBraking,
				Confidence: 0.7,
				Importance: 0.7,
				CornerID:   cornerID,
				Descriptor: map[string]any{"speed_mps": cur.SpeedMps, "brake": cur.Brake},
				At:         now,
			})
		}
	} else if d.applying && cur.Brake > d.peakInCur {
		d.peakInCur = cur.Brake
	}

	if crossedDown && d.applying {
		d.applying = false
		d.recent = append(d.recent, brakeEvent{peakBrake: d.peakInCur, at: now})
		if len(d.recent) > d.cfg.RecentEventCount {
			d.recent = d.recent[len(d.recent)-d.cfg.RecentEventCount:]
		}
		if avg := d.averagePeak(); len(d.recent) >= d.cfg.RecentEventCount && avg < d.cfg.InsufficientAvg {
			out = append(out, Insight{
				Situation:  SituationInsufficientBraking,
				Confidence: clampUnit((d.cfg.InsufficientAvg - avg) / d.cfg.InsufficientAvg),
				Importance: 0.6,
				CornerID:   cornerID,
				Descriptor: map[string]any{"avg_peak_brake": avg},
				At:         now,
			})
		}
	}

	if cur.Brake > d.cfg.OverlapBrake && cur.Throttle > d.cfg.OverlapThrottle {
		switch {
		case cur.SpeedMps < d.cfg.OverlapLowSpeed:
			out = append(out, Insight{
				Situation:  SituationInputOverlap,
				Confidence: 0.6,
				Importance: 0.5,
				CornerID:   cornerID,
				Descriptor: map[string]any{"speed_mps": cur.SpeedMps},
				At:         now,
			})
		case cur.SpeedMps > d.cfg.TrailBrakeSpeed:
			out = append(out, Insight{
				Situation:  SituationTrailBraking,
				Confidence: 0.5,
				Importance: 0.2,
				CornerID:   cornerID,
				Descriptor: map[string]any{"speed_mps": cur.SpeedMps},
				At:         now,
			})
		}
	}

	return out
}

func (d *BrakingDetector) averagePeak() float64 {
	if len(d.recent) == 0 {
		return 0
	}
	var sum float64
	for _, e := range d.recent {
		sum += e.peakBrake
	}
	return sum / float64(len(d.recent))
}
