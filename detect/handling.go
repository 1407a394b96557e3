package detect

import (
	"time"

	"racecoach/config"
	"racecoach/telemetry"
)

// HandlingDetector finds understeer/oversteer from the expected-vs-measured
// yaw ratio over a short window, per §4.4.1.
type HandlingDetector struct {
	cfg config.HandlingConfig

	lastEventAt map[string]time.Time // key: corner|direction
	events      map[string][]time.Time
}

// NewHandlingDetector builds a detector bound to the given config.
func NewHandlingDetector(cfg config.HandlingConfig) *HandlingDetector {
	return &HandlingDetector{
		cfg:         cfg,
		lastEventAt: make(map[string]time.Time),
		events:      make(map[string][]time.Time),
	}
}

// Detect evaluates the samples of snapshot that fall within the trailing
// 0.3s before now. snapshot must be ordered oldest-to-newest; it may span a
// longer window, since Detect trims it itself.
func (d *HandlingDetector) Detect(snapshot []telemetry.Sample, cornerID string, now time.Time) []Insight {
	window := trailing(snapshot, 300*time.Millisecond, now)
	if len(window) == 0 {
		return nil
	}

	var sumRW, sumRA float64
	var n int
	var avgThrottle, avgBrake float64

	for _, s := range window {
		if s.SpeedMps <= d.cfg.SpeedGateMps || absF(s.SteeringRad) <= d.cfg.SteerGateRad {
			continue
		}
		expectedYaw := s.SteeringRad * (s.SpeedMps / 100) * d.cfg.YawCalibrationK
		if expectedYaw == 0 {
			continue
		}
		rw := s.YawRateRadS / expectedYaw
		var ra float64
		denom := (s.YawRateRadS * s.SpeedMps) / 9.81
		if denom != 0 {
			ra = s.AccelLatG / denom
		}
		sumRW += rw
		sumRA += ra
		avgThrottle += s.Throttle
		avgBrake += s.Brake
		n++
	}
	if n == 0 {
		return nil
	}
	rOmega := sumRW / float64(n)
	avgThrottle /= float64(n)
	avgBrake /= float64(n)
	last := window[len(window)-1]

	var out []Insight
	switch {
	case rOmega > d.cfg.OversteerRatio && d.estimatedSlip(last) > d.cfg.OversteerSlipMin:
		sub := "oversteer"
		if avgThrottle > 0.3 {
			sub = "power-oversteer"
		} else if avgBrake > 0.3 {
			sub = "trail-brake-oversteer"
		}
		if !d.onCooldown(cornerID, "oversteer", now) {
			severity := minF(1, (rOmega-1.0)/0.5)
			out = append(out, Insight{
				Situation:  SituationOversteer,
				Confidence: clampUnit(severity),
				Importance: clampUnit(severity),
				CornerID:   cornerID,
				Descriptor: map[string]any{"sub_case": sub, "r_omega": rOmega},
				At:         now,
			})
			d.record(cornerID, "oversteer", now)
		}
	case rOmega < d.cfg.UndersteerRatio && absF(last.SteeringRad) > d.cfg.UndersteerSteerMin:
		sub := "understeer"
		if last.SpeedMps > 26.8 { // ~60 mph
			sub = "high-speed-understeer"
		} else if avgThrottle > 0.5 {
			sub = "power-understeer"
		}
		if !d.onCooldown(cornerID, "understeer", now) {
			severity := minF(1, (d.cfg.UndersteerRatio-rOmega)/0.3)
			out = append(out, Insight{
				Situation:  SituationUndersteer,
				Confidence: clampUnit(severity),
				Importance: clampUnit(severity),
				CornerID:   cornerID,
				Descriptor: map[string]any{"sub_case": sub, "r_omega": rOmega},
				At:         now,
			})
			d.record(cornerID, "understeer", now)
		}
	}
	return out
}

func (d *HandlingDetector) estimatedSlip(s telemetry.Sample) float64 {
	// approximate slip angle from lateral vs forward velocity
	if s.VelocityX == 0 {
		return 0
	}
	return absF(s.VelocityY / s.VelocityX)
}

func (d *HandlingDetector) onCooldown(corner, direction string, now time.Time) bool {
	key := corner + "|" + direction
	last, ok := d.lastEventAt[key]
	return ok && now.Sub(last) < d.cfg.CornerCooldown
}

func (d *HandlingDetector) record(corner, direction string, now time.Time) {
	key := corner + "|" + direction
	d.lastEventAt[key] = now
	hist := append(d.events[key], now)
	if len(hist) > d.cfg.EventHistoryCap {
		hist = hist[len(hist)-d.cfg.EventHistoryCap:]
	}
	d.events[key] = hist
}

// trailing returns the suffix of snapshot within window of now.
func trailing(snapshot []telemetry.Sample, window time.Duration, now time.Time) []telemetry.Sample {
	cutoff := now.Add(-window)
	for i := len(snapshot) - 1; i >= 0; i-- {
		if snapshot[i].Timestamp.Before(cutoff) {
			return snapshot[i+1:]
		}
	}
	return snapshot
}
