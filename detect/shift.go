package detect

import (
	"math"
	"time"

	"racecoach/config"
	"racecoach/telemetry"
)

type upshiftSample struct {
	rpm     float64
	lapTime float64
}

// ShiftDetector tracks gear changes and flags mistimed shifts and poor rev
// matching, per §4.4.3. Upshift bands adapt over time from recent upshifts
// (see AdaptBands).
type ShiftDetector struct {
	cfg config.ShiftConfig

	prevGear     int
	prevRPM      float64
	lastShiftAt  time.Time
	haveLast     bool

	downshiftQuality []float64 // rolling recent rev-match quality scores

	recentUpshifts map[int][]upshiftSample
}

// NewShiftDetector builds a detector bound to the given config. It keeps its
// own copy of cfg's upshift bands, so AdaptBands never changes the caller's
// config.
func NewShiftDetector(cfg config.ShiftConfig) *ShiftDetector {
	bands := make(map[int][2]float64, len(cfg.UpshiftBands))
	for gear, band := range cfg.UpshiftBands {
		bands[gear] = band
	}
	cfg.UpshiftBands = bands
	return &ShiftDetector{
		cfg:            cfg,
		recentUpshifts: make(map[int][]upshiftSample),
	}
}

// Detect processes the latest sample, comparing it to the previous gear/rpm.
func (d *ShiftDetector) Detect(s telemetry.Sample, bestLapTime float64) []Insight {
	if !d.haveLast {
		d.prevGear, d.prevRPM, d.lastShiftAt, d.haveLast = s.Gear, s.RPM, s.Timestamp, true
		return nil
	}
	defer func() {
		d.prevGear, d.prevRPM = s.Gear, s.RPM
	}()

	if s.Gear == d.prevGear {
		return nil
	}

	shiftDuration := s.Timestamp.Sub(d.lastShiftAt)
	d.lastShiftAt = s.Timestamp

	var out []Insight
	if s.Gear > d.prevGear {
		out = append(out, d.handleUpshift(d.prevGear, s, shiftDuration, bestLapTime)...)
	} else {
		out = append(out, d.handleDownshift(s, shiftDuration)...)
	}
	return out
}

func (d *ShiftDetector) handleUpshift(fromGear int, s telemetry.Sample, dur time.Duration, bestLapTime float64) []Insight {
	band, ok := d.cfg.UpshiftBands[fromGear]
	if !ok {
		return nil
	}
	center := (band[0] + band[1]) / 2
	delta := d.prevRPM - center

	d.recentUpshifts[fromGear] = append(d.recentUpshifts[fromGear], upshiftSample{rpm: d.prevRPM, lapTime: bestLapTime})
	if len(d.recentUpshifts[fromGear]) > 20 {
		d.recentUpshifts[fromGear] = d.recentUpshifts[fromGear][len(d.recentUpshifts[fromGear])-20:]
	}

	if math.Abs(delta) <= d.cfg.RpmDeviation {
		return nil
	}
	situation := SituationShiftLate
	if delta < 0 {
		situation = SituationShiftEarly
	}
	severity := clampUnit(math.Abs(delta) / (d.cfg.RpmDeviation * 2))
	return []Insight{{
		Situation:  situation,
		Confidence: severity,
		Importance: severity,
		Descriptor: map[string]any{"gear": fromGear, "rpm": d.prevRPM, "band_center": center, "shift_duration_s": dur.Seconds()},
		At:         s.Timestamp,
	}}
}

func (d *ShiftDetector) handleDownshift(s telemetry.Sample, dur time.Duration) []Insight {
	rpmRise := s.RPM - d.prevRPM
	quality := math.Max(0, 100-math.Abs(rpmRise-d.cfg.RevMatchTarget)/10)
	d.downshiftQuality = append(d.downshiftQuality, quality)
	if len(d.downshiftQuality) > 10 {
		d.downshiftQuality = d.downshiftQuality[len(d.downshiftQuality)-10:]
	}

	var out []Insight
	if quality < d.cfg.RevMatchQualityMin && len(d.downshiftQuality) >= 2 {
		out = append(out, Insight{
			Situation:  SituationPoorRevMatching,
			Confidence: clampUnit((d.cfg.RevMatchQualityMin - quality) / d.cfg.RevMatchQualityMin),
			Importance: 0.5,
			Descriptor: map[string]any{"quality": quality},
			At:         s.Timestamp,
		})
	}
	if s.Brake > 0.1 && s.Throttle > 0.1 {
		out = append(out, Insight{
			Situation:  SituationMissedEngineBraking,
			Confidence: 0.5,
			Importance: 0.4,
			Descriptor: map[string]any{"shift_duration_s": dur.Seconds()},
			At:         s.Timestamp,
		})
	}
	return out
}

// AdaptBands blends a gear's upshift band toward (mean-stdev, mean+stdev)
// when at least AdaptMinUpshifts recent upshifts qualify. An upshift
// qualifies when the personal best that Detect received at the time of the
// upshift is within AdaptBestLapPct of personalBest; the time of the lap on
// which the upshift happened is not recorded or compared.
func (d *ShiftDetector) AdaptBands(personalBest float64) {
	if personalBest <= 0 {
		return
	}
	for gear, samples := range d.recentUpshifts {
		var qualifying []float64
		for _, sample := range samples {
			if sample.lapTime <= 0 {
				continue
			}
			if (sample.lapTime-personalBest)/personalBest <= d.cfg.AdaptBestLapPct {
				qualifying = append(qualifying, sample.rpm)
			}
		}
		if len(qualifying) < d.cfg.AdaptMinUpshifts {
			continue
		}
		mean, stdev := meanStdev(qualifying)
		target := [2]float64{mean - stdev, mean + stdev}
		cur := d.cfg.UpshiftBands[gear]
		d.cfg.UpshiftBands[gear] = [2]float64{
			blend(cur[0], target[0], d.cfg.AdaptBlendWeight),
			blend(cur[1], target[1], d.cfg.AdaptBlendWeight),
		}
	}
}

func blend(old, next, weight float64) float64 {
	return old*(1-weight) + next*weight
}

func meanStdev(vals []float64) (mean, stdev float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean = sum / float64(len(vals))
	var variance float64
	for _, v := range vals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(vals))
	stdev = math.Sqrt(variance)
	return mean, stdev
}
