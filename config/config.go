// Package config assembles the frozen configuration object shared by every
// pipeline component. There is exactly one Config per session; it is built
// once at startup and passed down by constructor, never mutated in place.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// RingBufferConfig controls the telemetry ring buffer (§4.1).
type RingBufferConfig struct {
	Window   time.Duration // default 30s
	RateHz   int           // default 60
	Capacity int           // Window * RateHz, computed by Validate
}

// LapConfig controls the lap/sector detector (§4.2).
type LapConfig struct {
	SectorBoundaries  []float64     // sorted fractions [0, b1, ..., 1], default {0, 1/3, 2/3, 1} (3 sectors)
	MinLapDuration    time.Duration // guard against spurious wrap detection, default 30s
	WrapThreshold     float64       // default 0.5
}

// HandlingConfig controls the understeer/oversteer detector (§4.4.1).
type HandlingConfig struct {
	SpeedGateMps       float64 // default 15
	SteerGateRad       float64 // default 0.1
	YawCalibrationK    float64 // default 0.5
	OversteerRatio     float64 // default 1.3
	OversteerSlipMin   float64 // default 0.1
	UndersteerRatio    float64 // default 0.7
	UndersteerSteerMin float64 // default 0.2
	CornerCooldown     time.Duration
	EventHistoryCap    int
}

// BrakingConfig controls the braking detector (§4.4.2).
type BrakingConfig struct {
	PressThreshold   float64 // crossing brake% upward, default 0.10
	InsufficientAvg  float64 // default 0.50
	LateBrakeSpeed   float64 // m/s, ~90mph default
	LateBrakeBrake   float64 // default 0.30
	OverlapBrake     float64 // default 0.15
	OverlapThrottle  float64 // default 0.15
	OverlapLowSpeed  float64 // m/s, ~50mph
	TrailBrakeSpeed  float64 // m/s, ~80mph
	RecentEventCount int
}

// ShiftConfig controls the shift detector (§4.4.3).
type ShiftConfig struct {
	UpshiftBands       map[int][2]float64 // gear -> (low, high) rpm band
	RpmDeviation       float64            // default 500
	RevMatchTarget     float64            // default 1000 rpm rise
	RevMatchQualityMin float64            // default 60
	AdaptBlendWeight   float64            // default 0.3 (new), 0.7 (old)
	AdaptMinUpshifts   int                // default 5
	AdaptBestLapPct    float64            // default 0.02 (2%)
}

// WeightGForceConfig controls the weight-transfer/g-force detector (§4.4.4).
type WeightGForceConfig struct {
	HistoryWindow       time.Duration // default 5s
	HighGThreshold      float64       // default 2.5
	SmoothnessThreshold float64       // default 0.6
	GripUtilLatMax      float64       // default 2.5
	GripUtilLongMax     float64       // default 2.0
	UnderusedGripMax    float64       // default 0.5
	UnderusedGripWindow time.Duration // default 5s
}

// ConsistencyConfig controls the consistency detector (§4.4.5).
type ConsistencyConfig struct {
	WindowLaps         int     // default 5
	Threshold          float64 // default 0.05, adaptive
	ExcellentThreshold float64 // default Threshold/2
	ExcellentMinLaps   int     // default 3
}

// OffTrackConfig controls the off-track excursion detector (§4.4.6).
type OffTrackConfig struct {
	SpeedGateMps      float64 // default ~4
	BrakeThreshold    float64 // default 0.30
	ThrottleThreshold float64 // default 0.50
	PatternWindow     int     // default 30 samples
	PatternRatio      float64 // default 0.20
}

// MicroAnalysisConfig controls §4.5.
type MicroAnalysisConfig struct {
	EntryThreshold       float64       // steering rad to enter Active, default 0.1
	ExitThreshold        float64       // steering rad to enter Finalize, default 0.05
	MinBufferedSamples   int           // default 5
	BrakeStartThreshold  float64       // default 0.10
	ThrottleStartThresh  float64       // default 0.10
	FractionToSeconds    float64       // calibration constant, default 2.0
	SmoothnessDivisor    float64       // default 0.5
	TimeLossHigh         float64       // default 0.5s; not read: analysis.priorityFor uses a fixed 0.5s high threshold
	TimeLossMedium       float64       // default 0.2s; not read: analysis.priorityFor uses a fixed 0.1s medium threshold
}

// MistakeConfig controls §4.6.
type MistakeConfig struct {
	MinTimeLoss       float64       // default 0.05
	SeverityNormalize float64       // default 0.5
	RecentWindow      time.Duration // default 10 minutes
	TrendMinEvents    int           // default 4
}

// CoachingConfig controls §4.7/§4.8.
type CoachingConfig struct {
	LLMCategories          map[string]bool
	LocalConfidenceMax     float64 // default 0.6
	ImportanceMin          float64 // default 0.7
	LLMRateLimitPerMinute  int     // default 5
	GlobalRateLimitPerMin  int     // default 5
	CategoryCooldowns      map[string]time.Duration
	DefaultCooldown        time.Duration
	CombineWindow          time.Duration // default 3s
	CombineMinKeywords     int           // default 2
	CombineMaxMessages     int           // default 5
	OverrideWindow         time.Duration // default 3s, LLM-vs-local override window
	SimilarityThreshold    float64       // default 0.6 fuzzy dedupe
}

// ReferenceConfig controls §4.9.
type ReferenceConfig struct {
	OptimalPct     float64 // default 0.005 (0.5%)
	ConsistencyPct float64 // default 0.01 (1%)
	RacePacePct    float64 // default 0.02 (2%)
	WindowLaps     int     // default 5
}

// LLMConfig controls §4.10 / §6.6.
type LLMConfig struct {
	APIKey               string
	Model                string
	MaxTokensCoaching    int32
	Temperature          float32
	TopP                 float32
	TopK                 float32
	TextTimeout          time.Duration // default 10s
	AudioTimeout         time.Duration // default 15s
	MaxRequestsPerMinute int           // default 5
	BurstLimit           int
	RetryAttempts        int
	ConfidenceFloor      float64 // default 0.8
	EnableCaching        bool
	CacheTTL             time.Duration
}

// PersistenceConfig controls §6.4.
type PersistenceConfig struct {
	DataDir string // default "coaching_data"
}

// WSConfig controls the §6.2/§6.3 WebSocket transports.
type WSConfig struct {
	UIAddr           string        // default ":8765", serves /telemetry, /session, /coaching
	TelemetryUpstream string       // default "ws://localhost:9001", §6.3 inter-service telemetry stream
	SessionUpstream   string       // default "ws://localhost:9002", §6.3 inter-service session stream
	DialTimeout       time.Duration // default 5s
	WriteTimeout      time.Duration // default 5s
	PingInterval      time.Duration // default 30s
	ReconnectBackoff  time.Duration // default 2s, upstream client reconnect delay
}

// Config is the single frozen object threaded through every component.
type Config struct {
	RingBuffer    RingBufferConfig
	Lap           LapConfig
	Handling      HandlingConfig
	Braking       BrakingConfig
	Shift         ShiftConfig
	WeightGForce  WeightGForceConfig
	Consistency   ConsistencyConfig
	OffTrack      OffTrackConfig
	MicroAnalysis MicroAnalysisConfig
	Mistake       MistakeConfig
	Coaching      CoachingConfig
	Reference     ReferenceConfig
	LLM           LLMConfig
	WS            WSConfig
	Persistence   PersistenceConfig

	MovingCarSpeedMps float64 // threshold for "car moving" to create a session, default ~2.2 (5mph)
	BaselineValidLaps int     // valid laps required before baseline is established, default 3
}

// Default returns the full default configuration matching spec.md's stated defaults.
func Default() *Config {
	c := &Config{
		RingBuffer: RingBufferConfig{Window: 30 * time.Second, RateHz: 60},
		Lap: LapConfig{
			SectorBoundaries: []float64{0, 1.0 / 3, 2.0 / 3, 1.0},
			MinLapDuration:   30 * time.Second,
			WrapThreshold:    0.5,
		},
		Handling: HandlingConfig{
			SpeedGateMps:       15,
			SteerGateRad:       0.1,
			YawCalibrationK:    0.5,
			OversteerRatio:     1.3,
			OversteerSlipMin:   0.1,
			UndersteerRatio:    0.7,
			UndersteerSteerMin: 0.2,
			CornerCooldown:     5 * time.Second,
			EventHistoryCap:    10,
		},
		Braking: BrakingConfig{
			PressThreshold:   0.10,
			InsufficientAvg:  0.50,
			LateBrakeSpeed:   40.2, // ~90 mph
			LateBrakeBrake:   0.30,
			OverlapBrake:     0.15,
			OverlapThrottle:  0.15,
			OverlapLowSpeed:  22.35, // ~50 mph
			TrailBrakeSpeed:  35.76, // ~80 mph
			RecentEventCount: 5,
		},
		Shift: ShiftConfig{
			UpshiftBands: map[int][2]float64{
				1: {6000, 7500},
				2: {6500, 7800},
				3: {6500, 7800},
				4: {6500, 7800},
				5: {6500, 7800},
				6: {6500, 7800},
			},
			RpmDeviation:       500,
			RevMatchTarget:     1000,
			RevMatchQualityMin: 60,
			AdaptBlendWeight:   0.3,
			AdaptMinUpshifts:   5,
			AdaptBestLapPct:    0.02,
		},
		WeightGForce: WeightGForceConfig{
			HistoryWindow:       5 * time.Second,
			HighGThreshold:      2.5,
			SmoothnessThreshold: 0.6,
			GripUtilLatMax:      2.5,
			GripUtilLongMax:     2.0,
			UnderusedGripMax:    0.5,
			UnderusedGripWindow: 5 * time.Second,
		},
		Consistency: ConsistencyConfig{
			WindowLaps:         5,
			Threshold:          0.05,
			ExcellentThreshold: 0.025,
			ExcellentMinLaps:   3,
		},
		OffTrack: OffTrackConfig{
			SpeedGateMps:      4,
			BrakeThreshold:    0.30,
			ThrottleThreshold: 0.50,
			PatternWindow:     30,
			PatternRatio:      0.20,
		},
		MicroAnalysis: MicroAnalysisConfig{
			EntryThreshold:      0.1,
			ExitThreshold:       0.05,
			MinBufferedSamples:  5,
			BrakeStartThreshold: 0.10,
			ThrottleStartThresh: 0.10,
			FractionToSeconds:   2.0,
			SmoothnessDivisor:   0.5,
			TimeLossHigh:        0.5,
			TimeLossMedium:      0.2,
		},
		Mistake: MistakeConfig{
			MinTimeLoss:       0.05,
			SeverityNormalize: 0.5,
			RecentWindow:      10 * time.Minute,
			TrendMinEvents:    4,
		},
		Coaching: CoachingConfig{
			LLMCategories: map[string]bool{
				"corner_analysis":      true,
				"race_strategy":        true,
				"technique_improvement": true,
			},
			LocalConfidenceMax:    0.6,
			ImportanceMin:         0.7,
			LLMRateLimitPerMinute: 5,
			GlobalRateLimitPerMin: 5,
			CategoryCooldowns: map[string]time.Duration{
				"braking":         8 * time.Second,
				"cornering":       12 * time.Second,
				"throttle":        6 * time.Second,
				"racing-line":     15 * time.Second,
				"pit-strategy":    30 * time.Second,
				"tire-management": 20 * time.Second,
				"safety":          2 * time.Second,
			},
			DefaultCooldown:     10 * time.Second,
			CombineWindow:       3 * time.Second,
			CombineMinKeywords:  2,
			CombineMaxMessages:  5,
			OverrideWindow:      3 * time.Second,
			SimilarityThreshold: 0.6,
		},
		Reference: ReferenceConfig{
			OptimalPct:     0.005,
			ConsistencyPct: 0.01,
			RacePacePct:    0.02,
			WindowLaps:     5,
		},
		LLM: LLMConfig{
			Model:                "gemini-2.0-flash",
			MaxTokensCoaching:    150,
			Temperature:          0.7,
			TopP:                 0.95,
			TopK:                 40,
			TextTimeout:          10 * time.Second,
			AudioTimeout:         15 * time.Second,
			MaxRequestsPerMinute: 5,
			BurstLimit:           2,
			RetryAttempts:        2,
			ConfidenceFloor:      0.8,
			EnableCaching:        true,
			CacheTTL:             5 * time.Minute,
		},
		Persistence: PersistenceConfig{
			DataDir: "coaching_data",
		},
		WS: WSConfig{
			UIAddr:            ":8765",
			TelemetryUpstream: "ws://localhost:9001",
			SessionUpstream:   "ws://localhost:9002",
			DialTimeout:       5 * time.Second,
			WriteTimeout:      5 * time.Second,
			PingInterval:      30 * time.Second,
			ReconnectBackoff:  2 * time.Second,
		},
		MovingCarSpeedMps: 2.2,
		BaselineValidLaps: 3,
	}
	c.RingBuffer.Capacity = int(c.RingBuffer.Window.Seconds()) * c.RingBuffer.RateHz
	return c
}

// LoadAPIKey reads the LLM API key from the environment, following §6.7.
func LoadAPIKey() (string, error) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key, nil
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		return key, nil
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("no LLM API key found: set OPENAI_API_KEY, GOOGLE_API_KEY or GEMINI_API_KEY")
}

// Validate checks the configuration for startup failures (§7: "Configuration validation" -> fail fast).
func (c *Config) Validate() error {
	if c.RingBuffer.RateHz <= 0 {
		return fmt.Errorf("ring buffer rate must be positive")
	}
	if c.RingBuffer.Window <= 0 {
		return fmt.Errorf("ring buffer window must be positive")
	}
	if len(c.Lap.SectorBoundaries) < 2 {
		return fmt.Errorf("at least one sector boundary pair is required")
	}
	if c.Coaching.GlobalRateLimitPerMin <= 0 {
		return fmt.Errorf("global rate limit must be positive")
	}
	if c.LLM.MaxRequestsPerMinute <= 0 {
		return fmt.Errorf("llm rate limit must be positive")
	}
	c.RingBuffer.Capacity = int(c.RingBuffer.Window.Seconds()) * c.RingBuffer.RateHz
	return nil
}

// Clone returns a deep copy so a component can hold its own reference safely.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Lap.SectorBoundaries = append([]float64(nil), c.Lap.SectorBoundaries...)
	clone.Shift.UpshiftBands = make(map[int][2]float64, len(c.Shift.UpshiftBands))
	for k, v := range c.Shift.UpshiftBands {
		clone.Shift.UpshiftBands[k] = v
	}
	clone.Coaching.LLMCategories = make(map[string]bool, len(c.Coaching.LLMCategories))
	for k, v := range c.Coaching.LLMCategories {
		clone.Coaching.LLMCategories[k] = v
	}
	clone.Coaching.CategoryCooldowns = make(map[string]time.Duration, len(c.Coaching.CategoryCooldowns))
	for k, v := range c.Coaching.CategoryCooldowns {
		clone.Coaching.CategoryCooldowns[k] = v
	}
	return &clone
}

// ToJSON / FromJSON allow the CLI to dump/load an overridden configuration.
func (c *Config) ToJSON() ([]byte, error) { return json.MarshalIndent(c, "", "  ") }

func (c *Config) FromJSON(data []byte) error { return json.Unmarshal(data, c) }
