package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"racecoach/analysis"
	"racecoach/coaching"
	"racecoach/config"
	"racecoach/detect"
	"racecoach/telemetry"
)

// EventContext describes what triggered the enrichment request.
type EventContext struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // low, medium, high
	Location struct {
		Track   string `json:"track"`
		Turn    string `json:"turn"`
		Segment string `json:"segment"`
	} `json:"location"`
	Time float64 `json:"time"`
}

// DriverInputs carries the last N samples as parallel arrays, per §4.10.
type DriverInputs struct {
	SteeringAngle []float64 `json:"steering_angle"`
	Brake         []float64 `json:"brake"`
	Throttle      []float64 `json:"throttle"`
	Gear          []int     `json:"gear"`
}

// CarState carries derived per-sample scalars alongside DriverInputs.
type CarState struct {
	SpeedKph  []float64 `json:"speed_kph"`
	RPM       []float64 `json:"rpm"`
	SlipAngle []float64 `json:"slip_angle"`
}

// TireState is best-effort; sims that don't report tire temps leave it empty.
type TireState struct {
	Temps     []float64 `json:"temps,omitempty"`
	Pressures []float64 `json:"pressures,omitempty"`
}

// ReferenceSummary carries the reference comparison the decider already computed.
type ReferenceSummary struct {
	BestApexSpeedKph   float64 `json:"best_apex_speed"`
	DriverApexSpeedKph float64 `json:"driver_apex_speed"`
	SectorDeltaS       float64 `json:"sector_delta_s"`
}

// Context is the full structured payload sent to the model, per §4.10.
type Context struct {
	Event        EventContext     `json:"event"`
	DriverInputs DriverInputs     `json:"driver_inputs"`
	CarState     CarState         `json:"car_state"`
	TireState    TireState        `json:"tire_state"`
	Reference    ReferenceSummary `json:"reference"`
	History      []string         `json:"history,omitempty"`
	Session      map[string]any   `json:"session,omitempty"`
}

// BuildContext assembles a Context from the trailing samples of one corner
// traversal and its computed MicroAnalysis, per §4.10's payload contract.
// At most the last 20 samples are included. m may be nil (a detector
// insight with no micro-analysis); the event severity is then "low" and the
// reference summary is left zero.
func BuildContext(cornerID string, samples []telemetry.Sample, m *analysis.MicroAnalysis, trackName string, history []string) Context {
	if len(samples) > 20 {
		samples = samples[len(samples)-20:]
	}

	var ctx Context
	ctx.Event.Type = "corner_analysis"
	ctx.Event.Severity = "low"
	if m != nil {
		ctx.Event.Severity = severityFor(m.Priority)
	}
	ctx.Event.Location.Track = trackName
	ctx.Event.Location.Turn = cornerID
	ctx.Event.Location.Segment = cornerID
	if len(samples) > 0 {
		ctx.Event.Time = float64(samples[len(samples)-1].Timestamp.Unix())
	}

	for _, s := range samples {
		ctx.DriverInputs.SteeringAngle = append(ctx.DriverInputs.SteeringAngle, round(s.SteeringRad, 2))
		ctx.DriverInputs.Brake = append(ctx.DriverInputs.Brake, round(s.Brake, 3))
		ctx.DriverInputs.Throttle = append(ctx.DriverInputs.Throttle, round(s.Throttle, 3))
		ctx.DriverInputs.Gear = append(ctx.DriverInputs.Gear, s.Gear)

		ctx.CarState.SpeedKph = append(ctx.CarState.SpeedKph, round(s.SpeedMps*3.6, 1))
		ctx.CarState.RPM = append(ctx.CarState.RPM, round(s.RPM, 0))
		ctx.CarState.SlipAngle = append(ctx.CarState.SlipAngle, round(estimatedSlip(s), 3))

		if s.HasTireTemp {
			for _, t := range s.TireTempC {
				ctx.TireState.Temps = append(ctx.TireState.Temps, round(t, 1))
			}
		}
		for _, p := range s.TirePressureKpa {
			ctx.TireState.Pressures = append(ctx.TireState.Pressures, round(p, 1))
		}
	}

	if m != nil {
		ctx.Reference = ReferenceSummary{
			BestApexSpeedKph:   m.ApexSpeedDeltaKph, // best - driver, folded into the delta already computed
			DriverApexSpeedKph: 0,
			SectorDeltaS:       m.TotalTimeLossS,
		}
	}
	ctx.History = history
	return ctx
}

func severityFor(p analysis.Priority) string {
	switch p {
	case analysis.PriorityCritical, analysis.PriorityHigh:
		return "high"
	case analysis.PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

func estimatedSlip(s telemetry.Sample) float64 {
	if s.SpeedMps < 1 {
		return 0
	}
	return s.YawRateRadS * 2.0 / (s.SpeedMps / 20.0)
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Enricher optionally rewrites a local coaching message using the remote
// model over a Context payload, per §4.10. On any failure it returns the
// original message unchanged: enrichment never fails the pipeline.
type Enricher struct {
	client *Client
	cfg    config.LLMConfig
	hard   bool // set once on an auth/config failure; disables enrichment for the session
}

// NewEnricher wraps client with the enrichment policy. client may be nil
// (e.g. no API key configured), in which case Enrich always returns the
// original message.
func NewEnricher(client *Client, cfg config.LLMConfig) *Enricher {
	return &Enricher{client: client, cfg: cfg, hard: client == nil}
}

// Disabled reports whether a prior hard failure has disabled enrichment
// for the remainder of the session.
func (e *Enricher) Disabled() bool { return e.hard }

// Enrich requests a rewrite of local using ctxPayload. It always returns a
// usable message: local unchanged on any of {timeout, error, rate-limit,
// disabled, empty content}, or a new remote-sourced message on success.
func (e *Enricher) Enrich(parent context.Context, local coaching.Message, payload Context) coaching.Message {
	if e.hard || e.client == nil {
		return local
	}

	timeout := e.cfg.TextTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	prompt := buildPrompt(local, payload)
	text, err := e.client.Generate(ctx, prompt, e.cfg.MaxTokensCoaching)
	if err != nil {
		if enrichErr, ok := err.(*EnrichError); ok && enrichErr.Hard {
			e.hard = true
		}
		return local
	}
	if strings.TrimSpace(text) == "" {
		return local
	}

	confidence := e.cfg.ConfidenceFloor
	if confidence <= 0 {
		confidence = 0.8
	}
	remote := coaching.NewMessage(text, local.Category, local.Priority, coaching.SourceRemote, confidence)
	remote.Timestamp = local.Timestamp
	return remote
}

func buildPrompt(local coaching.Message, payload Context) string {
	body, _ := json.Marshal(payload)
	var b strings.Builder
	b.WriteString("You are a concise sim-racing coach. Rewrite the following coaching note ")
	b.WriteString("into one or two natural sentences a driver can act on immediately, grounded ")
	b.WriteString("strictly in the structured telemetry context. Do not invent numbers not present in the context.\n\n")
	fmt.Fprintf(&b, "Category: %s\n", local.Category)
	fmt.Fprintf(&b, "Local note: %s\n", local.Content)
	b.WriteString("Context: ")
	b.Write(body)
	return b.String()
}

// DecisionToEventType maps a coaching Decision's category into the
// event.type field of the context payload.
func DecisionToEventType(category coaching.Category) string {
	switch category {
	case coaching.CategoryPitStrategy, coaching.CategoryTireManagement:
		return "race_strategy"
	case coaching.CategoryConsistency, coaching.CategoryHandling:
		return "technique_improvement"
	default:
		return "corner_analysis"
	}
}

// situationSeverity maps a detector insight's importance into the §4.10
// severity enum. Nothing in the package calls it: BuildContext derives the
// severity from the MicroAnalysis priority only.
func situationSeverity(insight detect.Insight) string {
	switch {
	case insight.Importance > 0.7:
		return "high"
	case insight.Importance > 0.4:
		return "medium"
	default:
		return "low"
	}
}
