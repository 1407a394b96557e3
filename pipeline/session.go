// Package pipeline wires the independent components (ingest, detectors,
// analysis, coaching, persistence, transports) into the three cooperative
// tasks of §5: ingest, analysis and delivery, plus the optional LLM
// enrichment task. One Pipeline runs for the process lifetime; it starts
// and tears down a fresh session's tasks whenever the (track, car) pair
// changes, with the ingest task as cancellation root per §5.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"racecoach/analysis"
	"racecoach/coaching"
	"racecoach/config"
	"racecoach/detect"
	"racecoach/llm"
	"racecoach/mistakes"
	"racecoach/persistence"
	"racecoach/reference"
	"racecoach/session"
	"racecoach/sims"
	"racecoach/telemetry"
	"racecoach/track"
	"racecoach/trackdata"
	"racecoach/transport/ws"
)

// Pipeline owns the long-lived collaborators that outlive any one session:
// the simulator connector, the track-metadata and persistence stores, the
// optional LLM enricher and the UI transport. It also implements
// ws.StatusProvider so a single instance can be handed to ws.NewServer.
type Pipeline struct {
	cfg       *config.Config
	log       zerolog.Logger
	connector sims.SimulatorConnector
	tracks    *trackdata.Store
	store     *persistence.Store
	enricher  *llm.Enricher
	server    *ws.Server

	mu           sync.RWMutex
	current      *runningSession
	coachingMode string // "full" (default) or "local_only"
}

// New builds a Pipeline from its collaborators. enricher may be nil to run
// with local-only coaching (§4.10's "disabled" fallback path). The UI
// transport is attached separately via AttachServer, since ws.NewServer
// itself needs this Pipeline as its StatusProvider.
func New(cfg *config.Config, log zerolog.Logger, connector sims.SimulatorConnector, tracks *trackdata.Store, store *persistence.Store, enricher *llm.Enricher) *Pipeline {
	return &Pipeline{cfg: cfg, log: log.With().Str("component", "pipeline").Logger(), connector: connector, tracks: tracks, store: store, enricher: enricher, coachingMode: "full"}
}

// AttachServer binds the UI transport the delivery task broadcasts through.
func (p *Pipeline) AttachServer(server *ws.Server) { p.server = server }

// Status answers the §6.2 getStatus request with the live session summary.
func (p *Pipeline) Status() any {
	p.mu.RLock()
	rs := p.current
	mode := p.coachingMode
	p.mu.RUnlock()

	if rs == nil {
		return map[string]any{"active": false, "coachingMode": mode}
	}
	return map[string]any{
		"active":              true,
		"coachingMode":        mode,
		"track":               rs.track,
		"car":                 rs.car,
		"lapsCompleted":       len(rs.session.Laps),
		"baselineEstablished": rs.session.BaselineEstablished,
		"personalBestLapTime": rs.session.PersonalBestLapTime,
		"drivingStyle":        string(rs.session.DrivingStyle),
	}
}

// History answers the §6.2 getHistory request with the trailing laps of the
// current session, most recent last.
func (p *Pipeline) History(limit int) any {
	p.mu.RLock()
	rs := p.current
	p.mu.RUnlock()
	if rs == nil {
		return []telemetry.LapRecord{}
	}
	laps := rs.session.Laps
	if limit > 0 && len(laps) > limit {
		laps = laps[len(laps)-limit:]
	}
	return laps
}

// SetCoachingMode implements the §6.2 setCoachingMode request. "local_only"
// suppresses LLM enrichment for the remainder of the process; "full"
// restores it.
func (p *Pipeline) SetCoachingMode(mode string) error {
	switch mode {
	case "full", "local_only":
	default:
		return fmt.Errorf("pipeline: unknown coaching mode %q", mode)
	}
	p.mu.Lock()
	p.coachingMode = mode
	p.mu.Unlock()
	return nil
}

// CoachingStats answers the §6.2 getCoachingStats request.
func (p *Pipeline) CoachingStats() any {
	p.mu.RLock()
	rs := p.current
	p.mu.RUnlock()
	if rs == nil {
		return map[string]any{"queued": 0}
	}
	summary := rs.tracker.Summary()
	return map[string]any{
		"queued":         rs.queue.Len(),
		"score":          summary.Score,
		"totalMistakes":  summary.TotalMistakes,
		"totalTimeLostS": summary.TotalTimeLostS,
	}
}

// Run drives the pipeline until ctx is cancelled: it reads the raw
// simulator stream, detects (track, car) changes and restarts a fresh
// runningSession for each one, per §3's session lifecycle.
func (p *Pipeline) Run(ctx context.Context) error {
	frames, errs := p.connector.StartDataStream(ctx, time.Second/time.Duration(p.cfg.RingBuffer.RateHz))
	defer p.connector.StopDataStream()

	var current *runningSession
	defer func() {
		if current != nil {
			current.stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			p.log.Warn().Err(err).Msg("simulator stream error")
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			track, car, moving := identify(frame, p.cfg.MovingCarSpeedMps)
			if current != nil && (current.track != track || current.car != car) {
				current.stop()
				current = nil
				p.setCurrent(nil)
			}
			if current == nil {
				if track == "" || car == "" || !moving {
					continue // deferred session creation, §3: wait for track+car+moving
				}
				rs, err := p.startSession(ctx, track, car)
				if err != nil {
					p.log.Error().Err(err).Str("track", track).Str("car", car).Msg("failed to start session")
					continue
				}
				current = rs
				p.setCurrent(rs)
			}
			current.ingest <- frame
		}
	}
}

func (p *Pipeline) setCurrent(rs *runningSession) {
	p.mu.Lock()
	p.current = rs
	p.mu.Unlock()
}

// identify extracts the (track, car, moving) triple a frame carries, per
// the §3 "deferred until track+car known and car moving" rule. Speed is
// reported in km/h by the simulator connectors; movingThresholdMps is in m/s.
func identify(frame *sims.TelemetryData, movingThresholdMps float64) (trackName, car string, moving bool) {
	if frame == nil {
		return "", "", false
	}
	return frame.Session.TrackName, frame.Session.CarName, frame.Player.Speed/3.6 > movingThresholdMps
}

// startSession loads persisted state for (track, car) and spins up its
// ingest/analysis/delivery tasks.
func (p *Pipeline) startSession(parent context.Context, trackName, car string) (*runningSession, error) {
	ctx, cancel := context.WithCancel(parent)

	baseline, err := p.store.GetTrackBaseline(trackName, car)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("pipeline: load baseline for %s/%s: %w", trackName, car, err)
	}
	var persistedBest float64
	var shiftBands map[int][2]float64
	if baseline != nil {
		persistedBest = baseline.BestLapTime
		shiftBands = baseline.ShiftBands
	}

	refFile, err := p.store.LoadReferences(trackName, car)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("pipeline: load references for %s/%s: %w", trackName, car, err)
	}

	id := persistence.NewSessionID(trackName, car, time.Now())
	st := session.New(p.cfg, id, trackName, car, persistedBest, shiftBands)
	trackCar := reference.NewTrackCar(p.cfg.Reference, trackName, car, refFile[reference.LapPersonalBest])

	segments, err := p.tracks.GetSegments(ctx, trackName)
	if err != nil {
		p.log.Warn().Err(err).Str("track", trackName).Msg("track metadata lookup failed, falling back to a single segment")
	}
	if len(segments) == 0 {
		segments = []track.Segment{track.UnknownSegment}
	}

	rs := &runningSession{
		pipeline:  p,
		track:     trackName,
		car:       car,
		ctx:       ctx,
		cancel:    cancel,
		ingest:    make(chan *sims.TelemetryData, 256),
		in:        telemetry.NewIngest(p.cfg.RingBuffer.Window, p.cfg.RingBuffer.RateHz),
		lapDet:    telemetry.NewLapDetector(p.cfg.Lap.SectorBoundaries, p.cfg.Lap.MinLapDuration, p.cfg.Lap.WrapThreshold),
		locator:   track.NewLocator(segments),
		analyzer:  analysis.NewAnalyzer(p.cfg.MicroAnalysis),
		tracker:   mistakes.NewTracker(p.cfg.Mistake),
		decider:   coaching.NewDecider(p.cfg.Coaching),
		queue:     coaching.NewQueue(p.cfg.Coaching),
		braking:   detect.NewBrakingDetector(p.cfg.Braking),
		handling:  detect.NewHandlingDetector(p.cfg.Handling),
		offtrack:  detect.NewOffTrackDetector(p.cfg.OffTrack),
		shift:     detect.NewShiftDetector(p.cfg.Shift),
		weight:    detect.NewWeightGForceDetector(p.cfg.WeightGForce),
		consist:   detect.NewConsistencyDetector(p.cfg.Consistency),
		session:   st,
		trackCar:  trackCar,
	}
	if p.server != nil {
		p.server.BroadcastSessionInfo(st, true)
	}

	rs.wg.Add(3)
	go rs.ingestTask()
	go rs.analysisTask()
	go rs.deliveryTask()
	return rs, nil
}

// runningSession holds every per-session collaborator and the three
// cooperative tasks of §5 bound to its own cancellable context.
type runningSession struct {
	pipeline *Pipeline
	track    string
	car      string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ingest chan *sims.TelemetryData
	events chan telemetry.Sample

	in       *telemetry.Ingest
	lapDet   *telemetry.LapDetector
	locator  *track.Locator
	analyzer *analysis.Analyzer
	tracker  *mistakes.Tracker
	decider  *coaching.Decider
	queue    *coaching.Queue

	braking  *detect.BrakingDetector
	handling *detect.HandlingDetector
	offtrack *detect.OffTrackDetector
	shift    *detect.ShiftDetector
	weight   *detect.WeightGForceDetector
	consist  *detect.ConsistencyDetector

	session  *session.State
	trackCar *reference.TrackCar

	closeOnce sync.Once
}

func (rs *runningSession) stop() {
	rs.closeOnce.Do(func() {
		rs.cancel()
		rs.session.Close()
		rs.wg.Wait()
		if err := rs.pipeline.store.SaveSession(rs.session); err != nil {
			rs.pipeline.log.Error().Err(err).Str("session", rs.session.ID).Msg("failed to save session on close")
		}
		if rs.pipeline.server != nil {
			rs.pipeline.server.BroadcastSessionInfo(rs.session, false)
		}
	})
}

// ingestTask drains the raw simulator channel, normalizes frames into the
// ring buffer and publishes sample-arrival notifications to the analysis
// task, per §5 task 1. It is the cancellation root: closing events signals
// the analysis task to drain and exit.
func (rs *runningSession) ingestTask() {
	defer rs.wg.Done()
	rs.events = make(chan telemetry.Sample, 256)
	defer close(rs.events)

	for {
		select {
		case <-rs.ctx.Done():
			return
		case frame, ok := <-rs.ingest:
			if !ok {
				return
			}
			before := rs.in.Buffer().Len()
			if rs.in.FromSimulator(frame) != telemetry.Accepted {
				continue
			}
			if rs.in.Buffer().Len() == before {
				continue
			}
			sample, ok := rs.in.Buffer().Latest()
			if !ok {
				continue
			}
			select {
			case rs.events <- sample:
			case <-rs.ctx.Done():
				return
			}
		}
	}
}

// analysisTask runs detectors and the segment locator on each sample,
// finalizes laps/sectors/corners and hands decisions to the queue, per §5
// task 2.
func (rs *runningSession) analysisTask() {
	defer rs.wg.Done()
	for {
		select {
		case <-rs.ctx.Done():
			return
		case sample, ok := <-rs.events:
			if !ok {
				return
			}
			rs.onSample(sample)
		}
	}
}

func (rs *runningSession) onSample(sample telemetry.Sample) {
	now := sample.Timestamp
	seg := rs.locator.Current(sample.LapFraction)
	cornerID := seg.ID

	if rs.pipeline.server != nil {
		rs.pipeline.server.BroadcastTelemetry(sample, rs.track, rs.car, true, rs.pipeline.connector.IsConnected())
	}

	laps, sectors := rs.lapDet.Feed(sample)
	_ = sectors

	if rs.session.DetectorsEnabled() {
		snapshot := rs.in.Buffer().Snapshot(5 * time.Second)
		var insights []detect.Insight
		insights = append(insights, rs.braking.Detect(snapshot, cornerID, now)...)
		insights = append(insights, rs.handling.Detect(snapshot, cornerID, now)...)
		insights = append(insights, rs.offtrack.Detect(sample, cornerID, now)...)
		insights = append(insights, rs.shift.Detect(sample, rs.session.PersonalBestLapTime)...)
		weightInsights, _, _, _ := rs.weight.Detect(sample)
		insights = append(insights, weightInsights...)

		for _, insight := range insights {
			rs.decide(rs.decider.DecideInsight(insight), insight, nil)
		}

		if ref, ok := rs.trackCar.Corners[cornerID]; ok {
			if m, done := rs.analyzer.Feed(cornerID, sample, &ref); done {
				rs.onMicroAnalysis(m)
			}
		} else if m, done := rs.analyzer.Feed(cornerID, sample, nil); done {
			rs.onMicroAnalysis(m)
		}
	}

	for _, lapEvent := range laps {
		rs.onLapCompleted(lapEvent.Record)
	}
}

func (rs *runningSession) onMicroAnalysis(m *analysis.MicroAnalysis) {
	rs.session.RecordCornerTraversal(m.CornerID, m.TotalTimeLossS)
	if ev, ok := rs.tracker.AddFromMicroAnalysis(m); ok {
		_ = ev
	}
	rs.decide(rs.decider.DecideMicroAnalysis(m), detect.Insight{}, m)
}

// decide renders the local message, optionally enriches it through the LLM
// and enqueues the result, per §4.7/§4.10.
func (rs *runningSession) decide(decision coaching.Decision, insight detect.Insight, m *analysis.MicroAnalysis) {
	var local coaching.Message
	if m != nil {
		local = coaching.RenderMicroAnalysis(m, decision)
	} else {
		local = coaching.RenderInsight(insight, decision)
	}

	rs.pipeline.mu.RLock()
	localOnly := rs.pipeline.coachingMode == "local_only"
	rs.pipeline.mu.RUnlock()

	if localOnly || !decision.AskLLM || rs.pipeline.enricher == nil || rs.pipeline.enricher.Disabled() {
		rs.queue.Enqueue(local)
		return
	}

	cornerID := insight.CornerID
	if m != nil {
		cornerID = m.CornerID
	}
	samples := rs.in.Buffer().Snapshot(2 * time.Second)
	payload := llm.BuildContext(cornerID, samples, m, rs.track, nil)
	enriched := rs.pipeline.enricher.Enrich(rs.ctx, local, payload)
	rs.queue.Enqueue(enriched)
}

func (rs *runningSession) onLapCompleted(rec telemetry.LapRecord) {
	if msg, emit := rs.session.OnLapCompleted(rec); emit {
		_ = msg // session's own countdown text; RenderBaseline recomputes it from BaselineRemaining
		rs.queue.Enqueue(coaching.RenderBaseline(rs.session.BaselineRemaining()))
	}

	if !rec.Valid {
		return
	}

	lap := reference.LapSample{
		LapTimeS: rec.LapTime,
		Valid:    rec.Valid,
		Corners:  rs.trackCar.Corners,
	}
	personalBestChanged := rs.trackCar.OnLapCompleted(lap, time.Now())
	rs.shift.AdaptBands(rs.session.PersonalBestLapTime)

	for _, insight := range rs.consist.OnValidLap(rec.LapTime, time.Now()) {
		rs.decide(rs.decider.DecideInsight(insight), insight, nil)
	}

	if personalBestChanged {
		refs := make(persistence.ReferenceFile)
		if rs.trackCar.PersonalBest != nil {
			refs[reference.LapPersonalBest] = rs.trackCar.PersonalBest
		}
		if rs.trackCar.SessionBest != nil {
			refs[reference.LapSessionBest] = rs.trackCar.SessionBest
		}
		if rs.trackCar.Optimal != nil {
			refs[reference.LapOptimal] = rs.trackCar.Optimal
		}
		if rs.trackCar.RacePace != nil {
			refs[reference.LapRacePace] = rs.trackCar.RacePace
		}
		if rs.trackCar.Consistency != nil {
			refs[reference.LapConsistency] = rs.trackCar.Consistency
		}
		if err := rs.pipeline.store.SaveReferences(rs.track, rs.car, refs); err != nil {
			rs.pipeline.log.Error().Err(err).Msg("failed to save references on new personal best")
		}
		if err := rs.pipeline.store.SaveSession(rs.session); err != nil {
			rs.pipeline.log.Error().Err(err).Msg("failed to save session on new personal best")
		}
	}
}

// deliveryTask polls the queue at >=5Hz and broadcasts deliverable messages
// to the UI transport, per §5 task 3.
func (rs *runningSession) deliveryTask() {
	defer rs.wg.Done()
	ticker := time.NewTicker(200 * time.Millisecond) // 5Hz
	defer ticker.Stop()

	for {
		select {
		case <-rs.ctx.Done():
			return
		case now := <-ticker.C:
			for {
				msg, ok := rs.queue.Dequeue(now)
				if !ok {
					break
				}
				if rs.pipeline.server != nil {
					rs.pipeline.server.BroadcastCoaching(msg)
				}
			}
		}
	}
}
