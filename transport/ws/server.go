// Package ws implements the §6.2/§6.3 WebSocket transports: an outbound
// UI-facing server exposing the telemetry/session/coaching topics, and an
// inbound client for the two inter-service streams the telemetry service
// exposes. Built on gorilla/websocket per the teacher's go.mod commitment;
// the protocol itself is grounded in
// original_source/telemetry-server/services/telemetry_service.py's
// handle_telemetry_client/handle_session_client/broadcast_* pair and
// original_source/coaching-agent/coaching_data_service.py's
// process_telemetry computed fields.
package ws

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"racecoach/coaching"
	"racecoach/config"
	"racecoach/session"
	"racecoach/telemetry"
)

// Envelope is the §6.2 wire format for every UI-bound message.
type Envelope struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// StatusProvider answers the UI's status/history/coaching-mode requests
// (§6.2's getStatus/getHistory/setCoachingMode/getCoachingStats). The
// pipeline implements this against its live session/queue state.
type StatusProvider interface {
	Status() any
	History(limit int) any
	SetCoachingMode(mode string) error
	CoachingStats() any
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type topic struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan Envelope
}

func newTopic() *topic { return &topic{clients: make(map[*websocket.Conn]chan Envelope)} }

func (t *topic) add(conn *websocket.Conn) chan Envelope {
	ch := make(chan Envelope, 32)
	t.mu.Lock()
	t.clients[conn] = ch
	t.mu.Unlock()
	return ch
}

func (t *topic) remove(conn *websocket.Conn) {
	t.mu.Lock()
	if ch, ok := t.clients[conn]; ok {
		close(ch)
		delete(t.clients, conn)
	}
	t.mu.Unlock()
}

// broadcast fans out env to every subscriber's send channel; a subscriber
// whose channel is full is skipped rather than blocking the others, per
// §5's "disconnecting one does not stall broadcasts to others".
func (t *topic) broadcast(env Envelope) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ch := range t.clients {
		select {
		case ch <- env:
		default:
		}
	}
}

// Server is the outbound UI WebSocket endpoint of §6.2: one topic each for
// telemetry, session and coaching, plus request/response handling.
type Server struct {
	cfg    config.WSConfig
	log    zerolog.Logger
	status StatusProvider

	telemetry *topic
	session   *topic
	coaching  *topic
}

// NewServer builds a Server bound to status for request handling.
func NewServer(cfg config.WSConfig, log zerolog.Logger, status StatusProvider) *Server {
	return &Server{
		cfg:       cfg,
		log:       log.With().Str("component", "ws_server").Logger(),
		status:    status,
		telemetry: newTopic(),
		session:   newTopic(),
		coaching:  newTopic(),
	}
}

// Handler returns the http.Handler to mount, serving /telemetry, /session
// and /coaching as independent upgrade endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/telemetry", func(w http.ResponseWriter, r *http.Request) { s.serve(w, r, s.telemetry) })
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) { s.serve(w, r, s.session) })
	mux.HandleFunc("/coaching", func(w http.ResponseWriter, r *http.Request) { s.serve(w, r, s.coaching) })
	return mux
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, t *topic) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	send := t.add(conn)
	defer t.remove(conn)

	s.writeEnvelope(conn, Envelope{Type: "connected", Timestamp: nowMillis()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for env := range send {
			if err := s.writeEnvelope(conn, env); err != nil {
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.handleRequest(conn, raw)
	}
	<-done
}

func (s *Server) writeEnvelope(conn *websocket.Conn, env Envelope) error {
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteJSON(env)
}

type request struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Mode string `json:"mode,omitempty"`
	Limit int   `json:"limit,omitempty"`
}

// handleRequest answers getStatus/getHistory/setCoachingMode/
// getCoachingStats; unknown types get an error envelope (§6.2).
func (s *Server) handleRequest(conn *websocket.Conn, raw []byte) {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		s.writeEnvelope(conn, errEnvelope("", "invalid JSON request"))
		return
	}

	switch req.Type {
	case "getStatus":
		s.writeEnvelope(conn, Envelope{Type: "status", ID: req.ID, Timestamp: nowMillis(), Data: s.status.Status()})
	case "getHistory":
		limit := req.Limit
		if limit <= 0 {
			limit = 20
		}
		s.writeEnvelope(conn, Envelope{Type: "history", ID: req.ID, Timestamp: nowMillis(), Data: s.status.History(limit)})
	case "setCoachingMode":
		if err := s.status.SetCoachingMode(req.Mode); err != nil {
			s.writeEnvelope(conn, errEnvelope(req.ID, err.Error()))
			return
		}
		s.writeEnvelope(conn, Envelope{Type: "status", ID: req.ID, Timestamp: nowMillis(), Data: s.status.Status()})
	case "getCoachingStats":
		s.writeEnvelope(conn, Envelope{Type: "status", ID: req.ID, Timestamp: nowMillis(), Data: s.status.CoachingStats()})
	default:
		s.writeEnvelope(conn, errEnvelope(req.ID, "unknown request type: "+req.Type))
	}
}

func errEnvelope(id, message string) Envelope {
	return Envelope{Type: "error", ID: id, Timestamp: nowMillis(), Data: map[string]string{"message": message}}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// telemetryPayload is the §6.2 `telemetry` data shape: the processed sample
// plus coaching_data_service.py's computed driving-intensity/engine-stress
// fields and session/connection context.
type telemetryPayload struct {
	Lap            int     `json:"lap"`
	LapFraction    float64 `json:"lapFraction"`
	SpeedMps       float64 `json:"speed"`
	RPM            float64 `json:"rpm"`
	Gear           int     `json:"gear"`
	Throttle       float64 `json:"throttle"`
	Brake          float64 `json:"brake"`
	SteeringRad    float64 `json:"steeringAngle"`

	DrivingIntensity float64 `json:"drivingIntensity"`
	EngineStress     float64 `json:"engineStress"`

	SessionActive bool   `json:"sessionActive"`
	SessionTrack  string `json:"sessionTrack"`
	SessionCar    string `json:"sessionCar"`
	IsConnected   bool   `json:"isConnected"`
}

// drivingIntensity mirrors coaching_data_service.py's calculate_driving_intensity:
// a 0-100 blend of speed and peak pedal input, normalized to a 150mph/67 m/s cap.
func drivingIntensity(speedMps, throttle, brake float64) float64 {
	speedFactor := speedMps / 67.0
	if speedFactor > 1 {
		speedFactor = 1
	}
	inputFactor := throttle
	if brake > inputFactor {
		inputFactor = brake
	}
	return round1((speedFactor*0.6 + inputFactor*0.4) * 100)
}

// engineStress mirrors calculate_engine_stress: RPM normalized to an
// 8000rpm redline, scaled by throttle.
func engineStress(rpm, throttle float64) float64 {
	rpmFactor := rpm / 8000.0
	if rpmFactor > 1 {
		rpmFactor = 1
	}
	return round1(rpmFactor * throttle * 100)
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

// BroadcastTelemetry publishes a processed sample to the telemetry topic.
func (s *Server) BroadcastTelemetry(sample telemetry.Sample, track, car string, active, connected bool) {
	payload := telemetryPayload{
		Lap:              sample.Lap,
		LapFraction:      sample.LapFraction,
		SpeedMps:         sample.SpeedMps,
		RPM:              sample.RPM,
		Gear:             sample.Gear,
		Throttle:         sample.Throttle,
		Brake:            sample.Brake,
		SteeringRad:      sample.SteeringRad,
		DrivingIntensity: drivingIntensity(sample.SpeedMps, sample.Throttle, sample.Brake),
		EngineStress:     engineStress(sample.RPM, sample.Throttle),
		SessionActive:    active,
		SessionTrack:     track,
		SessionCar:       car,
		IsConnected:      connected,
	}
	s.telemetry.broadcast(Envelope{Type: "telemetry", Timestamp: nowMillis(), Data: payload})
}

type sessionInfoPayload struct {
	TrackName string `json:"trackName"`
	CarName   string `json:"carName"`
	Active    bool   `json:"active"`
}

// BroadcastSessionInfo publishes the §6.2 `sessionInfo` message.
func (s *Server) BroadcastSessionInfo(st *session.State, active bool) {
	s.session.broadcast(Envelope{
		Type:      "sessionInfo",
		Timestamp: nowMillis(),
		Data:      sessionInfoPayload{TrackName: st.Track, CarName: st.Car, Active: active},
	})
}

type coachingPayload struct {
	Message           string   `json:"message"`
	Category          string   `json:"category"`
	Priority          int      `json:"priority"`
	Confidence        float64  `json:"confidence"`
	Source            string   `json:"source"`
	Context           string   `json:"context,omitempty"`
	SecondaryMessages []string `json:"secondary_messages"`
}

// BroadcastCoaching publishes a coaching.Message as the §6.2 `coaching`
// message, with id "<ms>_<category>" per spec.
func (s *Server) BroadcastCoaching(msg coaching.Message) {
	ms := msg.Timestamp.UnixMilli()
	secondary := msg.SecondaryMessages
	if secondary == nil {
		secondary = []string{}
	}
	env := Envelope{
		Type:      "coaching",
		ID:        idFor(ms, string(msg.Category)),
		Timestamp: nowMillis(),
		Data: coachingPayload{
			Message:           msg.Content,
			Category:          string(msg.Category),
			Priority:          priorityRank(msg.Priority),
			Confidence:        msg.Confidence * 100,
			Source:            string(msg.Source),
			Context:           msg.Context,
			SecondaryMessages: secondary,
		},
	}
	s.coaching.broadcast(env)
}

// priorityRank maps the closed Priority set to the §6.2 wire ranks
// (1 = critical .. 4 = low).
func priorityRank(p coaching.Priority) int {
	switch p {
	case coaching.PriorityCritical:
		return 1
	case coaching.PriorityHigh:
		return 2
	case coaching.PriorityMedium:
		return 3
	default:
		return 4
	}
}

func idFor(ms int64, category string) string {
	return strconv.FormatInt(ms, 10) + "_" + category
}
