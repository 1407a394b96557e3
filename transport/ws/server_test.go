package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"racecoach/coaching"
	"racecoach/config"
)

type fakeStatus struct{}

func (fakeStatus) Status() any                       { return map[string]string{"state": "ok"} }
func (fakeStatus) History(limit int) any             { return []int{} }
func (fakeStatus) SetCoachingMode(mode string) error { return nil }
func (fakeStatus) CoachingStats() any                { return map[string]int{"sent": 0} }

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(config.Default().WS, zerolog.Nop(), fakeStatus{})
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	return s, hs
}

func dial(t *testing.T, hs *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConnectedHandshake(t *testing.T) {
	_, hs := newTestServer(t)
	conn := dial(t, hs, "/coaching")

	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if env.Type != "connected" {
		t.Fatalf("first message type = %q, want %q", env.Type, "connected")
	}
}

func TestBroadcastCoachingReachesSubscriber(t *testing.T) {
	s, hs := newTestServer(t)
	conn := dial(t, hs, "/coaching")

	var env Envelope
	conn.ReadJSON(&env) // connected

	msg := coaching.NewMessage("brake earlier into turn 1", coaching.CategoryBraking, coaching.PriorityHigh, coaching.SourceLocal, 0.7)
	s.BroadcastCoaching(msg)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if env.Type != "coaching" {
		t.Fatalf("type = %q, want %q", env.Type, "coaching")
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %#v, want an object", env.Data)
	}
	if data["message"] != msg.Content {
		t.Fatalf("message = %v, want %v", data["message"], msg.Content)
	}
	if data["priority"].(float64) != 2 {
		t.Fatalf("priority = %v, want 2 (high)", data["priority"])
	}
}

func TestUnknownRequestTypeReturnsError(t *testing.T) {
	_, hs := newTestServer(t)
	conn := dial(t, hs, "/coaching")

	var env Envelope
	conn.ReadJSON(&env) // connected

	req, _ := json.Marshal(map[string]string{"type": "doSomethingUnknown", "id": "req-1"})
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if env.Type != "error" {
		t.Fatalf("type = %q, want %q", env.Type, "error")
	}
	if env.ID != "req-1" {
		t.Fatalf("id = %q, want %q", env.ID, "req-1")
	}
}

func TestGetStatusRequest(t *testing.T) {
	_, hs := newTestServer(t)
	conn := dial(t, hs, "/coaching")

	var env Envelope
	conn.ReadJSON(&env) // connected

	req, _ := json.Marshal(map[string]string{"type": "getStatus"})
	conn.WriteMessage(websocket.TextMessage, req)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if env.Type != "status" {
		t.Fatalf("type = %q, want %q", env.Type, "status")
	}
}
