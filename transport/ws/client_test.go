package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"racecoach/config"
)

// fakeUpstream emulates telemetry_service.py's handle_telemetry_client: a
// connected handshake followed by one telemetry frame.
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]any{"type": "connected", "stream": "telemetry"})
		conn.WriteJSON(map[string]any{"type": "telemetry", "data": map[string]any{"speed": 42.0}})
		time.Sleep(500 * time.Millisecond)
	}))
}

func TestStreamClientReceivesFrames(t *testing.T) {
	hs := fakeUpstream(t)
	defer hs.Close()

	url := "ws" + strings.TrimPrefix(hs.URL, "http")
	cfg := config.Default().WS
	cfg.ReconnectBackoff = 50 * time.Millisecond
	client := NewStreamClient("telemetry", url, cfg, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go client.Run(ctx)

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case msg := <-client.Messages:
			seen[msg.Type] = true
		case <-ctx.Done():
			t.Fatalf("timed out waiting for frames, saw %v", seen)
		}
	}
	if !seen["connected"] || !seen["telemetry"] {
		t.Fatalf("expected connected+telemetry frames, got %v", seen)
	}
}
