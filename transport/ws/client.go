package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"racecoach/config"
)

// StreamMessage is one decoded frame off an inter-service stream (§6.3):
// either the `connected` handshake or a `telemetry`/`session` data message.
type StreamMessage struct {
	Type string
	Data json.RawMessage
}

// StreamClient connects to one of the telemetry service's read-only
// upstream sockets (§6.3) and republishes decoded frames on Messages,
// reconnecting with a fixed backoff on any disconnect. Grounded in
// original_source/telemetry-server/services/telemetry_service.py's
// handle_telemetry_client/handle_session_client pair, from the
// subscriber's side of that protocol.
type StreamClient struct {
	name string
	url  string
	cfg  config.WSConfig
	log  zerolog.Logger

	Messages chan StreamMessage
}

// NewStreamClient builds a client for name ("telemetry" or "session")
// against url (e.g. "ws://localhost:9001").
func NewStreamClient(name, url string, cfg config.WSConfig, log zerolog.Logger) *StreamClient {
	return &StreamClient{
		name:     name,
		url:      url,
		cfg:      cfg,
		log:      log.With().Str("component", "ws_client").Str("stream", name).Logger(),
		Messages: make(chan StreamMessage, 64),
	}
}

// Run dials url and forwards frames until ctx is cancelled, reconnecting
// after cfg.ReconnectBackoff on any read/dial error. It returns only when
// ctx is done.
func (c *StreamClient) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := c.runOnce(ctx); err != nil {
			c.log.Debug().Err(err).Msg("upstream connection lost, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectBackoff):
		}
	}
}

func (c *StreamClient) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Warn().Err(err).Msg("invalid JSON from upstream")
			continue
		}
		msg := StreamMessage{Type: env.Type, Data: env.Data}
		select {
		case c.Messages <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
