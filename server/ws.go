package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MiChaelinzo/ai-stream-companion-sub000/relay"
)

// statusDelay gives a freshly connected dashboard time to finish its own setup
// before the connection_status snapshot arrives.
const statusDelay = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard runs on a separate dev origin; auth is out of scope.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientCommand is the envelope for every client -> server message.
type clientCommand struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HandleWS upgrades the connection and serves the dashboard command protocol.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}

	cw := h.hub.Register(conn)
	if cw == nil {
		return
	}

	cw.sendEvent(relay.Event{Type: relay.EventConnected, Payload: relay.ConnectedPayload{
		Message: "connected to companion relay",
	}})
	time.AfterFunc(statusDelay, func() {
		st := h.relay.Status()
		cw.sendEvent(relay.Event{Type: relay.EventConnectionStatus, Payload: relay.ConnectionStatusPayload{
			Twitch:  st.TwitchConnected,
			YouTube: st.YouTubeConnected,
			Gemini:  st.GeminiConfigured,
		}})
	})

	go h.readLoop(conn, cw)
}

func (h *Handlers) readLoop(conn *websocket.Conn, cw *clientWriter) {
	defer h.hub.Unregister(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			cw.sendEvent(relay.Event{Type: relay.EventError, Payload: relay.ErrorPayload{
				Message: "invalid message: " + err.Error(),
			}})
			continue
		}

		// Liveness check bypasses command dispatch.
		if cmd.Type == "ping" {
			cw.sendEvent(relay.Event{Type: relay.EventPong, Payload: struct{}{}})
			continue
		}

		if err := h.dispatch(cmd); err != nil {
			cw.sendEvent(relay.Event{Type: relay.EventError, Payload: relay.ErrorPayload{
				Message: err.Error(),
			}})
		}
	}
}

// dispatch routes a recognized command to the relay. Command failures that the
// relay already broadcasts (connect errors, send errors) return nil here; only
// malformed payloads come back as per-client errors.
func (h *Handlers) dispatch(cmd clientCommand) error {
	switch cmd.Type {
	case "connect_twitch":
		var p struct {
			Channel     string `json:"channel"`
			AccessToken string `json:"accessToken"`
			ClientID    string `json:"clientId"`
		}
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return fmt.Errorf("invalid connect_twitch payload: %w", err)
		}
		go func() {
			_ = h.relay.ConnectTwitch(context.Background(), p.Channel, p.AccessToken, p.ClientID)
		}()
	case "disconnect_twitch":
		h.relay.DisconnectTwitch()
	case "connect_youtube":
		var p struct {
			LiveChatID string `json:"liveChatId"`
			APIKey     string `json:"apiKey"`
		}
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return fmt.Errorf("invalid connect_youtube payload: %w", err)
		}
		go func() {
			_ = h.relay.ConnectYouTube(context.Background(), p.LiveChatID, p.APIKey)
		}()
	case "disconnect_youtube":
		h.relay.DisconnectYouTube()
	case "send_message":
		var p struct {
			Platform relay.Platform `json:"platform"`
			Message  string         `json:"message"`
		}
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return fmt.Errorf("invalid send_message payload: %w", err)
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = h.relay.SendMessage(ctx, p.Platform, p.Message)
		}()
	case "create_poll":
		var p struct {
			Platform relay.Platform `json:"platform"`
			Question string         `json:"question"`
			Options  []string       `json:"options"`
			Duration int            `json:"duration"`
		}
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return fmt.Errorf("invalid create_poll payload: %w", err)
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_, _ = h.relay.CreatePoll(ctx, p.Platform, p.Question, p.Options, p.Duration)
		}()
	default:
		slog.Debug("ignoring unrecognized client command", slog.String("type", cmd.Type))
	}
	return nil
}
