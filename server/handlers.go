package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MiChaelinzo/ai-stream-companion-sub000/relay"
)

// Handlers bundles the dependencies the HTTP and WebSocket endpoints need.
type Handlers struct {
	relay *relay.Relay
	hub   *Hub
	start time.Time
}

func NewHandlers(r *relay.Relay, hub *Hub) *Handlers {
	return &Handlers{relay: r, hub: hub, start: time.Now()}
}

// HandleHealth is the liveness/introspection endpoint.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.relay.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.start).Seconds(),
		"connections": map[string]any{
			"twitch":  st.TwitchConnected,
			"youtube": st.YouTubeConnected,
			"clients": h.hub.ClientCount(),
		},
		"gemini": map[string]any{
			"configured": st.GeminiConfigured,
		},
		"twitch": map[string]any{
			"channel":  st.TwitchChannel,
			"username": st.BotUsername,
		},
	})
}

// HandleStatus is a richer read-only summary for the dashboard.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.relay.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.start).Seconds(),
		"platforms": map[string]any{
			"twitch": map[string]any{
				"state":     st.States[relay.PlatformTwitch],
				"connected": st.TwitchConnected,
				"channel":   st.TwitchChannel,
				"lastError": st.LastErrors[relay.PlatformTwitch],
			},
			"youtube": map[string]any{
				"state":      st.States[relay.PlatformYouTube],
				"connected":  st.YouTubeConnected,
				"liveChatId": st.YouTubeChatID,
				"lastError":  st.LastErrors[relay.PlatformYouTube],
			},
		},
		"gemini": map[string]any{
			"configured": st.GeminiConfigured,
		},
		"clients":        h.hub.ClientCount(),
		"recentMessages": st.RecentMessages,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
