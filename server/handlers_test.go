package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/MiChaelinzo/ai-stream-companion-sub000/relay"
)

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, stubGen{})
	body := getJSON(t, f.server.URL+"/health")

	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	conns, ok := body["connections"].(map[string]any)
	if !ok {
		t.Fatalf("connections missing: %v", body)
	}
	if conns["twitch"] != false || conns["youtube"] != false {
		t.Errorf("connections = %v, want both false", conns)
	}
	if conns["clients"] != float64(0) {
		t.Errorf("clients = %v, want 0", conns["clients"])
	}
	gemini := body["gemini"].(map[string]any)
	if gemini["configured"] != false {
		t.Errorf("gemini.configured = %v, want false", gemini["configured"])
	}
}

func TestHealthReflectsConnections(t *testing.T) {
	f := newFixture(t, stubGen{reply: "x", ok: true})
	if err := f.relay.ConnectTwitch(context.Background(), "mychannel", "tok", ""); err != nil {
		t.Fatalf("ConnectTwitch: %v", err)
	}
	conn := f.dial(t)
	waitForEvent(t, conn, relay.EventConnected)

	body := getJSON(t, f.server.URL+"/health")
	conns := body["connections"].(map[string]any)
	if conns["twitch"] != true {
		t.Errorf("connections.twitch = %v, want true", conns["twitch"])
	}
	if conns["clients"] != float64(1) {
		t.Errorf("clients = %v, want 1", conns["clients"])
	}
	tw := body["twitch"].(map[string]any)
	if tw["channel"] != "mychannel" {
		t.Errorf("twitch.channel = %v", tw["channel"])
	}
	gemini := body["gemini"].(map[string]any)
	if gemini["configured"] != true {
		t.Errorf("gemini.configured = %v, want true", gemini["configured"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, stubGen{})
	if err := f.relay.ConnectTwitch(context.Background(), "mychannel", "tok", ""); err != nil {
		t.Fatalf("ConnectTwitch: %v", err)
	}
	if err := f.relay.ConnectYouTube(context.Background(), "chat-1", "key"); err != nil {
		t.Fatalf("ConnectYouTube: %v", err)
	}

	body := getJSON(t, f.server.URL+"/status")
	platforms := body["platforms"].(map[string]any)

	tw := platforms["twitch"].(map[string]any)
	if tw["state"] != "connected" || tw["channel"] != "mychannel" {
		t.Errorf("twitch status = %v", tw)
	}
	yt := platforms["youtube"].(map[string]any)
	if yt["state"] != "connected" || yt["liveChatId"] != "chat-1" {
		t.Errorf("youtube status = %v", yt)
	}
	if body["recentMessages"] != float64(0) {
		t.Errorf("recentMessages = %v", body["recentMessages"])
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	f := newFixture(t, stubGen{})
	resp, err := http.Get(f.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
