package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/MiChaelinzo/ai-stream-companion-sub000/relay"
)

// ErrBroadcasterNotFound means the channel login had no Helix user match.
var ErrBroadcasterNotFound = errors.New("twitch: broadcaster not found")

const helixBase = "https://api.twitch.tv/helix"

// HelixClient provides the minimal Helix surface the adapter needs:
// login-to-id resolution and poll creation, using a user access token.
type HelixClient struct {
	AccessToken string
	ClientID    string
	HTTPClient  *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) setHeaders(req *http.Request) {
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+hc.AccessToken)
}

// GetBroadcasterID resolves a channel login to its numeric user ID.
func (hc *HelixClient) GetBroadcasterID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, helixBase+"/users", nil)
	q := req.URL.Query()
	q.Set("login", login)
	req.URL.RawQuery = q.Encode()
	hc.setHeaders(req)
	resp, err := hc.http().Do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("helix users request failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", ErrBroadcasterNotFound
	}
	return body.Data[0].ID, nil
}

// CreatePoll submits a poll for the broadcaster and returns the created poll.
func (hc *HelixClient) CreatePoll(ctx context.Context, broadcasterID, question string, options []string, durationSeconds int) (*relay.Poll, error) {
	if broadcasterID == "" {
		return nil, fmt.Errorf("broadcasterID empty")
	}
	choices := make([]map[string]string, 0, len(options))
	for _, opt := range options {
		choices = append(choices, map[string]string{"title": opt})
	}
	payload, err := json.Marshal(map[string]any{
		"broadcaster_id": broadcasterID,
		"title":          question,
		"choices":        choices,
		"duration":       durationSeconds,
	})
	if err != nil {
		return nil, err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, helixBase+"/polls", bytes.NewReader(payload))
	hc.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("helix polls request failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data []struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			Choices []struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"choices"`
			Status   string `json:"status"`
			Duration int    `json:"duration"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("helix polls: empty response")
	}
	d := body.Data[0]
	poll := &relay.Poll{ID: d.ID, Title: d.Title, Status: d.Status, Duration: d.Duration}
	for _, c := range d.Choices {
		poll.Choices = append(poll.Choices, relay.PollChoice{ID: c.ID, Title: c.Title})
	}
	return poll, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
