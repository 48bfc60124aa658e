// Package testutil provides httptest-backed mock upstream API servers shared
// by the adapter and responder tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockTwitchServer creates a test server that mocks Twitch Helix API responses
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockUserResponse adds a handler for /helix/users endpoint
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.Handlers["/helix/users"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": []map[string]string{
				{"id": userID, "login": login},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}
}

// MockPollResponse adds a handler for /helix/polls endpoint
func (m *MockTwitchServer) MockPollResponse(pollID, title string, choices []string) {
	m.Handlers["/helix/polls"] = func(w http.ResponseWriter, r *http.Request) {
		cs := make([]map[string]string, 0, len(choices))
		for i, c := range choices {
			cs = append(cs, map[string]string{"id": string(rune('a' + i)), "title": c})
		}
		response := map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": pollID, "title": title, "choices": cs, "status": "ACTIVE", "duration": 60},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}
}

// MockGeminiServer creates a test server that mocks the generateContent endpoint.
type MockGeminiServer struct {
	*httptest.Server
	// Reply is returned for every request. Status overrides the 200 default.
	Reply  string
	Status int

	mu    sync.Mutex
	calls int
}

// CallCount returns how many generate requests the server has seen.
func (m *MockGeminiServer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// NewMockGeminiServer creates a new mock model API server
func NewMockGeminiServer(t *testing.T) *MockGeminiServer {
	t.Helper()
	m := &MockGeminiServer{Reply: "hello!", Status: http.StatusOK}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.calls++
		m.mu.Unlock()
		if m.Status != http.StatusOK {
			w.WriteHeader(m.Status)
			_, _ = w.Write([]byte(`{"error":{"message":"mock failure"}}`))
			return
		}
		response := map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": m.Reply}},
				}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockYouTubeServer creates a test server that mocks the YouTube liveChatMessages API.
// The adapter polls from its own goroutine, so recorded state is mutex-guarded.
type MockYouTubeServer struct {
	*httptest.Server

	mu sync.Mutex
	// Pages maps a page token ("" for the first poll) to the response to serve.
	Pages map[string]ListResponse
	// seenTokens records the pageToken of each list call in order.
	seenTokens []string
	// inserted records the message text of each insert call.
	inserted []string
	// failList makes list calls return HTTP 500.
	failList bool
}

// SetFailList toggles whether list calls fail with HTTP 500.
func (m *MockYouTubeServer) SetFailList(fail bool) {
	m.mu.Lock()
	m.failList = fail
	m.mu.Unlock()
}

// SeenTokens returns the pageToken of each list call so far.
func (m *MockYouTubeServer) SeenTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.seenTokens...)
}

// Inserted returns the text of each inserted message so far.
func (m *MockYouTubeServer) Inserted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.inserted...)
}

// ListResponse is one mock page of live chat messages.
type ListResponse struct {
	NextPageToken string
	Items         []ListItem
}

// ListItem is one mock live chat message.
type ListItem struct {
	Author      string
	Message     string
	PublishedAt string
}

// NewMockYouTubeServer creates a new mock YouTube API server
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{Pages: make(map[string]ListResponse)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			m.mu.Lock()
			if m.failList {
				m.mu.Unlock()
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"message":"mock failure"}}`))
				return
			}
			token := r.URL.Query().Get("pageToken")
			m.seenTokens = append(m.seenTokens, token)
			page := m.Pages[token]
			m.mu.Unlock()
			items := make([]map[string]interface{}, 0, len(page.Items))
			for _, it := range page.Items {
				items = append(items, map[string]interface{}{
					"snippet": map[string]interface{}{
						"displayMessage": it.Message,
						"publishedAt":    it.PublishedAt,
					},
					"authorDetails": map[string]interface{}{
						"displayName": it.Author,
					},
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"items":         items,
				"nextPageToken": page.NextPageToken,
			})
		case http.MethodPost:
			var body struct {
				Snippet struct {
					TextMessageDetails struct {
						MessageText string `json:"messageText"`
					} `json:"textMessageDetails"`
				} `json:"snippet"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			m.mu.Lock()
			m.inserted = append(m.inserted, body.Snippet.TextMessageDetails.MessageText)
			m.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "msg-1"})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(m.Close)
	return m
}
