package twitch

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/MiChaelinzo/ai-stream-companion-sub000/testutil"
)

// rewriteTransport redirects every request to the mock server while keeping
// the request path intact.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newMockedHelixClient(t *testing.T, mock *testutil.MockTwitchServer) *HelixClient {
	t.Helper()
	u, err := url.Parse(mock.URL)
	if err != nil {
		t.Fatalf("parse mock URL: %v", err)
	}
	return &HelixClient{
		AccessToken: "tok123",
		ClientID:    "cid456",
		HTTPClient:  &http.Client{Transport: rewriteTransport{target: u}},
	}
}

func TestGetBroadcasterID(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockUserResponse("42", "mychannel")
	hc := newMockedHelixClient(t, mock)

	id, err := hc.GetBroadcasterID(context.Background(), "mychannel")
	if err != nil {
		t.Fatalf("GetBroadcasterID() error: %v", err)
	}
	if id != "42" {
		t.Errorf("id = %q, want 42", id)
	}
}

func TestGetBroadcasterIDNotFound(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.Handlers["/helix/users"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}
	hc := newMockedHelixClient(t, mock)

	if _, err := hc.GetBroadcasterID(context.Background(), "nobody"); !errors.Is(err, ErrBroadcasterNotFound) {
		t.Errorf("err = %v, want ErrBroadcasterNotFound", err)
	}
}

func TestGetBroadcasterIDSendsAuthHeaders(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	var gotAuth, gotClientID string
	mock.Handlers["/helix/users"] = func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotClientID = r.Header.Get("Client-Id")
		_, _ = w.Write([]byte(`{"data":[{"id":"42"}]}`))
	}
	hc := newMockedHelixClient(t, mock)

	if _, err := hc.GetBroadcasterID(context.Background(), "mychannel"); err != nil {
		t.Fatalf("GetBroadcasterID() error: %v", err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q, want Bearer tok123", gotAuth)
	}
	if gotClientID != "cid456" {
		t.Errorf("Client-Id = %q, want cid456", gotClientID)
	}
}

func TestCreatePollHelix(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockPollResponse("poll-1", "Best game?", []string{"A", "B"})
	hc := newMockedHelixClient(t, mock)

	poll, err := hc.CreatePoll(context.Background(), "42", "Best game?", []string{"A", "B"}, 60)
	if err != nil {
		t.Fatalf("CreatePoll() error: %v", err)
	}
	if poll.ID != "poll-1" || poll.Title != "Best game?" || poll.Status != "ACTIVE" {
		t.Errorf("poll = %+v", poll)
	}
	if len(poll.Choices) != 2 || poll.Choices[0].Title != "A" {
		t.Errorf("choices = %+v", poll.Choices)
	}
}

func TestCreatePollHelixError(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.Handlers["/helix/polls"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
	}
	hc := newMockedHelixClient(t, mock)

	if _, err := hc.CreatePoll(context.Background(), "42", "q?", []string{"a", "b"}, 60); err == nil {
		t.Errorf("expected error on 401 response")
	}
}
