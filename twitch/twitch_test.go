package twitch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"

	"github.com/MiChaelinzo/ai-stream-companion-sub000/relay"
)

type fakeIRC struct {
	username string
	token    string
	// stall keeps Connect blocked in the handshake, never reporting ready.
	stall bool

	mu           sync.Mutex
	onConnect    func()
	onPrivMsg    func(twitchirc.PrivateMessage)
	joined       []string
	said         [][2]string
	connectErr   error
	done         chan struct{}
	disconnected bool
}

func (f *fakeIRC) OnConnect(fn func()) { f.onConnect = fn }

func (f *fakeIRC) OnPrivateMessage(fn func(twitchirc.PrivateMessage)) { f.onPrivMsg = fn }

func (f *fakeIRC) Join(channels ...string) {
	f.mu.Lock()
	f.joined = append(f.joined, channels...)
	f.mu.Unlock()
}

func (f *fakeIRC) Say(channel, text string) {
	f.mu.Lock()
	f.said = append(f.said, [2]string{channel, text})
	f.mu.Unlock()
}

func (f *fakeIRC) Connect() error {
	if f.connectErr != nil {
		return f.connectErr
	}
	if !f.stall {
		f.onConnect()
	}
	<-f.done
	return twitchirc.ErrClientDisconnected
}

func (f *fakeIRC) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.disconnected {
		f.disconnected = true
		close(f.done)
	}
	return nil
}

func (f *fakeIRC) isDisconnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}

func (f *fakeIRC) saidLines() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]string(nil), f.said...)
}

// newFakeAdapter returns an adapter whose IRC transport is replaced by fakes.
// The latest fake built by Connect is available through the returned getter.
func newFakeAdapter(connectErr error) (*Adapter, func() *fakeIRC) {
	a := New()
	var (
		mu   sync.Mutex
		last *fakeIRC
	)
	a.newClient = func(username, token string) ircClient {
		f := &fakeIRC{
			username:   username,
			token:      token,
			connectErr: connectErr,
			done:       make(chan struct{}),
		}
		mu.Lock()
		last = f
		mu.Unlock()
		return f
	}
	return a, func() *fakeIRC {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func collectMessages(a *Adapter) func() []relay.ChatMessage {
	var mu sync.Mutex
	var msgs []relay.ChatMessage
	a.OnMessage(func(m relay.ChatMessage) {
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
	})
	return func() []relay.ChatMessage {
		mu.Lock()
		defer mu.Unlock()
		return append([]relay.ChatMessage(nil), msgs...)
	}
}

func TestConnectNormalizesMessages(t *testing.T) {
	a, irc := newFakeAdapter(nil)
	if err := a.Connect(context.Background(), "mychannel", "token123", "client-id"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer a.Disconnect()

	if !a.IsConnected() {
		t.Fatalf("IsConnected() = false after Connect")
	}
	fake := irc()
	if len(fake.joined) != 1 || fake.joined[0] != "mychannel" {
		t.Errorf("joined = %v, want [mychannel]", fake.joined)
	}

	got := collectMessages(a)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fake.onPrivMsg(twitchirc.PrivateMessage{
		User:    twitchirc.User{Name: "bob", DisplayName: "Bob"},
		Message: "hello stream",
		Time:    ts,
	})

	msgs := got()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	want := relay.ChatMessage{Platform: relay.PlatformTwitch, Username: "Bob", Message: "hello stream", Timestamp: ts}
	if msgs[0] != want {
		t.Errorf("message = %+v, want %+v", msgs[0], want)
	}
}

func TestUsernameAndTimestampFallbacks(t *testing.T) {
	a, irc := newFakeAdapter(nil)
	if err := a.Connect(context.Background(), "mychannel", "token123", ""); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer a.Disconnect()
	got := collectMessages(a)

	fake := irc()
	fake.onPrivMsg(twitchirc.PrivateMessage{
		User:    twitchirc.User{Name: "carol"},
		Message: "no display name",
	})
	fake.onPrivMsg(twitchirc.PrivateMessage{
		Message: "no identity at all",
	})

	msgs := got()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Username != "carol" {
		t.Errorf("username = %q, want carol", msgs[0].Username)
	}
	if msgs[1].Username != "Anonymous" {
		t.Errorf("username = %q, want Anonymous", msgs[1].Username)
	}
	for i, m := range msgs {
		if m.Timestamp.IsZero() {
			t.Errorf("message %d has zero timestamp", i)
		}
	}
}

func TestSelfMessagesSuppressed(t *testing.T) {
	a, irc := newFakeAdapter(nil)
	a.BotUsername = "MyBot"
	if err := a.Connect(context.Background(), "mychannel", "token123", ""); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer a.Disconnect()
	got := collectMessages(a)

	fake := irc()
	fake.onPrivMsg(twitchirc.PrivateMessage{
		User:    twitchirc.User{Name: "mybot", DisplayName: "MyBot"},
		Message: "I am the bot",
	})
	fake.onPrivMsg(twitchirc.PrivateMessage{
		User:    twitchirc.User{Name: "viewer"},
		Message: "I am not",
	})

	msgs := got()
	if len(msgs) != 1 || msgs[0].Username != "viewer" {
		t.Errorf("messages = %+v, want only the viewer message", msgs)
	}
}

func TestTokenGetsOAuthPrefix(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"abc123", "oauth:abc123"},
		{"oauth:abc123", "oauth:abc123"},
	} {
		a, irc := newFakeAdapter(nil)
		if err := a.Connect(context.Background(), "mychannel", tc.in, ""); err != nil {
			t.Fatalf("Connect(%q) error: %v", tc.in, err)
		}
		if got := irc().token; got != tc.want {
			t.Errorf("token passed to client = %q, want %q", got, tc.want)
		}
		a.Disconnect()
	}
}

func TestConnectRequiresCredentials(t *testing.T) {
	a, _ := newFakeAdapter(nil)
	if err := a.Connect(context.Background(), "", "tok", ""); !errors.Is(err, ErrCredentialsMissing) {
		t.Errorf("Connect without channel = %v, want ErrCredentialsMissing", err)
	}
	if err := a.Connect(context.Background(), "ch", "", ""); !errors.Is(err, ErrCredentialsMissing) {
		t.Errorf("Connect without token = %v, want ErrCredentialsMissing", err)
	}
}

func TestConnectTransportFailure(t *testing.T) {
	a, _ := newFakeAdapter(errors.New("login authentication failed"))
	err := a.Connect(context.Background(), "mychannel", "badtoken", "")
	if err == nil {
		t.Fatalf("expected connect error")
	}
	if a.IsConnected() {
		t.Errorf("IsConnected() = true after failed connect")
	}
}

func TestSendMessage(t *testing.T) {
	a, irc := newFakeAdapter(nil)
	if err := a.SendMessage(context.Background(), "too early"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendMessage before connect = %v, want ErrNotConnected", err)
	}

	if err := a.Connect(context.Background(), "mychannel", "token123", ""); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer a.Disconnect()
	if err := a.SendMessage(context.Background(), "hello chat"); err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	said := irc().saidLines()
	if len(said) != 1 || said[0] != [2]string{"mychannel", "hello chat"} {
		t.Errorf("said = %v", said)
	}
}

func TestDisconnectIdempotentAndFencesStaleSession(t *testing.T) {
	a, irc := newFakeAdapter(nil)
	if err := a.Connect(context.Background(), "mychannel", "token123", ""); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	got := collectMessages(a)
	old := irc()

	a.Disconnect()
	a.Disconnect()
	if a.IsConnected() {
		t.Errorf("IsConnected() = true after Disconnect")
	}
	if !old.isDisconnected() {
		t.Errorf("transport was not disconnected")
	}

	// A late callback from the torn-down session must be dropped.
	old.onPrivMsg(twitchirc.PrivateMessage{User: twitchirc.User{Name: "ghost"}, Message: "boo"})
	if msgs := got(); len(msgs) != 0 {
		t.Errorf("stale session delivered %d messages", len(msgs))
	}
}

func TestReconnectSupersedesOldSession(t *testing.T) {
	a, irc := newFakeAdapter(nil)
	if err := a.Connect(context.Background(), "first", "token123", ""); err != nil {
		t.Fatalf("first Connect() error: %v", err)
	}
	old := irc()
	got := collectMessages(a)

	if err := a.Connect(context.Background(), "second", "token123", ""); err != nil {
		t.Fatalf("second Connect() error: %v", err)
	}
	defer a.Disconnect()
	if !old.isDisconnected() {
		t.Errorf("first session still live after reconnect")
	}

	old.onPrivMsg(twitchirc.PrivateMessage{User: twitchirc.User{Name: "ghost"}, Message: "stale"})
	irc().onPrivMsg(twitchirc.PrivateMessage{User: twitchirc.User{Name: "fresh"}, Message: "live"})

	msgs := got()
	if len(msgs) != 1 || msgs[0].Username != "fresh" {
		t.Errorf("messages = %+v, want only the live-session message", msgs)
	}
}

func TestStaleConnectFailureLeavesSuccessorAlive(t *testing.T) {
	a := New()
	var (
		mu    sync.Mutex
		fakes []*fakeIRC
	)
	a.newClient = func(username, token string) ircClient {
		f := &fakeIRC{username: username, token: token, done: make(chan struct{})}
		mu.Lock()
		// The first session never finishes its handshake.
		f.stall = len(fakes) == 0
		fakes = append(fakes, f)
		mu.Unlock()
		return f
	}

	// First connect blocks mid-handshake.
	firstErr := make(chan error, 1)
	go func() {
		firstErr <- a.Connect(context.Background(), "first", "token123", "")
	}()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(fakes)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Second connect supersedes it; tearing down the first transport makes the
	// stale connect's failure path fire.
	if err := a.Connect(context.Background(), "second", "token123", ""); err != nil {
		t.Fatalf("second Connect() error: %v", err)
	}
	defer a.Disconnect()

	select {
	case err := <-firstErr:
		if err == nil {
			t.Fatalf("superseded connect should return an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("superseded connect never returned")
	}

	if !a.IsConnected() {
		t.Fatalf("live session was torn down by the stale connect's failure path")
	}
	mu.Lock()
	second := fakes[1]
	mu.Unlock()
	if second.isDisconnected() {
		t.Errorf("successor transport was disconnected")
	}
	if err := a.SendMessage(context.Background(), "still here"); err != nil {
		t.Errorf("SendMessage on the live session: %v", err)
	}
}

func TestCreatePollValidation(t *testing.T) {
	a, _ := newFakeAdapter(nil)
	if _, err := a.CreatePoll(context.Background(), "q?", []string{"a", "b"}, 60); !errors.Is(err, ErrCredentialsMissing) {
		t.Errorf("CreatePoll without credentials = %v, want ErrCredentialsMissing", err)
	}

	if err := a.Connect(context.Background(), "mychannel", "token123", "client-id"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer a.Disconnect()
	if _, err := a.CreatePoll(context.Background(), "q?", []string{"only one"}, 60); err == nil {
		t.Errorf("CreatePoll with one option should fail")
	}
	if _, err := a.CreatePoll(context.Background(), "q?", []string{"a", "b", "c", "d", "e", "f"}, 60); err == nil {
		t.Errorf("CreatePoll with six options should fail")
	}
}
