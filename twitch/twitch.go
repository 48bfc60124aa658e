// Package twitch adapts Twitch chat to the relay's normalized message model.
// Inbound messages arrive over a persistent IRC connection (with the
// transport's own auto-reconnect); outbound text goes back over IRC and poll
// creation goes through the Helix REST API.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"

	"github.com/MiChaelinzo/ai-stream-companion-sub000/relay"
)

var (
	ErrNotConnected       = errors.New("twitch: not connected")
	ErrCredentialsMissing = errors.New("twitch: credentials missing")
)

// Adapter maintains at most one live IRC session. A new Connect supersedes any
// prior session; stale sessions are fenced off with a generation counter so an
// in-flight connect or late callback can't resurrect a closed connection.
type Adapter struct {
	// BotUsername identifies the bot in IRC and is used for self-message
	// suppression. Falls back to the channel login when empty.
	BotUsername string
	// HTTPTimeout bounds Helix calls. Defaults to 10s.
	HTTPTimeout time.Duration
	// HTTPClient overrides the Helix transport (tests).
	HTTPClient *http.Client

	mu        sync.Mutex
	client    ircClient
	session   uint64
	channel   string
	username  string
	token     string
	clientID  string
	connected bool
	onMessage func(relay.ChatMessage)

	// newClient builds the IRC client; replaced in tests.
	newClient func(username, token string) ircClient
}

// ircClient is the slice of the IRC transport the adapter uses.
type ircClient interface {
	OnConnect(func())
	OnPrivateMessage(func(twitchirc.PrivateMessage))
	Join(channels ...string)
	Say(channel, text string)
	Connect() error
	Disconnect() error
}

func New() *Adapter {
	return &Adapter{
		newClient: func(username, token string) ircClient {
			return twitchirc.NewClient(username, token)
		},
	}
}

// Connect opens an IRC session for channel. It blocks until the transport
// reports connected, the context ends, or the timeout elapses.
func (a *Adapter) Connect(ctx context.Context, channel, accessToken, clientID string) error {
	if channel == "" || accessToken == "" {
		return ErrCredentialsMissing
	}

	a.mu.Lock()
	if a.client != nil {
		a.disconnectLocked()
	}
	a.session++
	session := a.session

	username := a.BotUsername
	if username == "" {
		username = channel
	}
	token := accessToken
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}

	client := a.newClient(username, token)
	ready := make(chan struct{})
	var readyOnce sync.Once
	client.OnConnect(func() {
		a.mu.Lock()
		if a.session == session {
			a.connected = true
		}
		a.mu.Unlock()
		readyOnce.Do(func() { close(ready) })
	})
	client.OnPrivateMessage(func(msg twitchirc.PrivateMessage) {
		a.dispatch(session, msg)
	})
	client.Join(channel)

	a.client = client
	a.channel = channel
	a.username = username
	a.token = accessToken
	a.clientID = clientID
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		err := client.Connect()
		a.mu.Lock()
		if a.session == session {
			a.connected = false
		}
		a.mu.Unlock()
		if err != nil && !errors.Is(err, twitchirc.ErrClientDisconnected) {
			slog.Error("twitch irc connection ended", slog.String("channel", channel), slog.Any("err", err))
		}
		errCh <- err
	}()

	timeout := a.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-ready:
		slog.Info("twitch irc connected", slog.String("channel", channel))
		return nil
	case err := <-errCh:
		a.disconnectSession(session)
		if err == nil {
			err = errors.New("connection closed before ready")
		}
		return fmt.Errorf("twitch connect: %w", err)
	case <-ctx.Done():
		a.disconnectSession(session)
		return fmt.Errorf("twitch connect: %w", ctx.Err())
	case <-time.After(timeout):
		a.disconnectSession(session)
		return fmt.Errorf("twitch connect: timed out after %s", timeout)
	}
}

// disconnectSession tears down only the given session. A superseded connect's
// failure path lands here after its successor is already live and must not
// touch it.
func (a *Adapter) disconnectSession(session uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != session {
		return
	}
	a.disconnectLocked()
}

func (a *Adapter) dispatch(session uint64, msg twitchirc.PrivateMessage) {
	a.mu.Lock()
	if a.session != session {
		a.mu.Unlock()
		return
	}
	handler := a.onMessage
	self := strings.EqualFold(msg.User.Name, a.username)
	a.mu.Unlock()

	if self || handler == nil {
		return
	}

	username := msg.User.DisplayName
	if username == "" {
		username = msg.User.Name
	}
	if username == "" {
		username = "Anonymous"
	}
	ts := msg.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	handler(relay.ChatMessage{
		Platform:  relay.PlatformTwitch,
		Username:  username,
		Message:   msg.Message,
		Timestamp: ts,
	})
}

// Disconnect tears down the session. Idempotent.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnectLocked()
}

func (a *Adapter) disconnectLocked() {
	if a.client == nil {
		return
	}
	if err := a.client.Disconnect(); err != nil && !errors.Is(err, twitchirc.ErrConnectionIsNotOpen) {
		slog.Warn("twitch irc disconnect", slog.Any("err", err))
	}
	a.client = nil
	a.connected = false
	a.session++
}

// SendMessage posts text as a chat line to the joined channel.
func (a *Adapter) SendMessage(_ context.Context, text string) error {
	a.mu.Lock()
	client := a.client
	channel := a.channel
	connected := a.connected
	a.mu.Unlock()
	if client == nil || !connected {
		return ErrNotConnected
	}
	client.Say(channel, text)
	return nil
}

// OnMessage registers the single inbound message callback. A later
// registration replaces the earlier one; the relay is the only consumer.
func (a *Adapter) OnMessage(fn func(relay.ChatMessage)) {
	a.mu.Lock()
	a.onMessage = fn
	a.mu.Unlock()
}

// IsConnected reflects live transport state, not merely that Connect ran.
func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client != nil && a.connected
}

// CreatePoll resolves the broadcaster id for the connected channel and submits
// a poll. Requires the access token and client id supplied at connect time.
func (a *Adapter) CreatePoll(ctx context.Context, question string, options []string, durationSeconds int) (*relay.Poll, error) {
	a.mu.Lock()
	token := a.token
	clientID := a.clientID
	channel := a.channel
	a.mu.Unlock()
	if token == "" || clientID == "" {
		return nil, ErrCredentialsMissing
	}
	if len(options) < 2 || len(options) > 5 {
		return nil, fmt.Errorf("twitch: poll needs 2-5 options, got %d", len(options))
	}

	hc := &HelixClient{
		AccessToken: strings.TrimPrefix(token, "oauth:"),
		ClientID:    clientID,
		HTTPClient:  a.HTTPClient,
	}
	timeout := a.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	broadcasterID, err := hc.GetBroadcasterID(ctx, channel)
	if err != nil {
		return nil, err
	}
	return hc.CreatePoll(ctx, broadcasterID, question, options, durationSeconds)
}
