// Package youtube adapts YouTube Live Chat to the relay's normalized message
// model. Inbound messages come from polling the liveChatMessages endpoint with
// a continuation token; outbound text is inserted through the same API.
//
// The poll loop is a single-shot timer re-armed only after the previous poll
// settles, so a slow response can never overlap the next poll. Consecutive
// fetch failures back off exponentially up to a ceiling and reset on success.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/MiChaelinzo/ai-stream-companion-sub000/relay"
	"github.com/MiChaelinzo/ai-stream-companion-sub000/telemetry"
)

var ErrNotConnected = errors.New("youtube: not connected")

const maxPollBackoff = 60 * time.Second

// Adapter polls one live chat at a time. A new Connect supersedes the prior
// session; the session counter fences stale polls and late callbacks.
type Adapter struct {
	// OAuthToken optionally authenticates requests as a user; message inserts
	// require it upstream, an API key alone is read-only.
	OAuthToken string
	// PollInterval between successful polls. Defaults to 5s.
	PollInterval time.Duration
	// HTTPTimeout bounds each list/insert call. Defaults to 10s.
	HTTPTimeout time.Duration
	// ExtraOptions are appended to the service client options (tests).
	ExtraOptions []option.ClientOption

	mu         sync.Mutex
	svc        *yt.Service
	liveChatID string
	pageToken  string
	session    uint64
	cancel     context.CancelFunc
	connected  bool
	onMessage  func(relay.ChatMessage)
}

func New() *Adapter {
	return &Adapter{}
}

// Connect stores the target chat id, builds the API client, and starts the
// poll loop. The first poll fires immediately.
func (a *Adapter) Connect(ctx context.Context, liveChatID, apiKey string) error {
	if liveChatID == "" {
		return fmt.Errorf("youtube: live chat id empty")
	}
	if apiKey == "" && a.OAuthToken == "" {
		return fmt.Errorf("youtube: api key or oauth token required")
	}

	var opts []option.ClientOption
	if a.OAuthToken != "" {
		opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: a.OAuthToken})))
	} else {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	opts = append(opts, a.ExtraOptions...)

	svc, err := yt.NewService(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return fmt.Errorf("youtube service: %w", err)
	}

	a.mu.Lock()
	a.disconnectLocked()
	a.session++
	session := a.session
	runCtx, cancel := context.WithCancel(context.Background())
	a.svc = svc
	a.liveChatID = liveChatID
	a.pageToken = ""
	a.cancel = cancel
	a.connected = true
	a.mu.Unlock()

	slog.Info("youtube polling started", slog.String("live_chat_id", liveChatID))
	go a.run(runCtx, session)
	return nil
}

func (a *Adapter) run(ctx context.Context, session uint64) {
	var backoff time.Duration
	for {
		if ctx.Err() != nil {
			return
		}
		if err := a.pollOnce(ctx, session); err != nil {
			if ctx.Err() != nil {
				return
			}
			if backoff == 0 {
				backoff = time.Second
			} else {
				backoff *= 2
			}
			if backoff > maxPollBackoff {
				backoff = maxPollBackoff
			}
			telemetry.CountYouTubePollFailure()
			slog.Warn("youtube poll failed", slog.Any("err", err), slog.Duration("retry_in", backoff))
		} else {
			backoff = 0
		}

		wait := a.interval()
		if backoff > 0 {
			wait = backoff
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (a *Adapter) interval() time.Duration {
	if a.PollInterval > 0 {
		return a.PollInterval
	}
	return 5 * time.Second
}

func (a *Adapter) timeout() time.Duration {
	if a.HTTPTimeout > 0 {
		return a.HTTPTimeout
	}
	return 10 * time.Second
}

func (a *Adapter) pollOnce(ctx context.Context, session uint64) error {
	a.mu.Lock()
	if a.session != session {
		a.mu.Unlock()
		return nil
	}
	svc := a.svc
	chatID := a.liveChatID
	token := a.pageToken
	a.mu.Unlock()

	tctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()
	call := svc.LiveChatMessages.List(chatID, []string{"snippet", "authorDetails"}).Context(tctx)
	if token != "" {
		call = call.PageToken(token)
	}
	resp, err := call.Do()
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.session != session {
		a.mu.Unlock()
		return nil
	}
	a.pageToken = resp.NextPageToken
	handler := a.onMessage
	a.mu.Unlock()

	if handler == nil {
		return nil
	}
	for _, item := range resp.Items {
		handler(normalize(item))
	}
	return nil
}

func normalize(item *yt.LiveChatMessage) relay.ChatMessage {
	username := "Anonymous"
	if item.AuthorDetails != nil && item.AuthorDetails.DisplayName != "" {
		username = item.AuthorDetails.DisplayName
	}
	var text string
	ts := time.Now().UTC()
	if item.Snippet != nil {
		text = item.Snippet.DisplayMessage
		if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			ts = t
		}
	}
	return relay.ChatMessage{
		Platform:  relay.PlatformYouTube,
		Username:  username,
		Message:   text,
		Timestamp: ts,
	}
}

// Disconnect cancels the poll loop. Idempotent.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnectLocked()
}

func (a *Adapter) disconnectLocked() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.svc = nil
	a.connected = false
	a.session++
}

// SendMessage inserts a text message event into the live chat.
func (a *Adapter) SendMessage(ctx context.Context, text string) error {
	a.mu.Lock()
	svc := a.svc
	chatID := a.liveChatID
	connected := a.connected
	a.mu.Unlock()
	if svc == nil || !connected {
		return ErrNotConnected
	}

	tctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()
	msg := &yt.LiveChatMessage{
		Snippet: &yt.LiveChatMessageSnippet{
			LiveChatId: chatID,
			Type:       "textMessageEvent",
			TextMessageDetails: &yt.LiveChatTextMessageDetails{
				MessageText: text,
			},
		},
	}
	if _, err := svc.LiveChatMessages.Insert([]string{"snippet"}, msg).Context(tctx).Do(); err != nil {
		return fmt.Errorf("youtube insert: %w", err)
	}
	return nil
}

// OnMessage registers the single inbound message callback; a later
// registration replaces the earlier one.
func (a *Adapter) OnMessage(fn func(relay.ChatMessage)) {
	a.mu.Lock()
	a.onMessage = fn
	a.mu.Unlock()
}

// IsConnected is true iff the poll loop is active.
func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}
