package relay

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/MiChaelinzo/ai-stream-companion-sub000/telemetry"
)

// TwitchAdapter is the relay-facing contract of the Twitch chat adapter.
type TwitchAdapter interface {
	Connect(ctx context.Context, channel, accessToken, clientID string) error
	Disconnect()
	SendMessage(ctx context.Context, text string) error
	CreatePoll(ctx context.Context, question string, options []string, durationSeconds int) (*Poll, error)
	OnMessage(fn func(ChatMessage))
	IsConnected() bool
}

// YouTubeAdapter is the relay-facing contract of the YouTube live chat adapter.
type YouTubeAdapter interface {
	Connect(ctx context.Context, liveChatID, apiKey string) error
	Disconnect()
	SendMessage(ctx context.Context, text string) error
	OnMessage(fn func(ChatMessage))
	IsConnected() bool
}

// ResponseGenerator produces an optional AI reply for an inbound message.
// ok=false means no reply (gate skipped, not configured, or model error).
type ResponseGenerator interface {
	GenerateResponse(ctx context.Context, message, username string) (reply string, ok bool)
	Configured() bool
}

// State of a platform connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

const defaultPollDuration = 60

// Options tune relay behavior. Zero values get defaults.
type Options struct {
	// AutoReplyRate is the extra sampling gate applied to messages arriving on
	// platforms that were auto-connected from env at startup. It composes with
	// the generator's own internal gate; both knobs exist on purpose.
	AutoReplyRate float64
	// CallTimeout bounds outbound platform write-back calls.
	CallTimeout time.Duration
	// BotUsername is surfaced in Status for introspection endpoints.
	BotUsername string
	// Rand overrides the gate's random source (tests).
	Rand func() float64
}

// Relay owns both adapters and the generator. It routes inbound chat through
// the response pipeline and emits every event to the configured Sink.
type Relay struct {
	twitch  TwitchAdapter
	youtube YouTubeAdapter
	gen     ResponseGenerator

	mu      sync.Mutex
	sink    Sink
	states  map[Platform]State
	auto    map[Platform]bool
	lastErr map[Platform]string
	channel string
	chatID  string

	opts   Options
	recent *MessageBuffer
}

// New wires a relay from its collaborators. Call SetSink before connecting.
func New(tw TwitchAdapter, yt YouTubeAdapter, gen ResponseGenerator, opts Options) *Relay {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &Relay{
		twitch:  tw,
		youtube: yt,
		gen:     gen,
		states:  map[Platform]State{PlatformTwitch: StateDisconnected, PlatformYouTube: StateDisconnected},
		auto:    map[Platform]bool{},
		lastErr: map[Platform]string{},
		opts:    opts,
		recent:  NewMessageBuffer(200),
	}
}

// SetSink registers the event sink (the WebSocket hub).
func (r *Relay) SetSink(s Sink) {
	r.mu.Lock()
	r.sink = s
	r.mu.Unlock()
}

func (r *Relay) publish(ev Event) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		sink.Publish(ev)
	}
}

// ConnectTwitch handles the connect_twitch command.
func (r *Relay) ConnectTwitch(ctx context.Context, channel, accessToken, clientID string) error {
	return r.connectTwitch(ctx, channel, accessToken, clientID, false)
}

// AutoConnectTwitch is the env-driven bootstrap path; messages arriving on a
// connection established this way pass the extra auto-reply gate.
func (r *Relay) AutoConnectTwitch(ctx context.Context, channel, accessToken, clientID string) error {
	return r.connectTwitch(ctx, channel, accessToken, clientID, true)
}

func (r *Relay) connectTwitch(ctx context.Context, channel, accessToken, clientID string, auto bool) error {
	r.setState(PlatformTwitch, StateConnecting)
	// Register before connecting so no early message slips past the handler.
	r.twitch.OnMessage(r.handleMessage)
	if err := r.twitch.Connect(ctx, channel, accessToken, clientID); err != nil {
		r.connectFailed(PlatformTwitch, err)
		return err
	}
	r.mu.Lock()
	r.states[PlatformTwitch] = StateConnected
	r.auto[PlatformTwitch] = auto
	r.channel = channel
	delete(r.lastErr, PlatformTwitch)
	r.mu.Unlock()
	slog.Info("twitch connected", slog.String("channel", channel), slog.Bool("auto", auto))
	r.publish(Event{Type: EventTwitchConnected, Payload: TwitchConnectedPayload{Channel: channel, Status: "connected"}})
	return nil
}

// ConnectYouTube handles the connect_youtube command.
func (r *Relay) ConnectYouTube(ctx context.Context, liveChatID, apiKey string) error {
	return r.connectYouTube(ctx, liveChatID, apiKey, false)
}

// AutoConnectYouTube is the env-driven bootstrap path for YouTube.
func (r *Relay) AutoConnectYouTube(ctx context.Context, liveChatID, apiKey string) error {
	return r.connectYouTube(ctx, liveChatID, apiKey, true)
}

func (r *Relay) connectYouTube(ctx context.Context, liveChatID, apiKey string, auto bool) error {
	r.setState(PlatformYouTube, StateConnecting)
	// Register before connecting; the first poll fires as soon as Connect returns.
	r.youtube.OnMessage(r.handleMessage)
	if err := r.youtube.Connect(ctx, liveChatID, apiKey); err != nil {
		r.connectFailed(PlatformYouTube, err)
		return err
	}
	r.mu.Lock()
	r.states[PlatformYouTube] = StateConnected
	r.auto[PlatformYouTube] = auto
	r.chatID = liveChatID
	delete(r.lastErr, PlatformYouTube)
	r.mu.Unlock()
	slog.Info("youtube connected", slog.String("live_chat_id", liveChatID), slog.Bool("auto", auto))
	r.publish(Event{Type: EventYouTubeConnected, Payload: YouTubeConnectedPayload{LiveChatID: liveChatID, Status: "connected"}})
	return nil
}

func (r *Relay) setState(p Platform, s State) {
	r.mu.Lock()
	r.states[p] = s
	r.mu.Unlock()
}

func (r *Relay) connectFailed(p Platform, err error) {
	r.mu.Lock()
	r.states[p] = StateDisconnected
	r.lastErr[p] = err.Error()
	r.mu.Unlock()
	slog.Error("platform connect failed", slog.String("platform", string(p)), slog.Any("err", err))
	r.publish(Event{Type: EventError, Payload: ErrorPayload{Platform: p, Message: err.Error()}})
}

// DisconnectTwitch handles the disconnect_twitch command. Valid in any state.
func (r *Relay) DisconnectTwitch() {
	r.twitch.Disconnect()
	r.mu.Lock()
	r.states[PlatformTwitch] = StateDisconnected
	delete(r.auto, PlatformTwitch)
	r.mu.Unlock()
	slog.Info("twitch disconnected")
	r.publish(Event{Type: EventTwitchDisconnected, Payload: DisconnectedPayload{Status: "disconnected"}})
}

// DisconnectYouTube handles the disconnect_youtube command. Valid in any state.
func (r *Relay) DisconnectYouTube() {
	r.youtube.Disconnect()
	r.mu.Lock()
	r.states[PlatformYouTube] = StateDisconnected
	delete(r.auto, PlatformYouTube)
	r.mu.Unlock()
	slog.Info("youtube disconnected")
	r.publish(Event{Type: EventYouTubeDisconnected, Payload: DisconnectedPayload{Status: "disconnected"}})
}

// SendMessage is the operator override path; it bypasses the generator.
func (r *Relay) SendMessage(ctx context.Context, platform Platform, text string) error {
	var err error
	switch platform {
	case PlatformTwitch:
		err = r.twitch.SendMessage(ctx, text)
	case PlatformYouTube:
		err = r.youtube.SendMessage(ctx, text)
	default:
		err = fmt.Errorf("unknown platform %q", platform)
	}
	if err != nil {
		slog.Error("send message failed", slog.String("platform", string(platform)), slog.Any("err", err))
		r.publish(Event{Type: EventError, Payload: ErrorPayload{Platform: platform, Message: err.Error()}})
	}
	return err
}

// CreatePoll routes poll creation to Twitch; YouTube has no poll primitive here.
func (r *Relay) CreatePoll(ctx context.Context, platform Platform, question string, options []string, durationSeconds int) (*Poll, error) {
	if platform != PlatformTwitch {
		err := fmt.Errorf("polls are not supported on %q", platform)
		r.publish(Event{Type: EventError, Payload: ErrorPayload{Platform: platform, Message: err.Error()}})
		return nil, err
	}
	if durationSeconds <= 0 {
		durationSeconds = defaultPollDuration
	}
	poll, err := r.twitch.CreatePoll(ctx, question, options, durationSeconds)
	if err != nil {
		slog.Error("poll creation failed", slog.Any("err", err))
		r.publish(Event{Type: EventError, Payload: ErrorPayload{Platform: platform, Message: err.Error()}})
		return nil, err
	}
	r.publish(Event{Type: EventPollCreated, Payload: PollCreatedPayload{Platform: platform, Poll: poll}})
	return poll, nil
}

// handleMessage runs for every normalized inbound chat message. The chat_message
// broadcast happens synchronously so it always precedes the ai_response for the
// same message; the response pipeline runs concurrently per message.
func (r *Relay) handleMessage(msg ChatMessage) {
	r.recent.Add(msg)
	telemetry.CountChatMessage(string(msg.Platform))
	r.publish(Event{Type: EventChatMessage, Payload: msg})
	go r.respond(msg)
}

func (r *Relay) respond(msg ChatMessage) {
	r.mu.Lock()
	auto := r.auto[msg.Platform]
	gate := r.opts.Rand
	rate := r.opts.AutoReplyRate
	r.mu.Unlock()

	if auto && gate() >= rate {
		return
	}

	reply, ok := r.gen.GenerateResponse(context.Background(), msg.Message, msg.Username)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.CallTimeout)
	defer cancel()
	var err error
	switch msg.Platform {
	case PlatformTwitch:
		err = r.twitch.SendMessage(ctx, reply)
	case PlatformYouTube:
		err = r.youtube.SendMessage(ctx, reply)
	}
	if err != nil {
		slog.Warn("reply write-back failed",
			slog.String("platform", string(msg.Platform)), slog.Any("err", err))
		telemetry.CountReplyDeliveryFailure(string(msg.Platform))
		r.publish(Event{Type: EventReplyDeliveryFailed, Payload: ReplyDeliveryFailedPayload{
			Platform: msg.Platform, Message: reply, Reason: err.Error(),
		}})
	}
	telemetry.CountAIResponse(string(msg.Platform))
	r.publish(Event{Type: EventAIResponse, Payload: AIResponsePayload{
		Platform: msg.Platform, Message: reply, Timestamp: time.Now().UTC(),
	}})
}

// Status is the snapshot consumed by /health, /status and connection_status events.
type Status struct {
	TwitchConnected  bool
	YouTubeConnected bool
	GeminiConfigured bool
	TwitchChannel    string
	BotUsername      string
	YouTubeChatID    string
	States           map[Platform]State
	LastErrors       map[Platform]string
	RecentMessages   int
}

// Status returns a point-in-time snapshot of connection state.
func (r *Relay) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make(map[Platform]State, len(r.states))
	for k, v := range r.states {
		states[k] = v
	}
	errs := make(map[Platform]string, len(r.lastErr))
	for k, v := range r.lastErr {
		errs[k] = v
	}
	return Status{
		TwitchConnected:  r.twitch.IsConnected(),
		YouTubeConnected: r.youtube.IsConnected(),
		GeminiConfigured: r.gen.Configured(),
		TwitchChannel:    r.channel,
		BotUsername:      r.opts.BotUsername,
		YouTubeChatID:    r.chatID,
		States:           states,
		LastErrors:       errs,
		RecentMessages:   r.recent.Len(),
	}
}

// Recent returns the newest buffered chat messages, oldest first.
func (r *Relay) Recent() []ChatMessage {
	return r.recent.Messages()
}
