package relay

import "time"

// Platform identifies a chat source.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
)

// Valid reports whether p names a known platform.
func (p Platform) Valid() bool {
	return p == PlatformTwitch || p == PlatformYouTube
}

// Event is the tagged union sent to dashboard clients over the WebSocket.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Event types, server to client.
const (
	EventConnected           = "connected"
	EventConnectionStatus    = "connection_status"
	EventTwitchConnected     = "twitch_connected"
	EventTwitchDisconnected  = "twitch_disconnected"
	EventYouTubeConnected    = "youtube_connected"
	EventYouTubeDisconnected = "youtube_disconnected"
	EventChatMessage         = "chat_message"
	EventAIResponse          = "ai_response"
	EventPollCreated         = "poll_created"
	EventReplyDeliveryFailed = "reply_delivery_failed"
	EventError               = "error"
	EventPong                = "pong"
)

// ChatMessage is the normalized inbound message shape produced by both adapters.
type ChatMessage struct {
	Platform  Platform  `json:"platform"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Poll is the result of a Twitch poll creation.
type Poll struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Choices  []PollChoice `json:"choices"`
	Status   string       `json:"status"`
	Duration int          `json:"duration"`
}

type PollChoice struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Payload shapes for the events above.

type ConnectedPayload struct {
	Message string `json:"message"`
}

type ConnectionStatusPayload struct {
	Twitch  bool `json:"twitch"`
	YouTube bool `json:"youtube"`
	Gemini  bool `json:"gemini"`
}

type TwitchConnectedPayload struct {
	Channel string `json:"channel"`
	Status  string `json:"status"`
}

type YouTubeConnectedPayload struct {
	LiveChatID string `json:"liveChatId"`
	Status     string `json:"status"`
}

type DisconnectedPayload struct {
	Status string `json:"status"`
}

type AIResponsePayload struct {
	Platform  Platform  `json:"platform"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type PollCreatedPayload struct {
	Platform Platform `json:"platform"`
	Poll     *Poll    `json:"poll"`
}

type ReplyDeliveryFailedPayload struct {
	Platform Platform `json:"platform"`
	Message  string   `json:"message"`
	Reason   string   `json:"reason"`
}

type ErrorPayload struct {
	Platform Platform `json:"platform,omitempty"`
	Message  string   `json:"message"`
}

// Sink receives every event the relay emits. The WebSocket hub implements it.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Publish(ev Event) { f(ev) }
