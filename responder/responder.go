// Package responder wraps the single Gemini call that turns an inbound chat
// message into an optional short persona reply. It is a best-effort function:
// a missing key, a losing roll of the sampling gate, or any model failure all
// come back as "no reply", never as an error the relay has to handle.
package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/MiChaelinzo/ai-stream-companion-sub000/telemetry"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Persona is the fixed character embedded in every prompt.
type Persona struct {
	Name      string
	Bio       string
	Tone      string
	Interests []string
}

// DefaultPersona is the demo streamer character.
func DefaultPersona() Persona {
	return Persona{
		Name:      "Aiko",
		Bio:       "a cheerful virtual streamer who hangs out with chat while gaming",
		Tone:      "playful, warm, a little mischievous",
		Interests: []string{"retro games", "drawing", "lo-fi music", "spicy food"},
	}
}

// Responder holds the model credential and the internal sampling gate.
type Responder struct {
	apiKey  string
	model   string
	baseURL string
	rate    float64
	persona Persona
	client  *http.Client
	randFn  func() float64
}

// Option configures a Responder.
type Option func(*Responder)

// WithBaseURL overrides the API host (tests).
func WithBaseURL(u string) Option { return func(r *Responder) { r.baseURL = u } }

// WithRand overrides the gate's random source (tests).
func WithRand(fn func() float64) Option { return func(r *Responder) { r.randFn = fn } }

// WithPersona overrides the default persona.
func WithPersona(p Persona) Option { return func(r *Responder) { r.persona = p } }

// WithHTTPTimeout bounds the model call.
func WithHTTPTimeout(d time.Duration) Option {
	return func(r *Responder) { r.client = &http.Client{Timeout: d} }
}

// New builds a Responder. An empty apiKey is valid and yields a responder that
// silently never replies. rate is the probability a message reaches the model.
func New(apiKey, model string, rate float64, opts ...Option) *Responder {
	r := &Responder{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		rate:    rate,
		persona: DefaultPersona(),
		client:  &http.Client{Timeout: 30 * time.Second},
		randFn:  rand.Float64,
	}
	if r.model == "" {
		r.model = "gemini-2.0-flash"
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Configured reports whether a model credential is present.
func (r *Responder) Configured() bool {
	return r.apiKey != ""
}

// GenerateResponse returns a short reply for the message, or ok=false when no
// reply should be sent: unconfigured credential, sampling gate skipped, model
// failure, or an empty completion.
func (r *Responder) GenerateResponse(ctx context.Context, message, username string) (string, bool) {
	if r.apiKey == "" {
		return "", false
	}
	if r.randFn() >= r.rate {
		telemetry.CountGateSkip()
		return "", false
	}

	telemetry.CountModelCall()
	ctx, span := telemetry.StartSpan(ctx, "responder", "model.generate")
	defer span.End()
	start := time.Now()
	reply, err := r.call(ctx, r.prompt(message, username))
	telemetry.ObserveModelDuration(time.Since(start))
	if err != nil {
		telemetry.CountModelError()
		telemetry.RecordError(span, err)
		slog.Warn("model call failed", slog.String("category", categorize(err)), slog.Any("err", err))
		return "", false
	}
	telemetry.SetSpanSuccess(span)
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", false
	}
	return reply, true
}

func (r *Responder) prompt(message, username string) string {
	return fmt.Sprintf(
		"You are %s, %s. Your tone is %s and you love %s.\n"+
			"A viewer named %s just said in chat: %q\n"+
			"Reply in character with 1-3 short sentences. Do not use markdown.",
		r.persona.Name, r.persona.Bio, r.persona.Tone,
		strings.Join(r.persona.Interests, ", "),
		username, message,
	)
}

func (r *Responder) call(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": 150,
			"temperature":     0.8,
		},
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", r.baseURL, r.model, r.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var raw struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(raw.Candidates) == 0 {
		return "", nil
	}
	var parts []string
	for _, p := range raw.Candidates[0].Content.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// categorize gives the log line a hint about what class of model failure this
// was, without any structured error taxonomy on the wire.
func categorize(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "http 400"), strings.Contains(msg, "http 401"), strings.Contains(msg, "http 403"), strings.Contains(msg, "api key"):
		return "invalid_credential"
	case strings.Contains(msg, "http 429"), strings.Contains(msg, "quota"), strings.Contains(msg, "resource_exhausted"):
		return "quota_exceeded"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"), strings.Contains(msg, "connection"):
		return "network"
	default:
		return "model_error"
	}
}
