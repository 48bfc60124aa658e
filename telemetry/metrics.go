// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ChatMessages          *prometheus.CounterVec
	AIResponses           *prometheus.CounterVec
	ReplyDeliveryFailures *prometheus.CounterVec
	BroadcastEvents       prometheus.Counter
	YouTubePollFailures   prometheus.Counter
	ModelCalls            prometheus.Counter
	ModelErrors           prometheus.Counter
	GateSkips             prometheus.Counter

	// Histograms (seconds)
	ModelCallDuration prometheus.Observer

	// Gauges
	ConnectedClientsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChatMessages = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_chat_messages_total", Help: "Inbound chat messages by platform"}, []string{"platform"})
		AIResponses = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_ai_responses_total", Help: "Generated AI replies by platform"}, []string{"platform"})
		ReplyDeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_reply_delivery_failures_total", Help: "Replies that failed to post back to the source platform"}, []string{"platform"})
		BroadcastEvents = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_broadcast_events_total", Help: "Events fanned out to dashboard clients"})
		YouTubePollFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_youtube_poll_failures_total", Help: "Failed YouTube live chat poll cycles"})
		ModelCalls = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_model_calls_total", Help: "Calls that passed the sampling gate and reached the model"})
		ModelErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_model_errors_total", Help: "Model calls that failed"})
		GateSkips = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_gate_skips_total", Help: "Messages suppressed by the sampling gate"})
		ModelCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_model_call_duration_seconds", Help: "Model call duration seconds", Buckets: prometheus.DefBuckets})
		ConnectedClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_connected_clients", Help: "Currently connected dashboard WebSocket clients"})
	})
}

// The helpers below are nil-safe so code paths work in tests without Init.

func CountChatMessage(platform string) {
	if ChatMessages != nil {
		ChatMessages.WithLabelValues(platform).Inc()
	}
}

func CountAIResponse(platform string) {
	if AIResponses != nil {
		AIResponses.WithLabelValues(platform).Inc()
	}
}

func CountReplyDeliveryFailure(platform string) {
	if ReplyDeliveryFailures != nil {
		ReplyDeliveryFailures.WithLabelValues(platform).Inc()
	}
}

func CountBroadcast() {
	if BroadcastEvents != nil {
		BroadcastEvents.Inc()
	}
}

func CountYouTubePollFailure() {
	if YouTubePollFailures != nil {
		YouTubePollFailures.Inc()
	}
}

func CountModelCall() {
	if ModelCalls != nil {
		ModelCalls.Inc()
	}
}

func CountModelError() {
	if ModelErrors != nil {
		ModelErrors.Inc()
	}
}

func CountGateSkip() {
	if GateSkips != nil {
		GateSkips.Inc()
	}
}

func ObserveModelDuration(d time.Duration) {
	if ModelCallDuration != nil {
		ModelCallDuration.Observe(d.Seconds())
	}
}

func SetConnectedClients(n int) {
	if ConnectedClientsGauge != nil {
		ConnectedClientsGauge.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
