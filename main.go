// Command companion is the backend for the AI streamer companion dashboard.
// It:
//   - Loads configuration and initializes structured logging.
//   - Wires the Twitch and YouTube chat adapters, the Gemini responder, and
//     the relay core that fans every event out to dashboard WebSocket clients.
//   - Auto-connects platforms whose credentials are present in the environment.
//   - Exposes an HTTP server with /health, /status, /metrics, and /ws.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MiChaelinzo/ai-stream-companion-sub000/config"
	"github.com/MiChaelinzo/ai-stream-companion-sub000/relay"
	"github.com/MiChaelinzo/ai-stream-companion-sub000/responder"
	"github.com/MiChaelinzo/ai-stream-companion-sub000/server"
	"github.com/MiChaelinzo/ai-stream-companion-sub000/telemetry"
	"github.com/MiChaelinzo/ai-stream-companion-sub000/twitch"
	"github.com/MiChaelinzo/ai-stream-companion-sub000/youtube"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("companion-relay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Collaborators
	tw := twitch.New()
	tw.BotUsername = cfg.TwitchBotUsername
	tw.HTTPTimeout = cfg.PlatformHTTPTimeout

	yt := youtube.New()
	yt.OAuthToken = cfg.YouTubeAccessToken
	yt.PollInterval = cfg.YouTubePollInterval
	yt.HTTPTimeout = cfg.PlatformHTTPTimeout

	gen := responder.New(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.ResponseRate,
		responder.WithHTTPTimeout(30*time.Second))
	if gen.Configured() {
		slog.Info("responder configured", slog.String("model", cfg.GeminiModel))
	} else {
		slog.Info("no GEMINI_API_KEY; AI replies disabled")
	}

	r := relay.New(tw, yt, gen, relay.Options{
		AutoReplyRate: cfg.AutoReplyRate,
		CallTimeout:   cfg.PlatformHTTPTimeout,
		BotUsername:   cfg.TwitchBotUsername,
	})
	hub := server.NewHub()
	r.SetSink(hub)

	// Auto-connect platforms whose creds are present, before client traffic.
	if err := cfg.ValidateTwitchReady(); err == nil {
		if err := r.AutoConnectTwitch(ctx, cfg.TwitchChannel, cfg.TwitchAccessToken, cfg.TwitchClientID); err != nil {
			slog.Warn("twitch auto-connect failed", slog.Any("err", err))
		}
	} else {
		slog.Info("twitch auto-connect skipped", slog.Any("reason", err))
	}
	if err := cfg.ValidateYouTubeReady(); err == nil {
		if err := r.AutoConnectYouTube(ctx, cfg.YouTubeLiveChatID, cfg.YouTubeAPIKey); err != nil {
			slog.Warn("youtube auto-connect failed", slog.Any("err", err))
		}
	} else {
		slog.Info("youtube auto-connect skipped", slog.Any("reason", err))
	}

	// HTTP server (health/status/metrics/ws)
	go func() {
		if err := server.Start(ctx, r, hub, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	r.DisconnectTwitch()
	r.DisconnectYouTube()
	hub.Stop()
}
