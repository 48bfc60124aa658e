// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Missing optional variables disable features (e.g., no GEMINI_API_KEY means no AI replies).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// HTTP
	HTTPAddr string

	// Twitch
	TwitchChannel     string
	TwitchBotUsername string
	TwitchAccessToken string
	TwitchClientID    string

	// YouTube
	YouTubeLiveChatID   string
	YouTubeAPIKey       string
	YouTubeAccessToken  string
	YouTubePollInterval time.Duration

	// Gemini
	GeminiAPIKey string
	GeminiModel  string

	// Sampling gates. ResponseRate is the generator's internal gate;
	// AutoReplyRate is the extra gate applied only to auto-connected platforms.
	ResponseRate  float64
	AutoReplyRate float64

	// Outbound REST calls (Helix, YouTube insert, Gemini) share one timeout.
	PlatformHTTPTimeout time.Duration
}

// Load reads environment variables and applies defaults. It doesn't fail if platform
// creds are missing; use ValidateTwitchReady/ValidateYouTubeReady when a feature
// requires them.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.TwitchChannel = os.Getenv("TWITCH_CHANNEL")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchAccessToken = os.Getenv("TWITCH_ACCESS_TOKEN")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	if cfg.TwitchBotUsername == "" {
		// Fall back to the channel login; good enough for a single-channel bot.
		cfg.TwitchBotUsername = cfg.TwitchChannel
	}

	cfg.YouTubeLiveChatID = os.Getenv("YOUTUBE_LIVE_CHAT_ID")
	cfg.YouTubeAPIKey = os.Getenv("YOUTUBE_API_KEY")
	cfg.YouTubeAccessToken = os.Getenv("YOUTUBE_ACCESS_TOKEN")
	cfg.YouTubePollInterval = 5 * time.Second
	if v := os.Getenv("YOUTUBE_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid YOUTUBE_POLL_INTERVAL: %q", v)
		}
		cfg.YouTubePollInterval = d
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = os.Getenv("GEMINI_MODEL")
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-2.0-flash"
	}

	var err error
	cfg.ResponseRate, err = loadRate("RESPONSE_RATE", 0.3)
	if err != nil {
		return nil, err
	}
	cfg.AutoReplyRate, err = loadRate("AUTO_REPLY_RATE", 0.3)
	if err != nil {
		return nil, err
	}

	cfg.PlatformHTTPTimeout = 10 * time.Second
	if v := os.Getenv("PLATFORM_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid PLATFORM_HTTP_TIMEOUT: %q", v)
		}
		cfg.PlatformHTTPTimeout = d
	}

	return cfg, nil
}

func loadRate(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, fmt.Errorf("invalid %s (want 0..1): %q", key, v)
	}
	return f, nil
}

// ValidateTwitchReady checks required fields for auto-connecting Twitch chat at startup.
func (c *Config) ValidateTwitchReady() error {
	if c.TwitchChannel == "" || c.TwitchAccessToken == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL, TWITCH_ACCESS_TOKEN")
	}
	return nil
}

// ValidateYouTubeReady checks required fields for auto-connecting YouTube live chat at startup.
func (c *Config) ValidateYouTubeReady() error {
	if c.YouTubeLiveChatID == "" || (c.YouTubeAPIKey == "" && c.YouTubeAccessToken == "") {
		return fmt.Errorf("missing youtube env: require YOUTUBE_LIVE_CHAT_ID and one of YOUTUBE_API_KEY, YOUTUBE_ACCESS_TOKEN")
	}
	return nil
}
