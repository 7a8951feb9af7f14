package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the conversation service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	SessionIdleTimeout time.Duration
	HistoryWindow      int

	BrainMode    string
	BrainHTTPURL string
	BrainTimeout time.Duration

	GeminiAPIKey   string
	GeminiBaseURL  string
	GeminiTTSModel string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	SynthTimeout          time.Duration
	DefaultVoice          string
	DefaultSpeaker1       string
	DefaultVoice1         string
	DefaultSpeaker2       string
	DefaultVoice2         string
	LocalTTSCLI           string
	LocalTTSRate          int
	LocalTTSVolume        float64
	AudioChunkBytes       int
	AudioEnabledByDefault bool

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "clara"),
		AllowAnyOrigin:   false,
		BrainMode:        envOrDefault("BRAIN_MODE", "auto"),
		BrainHTTPURL:     envTrimmed("BRAIN_HTTP_URL"),
		GeminiAPIKey:     envTrimmed("GEMINI_API_KEY"),
		GeminiBaseURL:    envOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiTTSModel:   envOrDefault("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		OpenAIAPIKey:     envTrimmed("OPENAI_API_KEY"),
		OpenAIBaseURL:    envTrimmed("OPENAI_BASE_URL"),
		OpenAIModel:      envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		// Kore/Puck are the prebuilt voices the dialog mode shipped with.
		DefaultVoice:          envOrDefault("TTS_DEFAULT_VOICE", "Kore"),
		DefaultSpeaker1:       envOrDefault("TTS_DEFAULT_SPEAKER1", "Speaker1"),
		DefaultVoice1:         envOrDefault("TTS_DEFAULT_SPEAKER1_VOICE", "Kore"),
		DefaultSpeaker2:       envOrDefault("TTS_DEFAULT_SPEAKER2", "Speaker2"),
		DefaultVoice2:         envOrDefault("TTS_DEFAULT_SPEAKER2_VOICE", "Puck"),
		LocalTTSCLI:           envOrDefault("LOCAL_TTS_CLI", "espeak-ng"),
		LocalTTSRate:          150,
		LocalTTSVolume:        0.9,
		AudioChunkBytes:       32 << 10,
		AudioEnabledByDefault: true,
		DatabaseURL:           envTrimmed("DATABASE_URL"),
		ShutdownTimeout:       15 * time.Second,
		SessionIdleTimeout:    30 * time.Minute,
		HistoryWindow:         10,
		BrainTimeout:          60 * time.Second,
		SynthTimeout:          30 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleTimeout, err = durationFromEnv("APP_SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BrainTimeout, err = durationFromEnv("BRAIN_TIMEOUT", cfg.BrainTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthTimeout, err = durationFromEnv("TTS_TIMEOUT", cfg.SynthTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryWindow, err = intFromEnv("CHAT_HISTORY_WINDOW", cfg.HistoryWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.LocalTTSRate, err = intFromEnv("LOCAL_TTS_RATE", cfg.LocalTTSRate)
	if err != nil {
		return Config{}, err
	}
	cfg.LocalTTSVolume, err = floatFromEnv("LOCAL_TTS_VOLUME", cfg.LocalTTSVolume)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioChunkBytes, err = intFromEnv("AUDIO_CHUNK_BYTES", cfg.AudioChunkBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioEnabledByDefault, err = boolFromEnv("AUDIO_ENABLED_BY_DEFAULT", cfg.AudioEnabledByDefault)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionIdleTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_IDLE_TIMEOUT must be at least 5s")
	}
	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("CHAT_HISTORY_WINDOW must be positive")
	}
	if cfg.LocalTTSRate <= 0 {
		return Config{}, fmt.Errorf("LOCAL_TTS_RATE must be positive")
	}
	if cfg.LocalTTSVolume < 0 || cfg.LocalTTSVolume > 1 {
		return Config{}, fmt.Errorf("LOCAL_TTS_VOLUME must be in [0,1]")
	}
	if cfg.AudioChunkBytes <= 0 {
		return Config{}, fmt.Errorf("AUDIO_CHUNK_BYTES must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
