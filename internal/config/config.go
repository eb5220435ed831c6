// Package config loads process configuration for go-fivestars commands.
// Values come from the environment; a .env.local file is read first if present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultPort               = 8080
	DefaultParticipantTimeout = 2 * time.Minute
	DefaultLocale             = "en"
	DefaultDispatch           = "log"
	DefaultTemporalHost       = "localhost:7233"
	DefaultTemporalNamespace  = "default"
	DefaultOrderTaskQueue     = "order-task-queue"
	DefaultEnvFile            = ".env.local"
)

// Dispatch sink names.
const (
	DispatchLog      = "log"
	DispatchWebhook  = "webhook"
	DispatchTemporal = "temporal"
	DispatchGDocs    = "gdocs"
)

// Config is the full process configuration.
type Config struct {
	// Model session
	OpenAIKey   string
	OpenAIModel string
	OpenAIURL   string
	OpenAIVoice string

	// Room transport
	RoomSignalURL string
	RoomToken     string
	Rooms         []string

	ParticipantTimeout time.Duration
	Modalities         []string
	Locale             string

	// Fulfillment
	Dispatch          string
	WebhookURL        string
	TemporalHost      string
	TemporalNamespace string
	OrderTaskQueue    string

	// Google Docs order log
	GoogleClientID     string
	GoogleClientSecret string
	GoogleTokenPath    string
	GoogleDocID        string

	Port     int
	LogLevel string
}

// Load reads the env file (missing files are ignored) and then the
// environment into a Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        os.Getenv("OPENAI_MODEL"),
		OpenAIURL:          os.Getenv("OPENAI_REALTIME_URL"),
		OpenAIVoice:        os.Getenv("OPENAI_VOICE"),
		RoomSignalURL:      os.Getenv("ROOM_SIGNAL_URL"),
		RoomToken:          os.Getenv("ROOM_TOKEN"),
		Rooms:              List(os.Getenv("ROOMS")),
		Locale:             String("AGENT_LOCALE", DefaultLocale),
		Dispatch:           strings.ToLower(String("DISPATCH", DefaultDispatch)),
		WebhookURL:         os.Getenv("DISPATCH_WEBHOOK_URL"),
		TemporalHost:       String("TEMPORAL_HOST", DefaultTemporalHost),
		TemporalNamespace:  String("TEMPORAL_NAMESPACE", DefaultTemporalNamespace),
		OrderTaskQueue:     String("ORDER_TASK_QUEUE", DefaultOrderTaskQueue),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleTokenPath:    os.Getenv("GOOGLE_TOKEN_PATH"),
		GoogleDocID:        os.Getenv("GDOCS_DOCUMENT_ID"),
		LogLevel:           String("LOG_LEVEL", "info"),
	}

	cfg.Modalities = List(String("MODALITIES", "audio,text"))

	var err error
	if cfg.ParticipantTimeout, err = Duration("PARTICIPANT_TIMEOUT", DefaultParticipantTimeout); err != nil {
		return nil, err
	}
	if cfg.Port, err = Int("PORT", DefaultPort); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Validate checks required fields and option values.
func (c *Config) Validate() error {
	if c.OpenAIKey == "" {
		return errors.New("config: OPENAI_API_KEY is required")
	}
	if c.RoomSignalURL == "" {
		return errors.New("config: ROOM_SIGNAL_URL is required")
	}
	if c.ParticipantTimeout <= 0 {
		return errors.New("config: PARTICIPANT_TIMEOUT must be positive")
	}
	if len(c.Modalities) == 0 {
		return errors.New("config: MODALITIES must list at least one modality")
	}
	for _, m := range c.Modalities {
		if m != "audio" && m != "text" {
			return fmt.Errorf("config: unknown modality %q", m)
		}
	}
	switch c.Dispatch {
	case DispatchLog, DispatchTemporal:
	case DispatchWebhook:
		if c.WebhookURL == "" {
			return errors.New("config: DISPATCH_WEBHOOK_URL is required for webhook dispatch")
		}
	case DispatchGDocs:
		if c.GoogleDocID == "" {
			return errors.New("config: GDOCS_DOCUMENT_ID is required for gdocs dispatch")
		}
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
			return errors.New("config: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required for gdocs dispatch")
		}
	default:
		return fmt.Errorf("config: unknown DISPATCH %q", c.Dispatch)
	}
	return nil
}

// String returns the env var or a fallback if unset.
func String(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Int parses an integer env var.
func Int(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

// Duration parses a Go duration env var ("90s", "2m").
func Duration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

// List splits a comma-separated value, dropping blanks.
func List(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
