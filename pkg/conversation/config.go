package conversation

import (
	"log/slog"
	"time"
)

// Config holds configuration for model session providers.
type Config struct {
	// APIKey is the authentication key for the provider.
	APIKey string

	// Model is the realtime model to use.
	Model string

	// BaseURL overrides the default websocket endpoint.
	BaseURL string

	// Voice is the TTS voice for audio output.
	Voice string

	// TranscriptionModel transcribes customer audio into text events.
	TranscriptionModel string

	// Temperature controls response randomness.
	Temperature float64

	// MaxResponseTokens limits response length.
	MaxResponseTokens int

	// Timeout is the connection handshake timeout.
	Timeout time.Duration

	// ReadTimeout bounds the wait for any server message.
	ReadTimeout time.Duration

	// EventBuffer is the capacity of the event stream buffer.
	EventBuffer int

	// Logger is the structured logger to use.
	Logger *slog.Logger

	// Tools is the list of tools available to the model.
	Tools []Tool

	// TurnDetection configures voice activity detection.
	TurnDetection *TurnDetection
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model:              openAIModel,
		BaseURL:            openAIRealtimeURL,
		Voice:              VoiceShimmer,
		TranscriptionModel: "whisper-1",
		Temperature:        0.8,
		MaxResponseTokens:  4096,
		Timeout:            30 * time.Second,
		ReadTimeout:        5 * time.Minute,
		EventBuffer:        256,
		Logger:             slog.Default(),
		TurnDetection: &TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
		},
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithModel sets the realtime model. Empty keeps the default.
func WithModel(model string) Option {
	return func(c *Config) {
		if model != "" {
			c.Model = model
		}
	}
}

// WithBaseURL sets the websocket endpoint. Empty keeps the default.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		if url != "" {
			c.BaseURL = url
		}
	}
}

// WithVoice sets the TTS voice. Empty keeps the default.
func WithVoice(voice string) Option {
	return func(c *Config) {
		if voice != "" {
			c.Voice = voice
		}
	}
}

// WithTemperature sets the response temperature.
func WithTemperature(temp float64) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithTimeout sets the connection timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithReadTimeout sets how long to wait for a server message.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = d
	}
}

// WithEventBuffer sets the event stream buffer size.
func WithEventBuffer(n int) Option {
	return func(c *Config) {
		c.EventBuffer = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTools sets the available tools.
func WithTools(tools ...Tool) Option {
	return func(c *Config) {
		c.Tools = tools
	}
}

// WithTurnDetection configures voice activity detection.
func WithTurnDetection(td *TurnDetection) Option {
	return func(c *Config) {
		c.TurnDetection = td
	}
}

// OpenAI voices.
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceShimmer = "shimmer"
	VoiceCoral   = "coral"
	VoiceVerse   = "verse"
)
