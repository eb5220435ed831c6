package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-fivestars/pkg/catalog"
	"github.com/teslashibe/go-fivestars/pkg/conversation"
	"github.com/teslashibe/go-fivestars/pkg/order"
)

// Default texts pushed into the model session.
const (
	DefaultKickoff = "Please begin the interaction with the user in a manner consistent with your instructions."
	DefaultGoodbye = "The call has to end now because of a technical problem. Apologize briefly, thank the customer and say goodbye. Do not ask any questions."
)

// Config configures an Orchestrator.
type Config struct {
	// Room is the room to join.
	Room string

	// ParticipantTimeout bounds the wait for the customer to join.
	ParticipantTimeout time.Duration

	// Modalities enabled on the model session.
	Modalities []conversation.Modality

	// Locale of the behavioral rules in the instruction.
	Locale catalog.Locale

	// Policy decides when the order is complete. Nil uses DefaultPolicy.
	Policy CompletionPolicy

	// SubmitTool is named in the instruction so the model calls it once the
	// order is confirmed. Empty leaves the tool out of the instruction.
	SubmitTool string

	// Kickoff is sent after the model session opens.
	Kickoff string

	// Goodbye is sent before teardown when the session fails.
	Goodbye string

	// GoodbyeTimeout bounds sending the goodbye message.
	GoodbyeTimeout time.Duration

	// Linger keeps relaying agent audio after the session ends so the
	// customer hears the last response.
	Linger time.Duration

	// Observer receives lifecycle updates. It must not block.
	Observer Observer

	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ParticipantTimeout: 2 * time.Minute,
		Modalities:         []conversation.Modality{conversation.ModalityAudio, conversation.ModalityText},
		Locale:             catalog.LocaleEnglish,
		SubmitTool:         order.SubmitToolName,
		Kickoff:            DefaultKickoff,
		Goodbye:            DefaultGoodbye,
		GoodbyeTimeout:     3 * time.Second,
		Linger:             4 * time.Second,
		Logger:             slog.Default(),
	}
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Config)

// WithRoom sets the room to join.
func WithRoom(room string) Option {
	return func(c *Config) { c.Room = room }
}

// WithParticipantTimeout sets how long to wait for the customer.
func WithParticipantTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ParticipantTimeout = d
		}
	}
}

// WithModalities sets the model output modalities.
func WithModalities(m ...conversation.Modality) Option {
	return func(c *Config) {
		if len(m) > 0 {
			c.Modalities = m
		}
	}
}

// WithLocale sets the instruction locale.
func WithLocale(l catalog.Locale) Option {
	return func(c *Config) { c.Locale = l }
}

// WithPolicy replaces the completion policy.
func WithPolicy(p CompletionPolicy) Option {
	return func(c *Config) { c.Policy = p }
}

// WithSubmitTool sets the tool named in the instruction.
func WithSubmitTool(name string) Option {
	return func(c *Config) { c.SubmitTool = name }
}

// WithKickoff replaces the kickoff message.
func WithKickoff(text string) Option {
	return func(c *Config) { c.Kickoff = text }
}

// WithGoodbye replaces the goodbye message.
func WithGoodbye(text string) Option {
	return func(c *Config) { c.Goodbye = text }
}

// WithLinger sets how long agent audio is relayed after the session ends.
func WithLinger(d time.Duration) Option {
	return func(c *Config) { c.Linger = d }
}

// WithObserver sets the update observer.
func WithObserver(fn Observer) Option {
	return func(c *Config) { c.Observer = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Room == "" {
		return errors.New("session: room is required")
	}
	if c.ParticipantTimeout <= 0 {
		return errors.New("session: participant timeout must be positive")
	}
	if len(c.Modalities) == 0 {
		return conversation.ErrNoModalities
	}
	if c.Kickoff == "" {
		return errors.New("session: kickoff message is required")
	}
	return nil
}
