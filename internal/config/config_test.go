package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ROOM_SIGNAL_URL", "ws://localhost:7880/signal")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ParticipantTimeout != DefaultParticipantTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultParticipantTimeout, cfg.ParticipantTimeout)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, cfg.Port)
	}
	if len(cfg.Modalities) != 2 || cfg.Modalities[0] != "audio" || cfg.Modalities[1] != "text" {
		t.Errorf("unexpected modalities %v", cfg.Modalities)
	}
	if cfg.Dispatch != DispatchLog {
		t.Errorf("expected log dispatch, got %s", cfg.Dispatch)
	}
	if cfg.Locale != "en" {
		t.Errorf("expected en locale, got %s", cfg.Locale)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PARTICIPANT_TIMEOUT", "45s")
	t.Setenv("MODALITIES", "text")
	t.Setenv("DISPATCH", "Temporal")
	t.Setenv("ROOMS", "store-1, store-2,,")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ParticipantTimeout != 45*time.Second {
		t.Errorf("expected 45s, got %v", cfg.ParticipantTimeout)
	}
	if len(cfg.Modalities) != 1 || cfg.Modalities[0] != "text" {
		t.Errorf("unexpected modalities %v", cfg.Modalities)
	}
	if cfg.Dispatch != DispatchTemporal {
		t.Errorf("expected temporal dispatch, got %s", cfg.Dispatch)
	}
	if len(cfg.Rooms) != 2 || cfg.Rooms[1] != "store-2" {
		t.Errorf("unexpected rooms %v", cfg.Rooms)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			OpenAIKey:          "k",
			RoomSignalURL:      "ws://x",
			ParticipantTimeout: time.Minute,
			Modalities:         []string{"audio"},
			Dispatch:           DispatchLog,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing key", func(c *Config) { c.OpenAIKey = "" }, true},
		{"missing signal url", func(c *Config) { c.RoomSignalURL = "" }, true},
		{"zero timeout", func(c *Config) { c.ParticipantTimeout = 0 }, true},
		{"video modality", func(c *Config) { c.Modalities = []string{"video"} }, true},
		{"webhook without url", func(c *Config) { c.Dispatch = DispatchWebhook }, true},
		{"webhook with url", func(c *Config) {
			c.Dispatch = DispatchWebhook
			c.WebhookURL = "http://kitchen/orders"
		}, false},
		{"gdocs without document", func(c *Config) {
			c.Dispatch = DispatchGDocs
			c.GoogleClientID, c.GoogleClientSecret = "id", "secret"
		}, true},
		{"gdocs without credentials", func(c *Config) {
			c.Dispatch = DispatchGDocs
			c.GoogleDocID = "doc-1"
		}, true},
		{"gdocs", func(c *Config) {
			c.Dispatch = DispatchGDocs
			c.GoogleDocID = "doc-1"
			c.GoogleClientID, c.GoogleClientSecret = "id", "secret"
		}, false},
		{"unknown dispatch", func(c *Config) { c.Dispatch = "fax" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBadDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("PARTICIPANT_TIMEOUT", "soon")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestFromEnvGoogleDocs(t *testing.T) {
	setRequired(t)
	t.Setenv("DISPATCH", "gdocs")
	t.Setenv("GDOCS_DOCUMENT_ID", "doc-1")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("GOOGLE_TOKEN_PATH", "/tmp/token.json")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Dispatch != DispatchGDocs || cfg.GoogleDocID != "doc-1" || cfg.GoogleTokenPath != "/tmp/token.json" {
		t.Errorf("unexpected config %+v", cfg)
	}
}
