package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/voxdraft/voxdraft/internal/config"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  backend_url: "http://localhost:8000"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.StreamPath != "/ws/stream" {
		t.Errorf("stream_path default = %q", cfg.Server.StreamPath)
	}
	if cfg.Wizard.BaseURL != "http://localhost:8000/gdd" {
		t.Errorf("wizard base_url default = %q", cfg.Wizard.BaseURL)
	}
	if cfg.Wizard.RequestTimeout.Std() != 10*time.Second {
		t.Errorf("request_timeout default = %v", cfg.Wizard.RequestTimeout)
	}
	if cfg.Wizard.FinishTimeout.Std() != 30*time.Second {
		t.Errorf("finish_timeout default = %v", cfg.Wizard.FinishTimeout)
	}
	if cfg.Audio.CaptureChannels != 1 {
		t.Errorf("capture_channels default = %d", cfg.Audio.CaptureChannels)
	}
}

func TestLoadFromReader_DurationStrings(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  backend_url: "http://localhost:8000"
wizard:
  request_timeout: 2s
  finish_timeout: 1m30s
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Wizard.RequestTimeout.Std() != 2*time.Second {
		t.Errorf("request_timeout = %v, want 2s", cfg.Wizard.RequestTimeout)
	}
	if cfg.Wizard.FinishTimeout.Std() != 90*time.Second {
		t.Errorf("finish_timeout = %v, want 1m30s", cfg.Wizard.FinishTimeout)
	}
}

func TestLoadFromReader_InvalidDuration(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  backend_url: "http://localhost:8000"
wizard:
  request_timeout: soon
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  backend_url: "http://localhost:8000"
  listen_addr: ":8080"
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_MissingBackendURL(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`audio: {}`))
	if err == nil {
		t.Fatal("expected error for missing backend_url, got nil")
	}
	if !strings.Contains(err.Error(), "backend_url") {
		t.Errorf("error should mention backend_url, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  backend_url: "http://localhost:8000"
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidate_InvalidChannelCount(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  backend_url: "http://localhost:8000"
audio:
  capture_channels: 6
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for 6-channel capture, got nil")
	}
}

func TestStreamURL_SchemeDerivation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		backend string
		want    string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws/stream"},
		{"https://voxdraft.example", "wss://voxdraft.example/ws/stream"},
	}
	for _, c := range cases {
		cfg := &config.Config{Server: config.ServerConfig{BackendURL: c.backend}}
		if err := config.Validate(cfg); err != nil {
			t.Fatalf("validate %q: %v", c.backend, err)
		}
		got, err := cfg.StreamURL()
		if err != nil {
			t.Fatalf("StreamURL(%q): %v", c.backend, err)
		}
		if got != c.want {
			t.Errorf("StreamURL(%q) = %q, want %q", c.backend, got, c.want)
		}
	}
}
