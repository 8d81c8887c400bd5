package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults. It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Server.BackendURL == "" {
		errs = append(errs, errors.New("server.backend_url is required"))
	} else {
		u, err := url.Parse(cfg.Server.BackendURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("server.backend_url: %w", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("server.backend_url scheme %q is invalid; use http or https", u.Scheme))
		}
	}

	if cfg.Server.StreamPath == "" {
		cfg.Server.StreamPath = "/ws/stream"
	} else if !strings.HasPrefix(cfg.Server.StreamPath, "/") {
		errs = append(errs, fmt.Errorf("server.stream_path %q must start with /", cfg.Server.StreamPath))
	}

	switch cfg.Audio.CaptureChannels {
	case 0:
		cfg.Audio.CaptureChannels = 1
	case 1, 2:
	default:
		errs = append(errs, fmt.Errorf("audio.capture_channels %d is invalid; use 1 or 2", cfg.Audio.CaptureChannels))
	}
	if cfg.Audio.CaptureRate < 0 {
		errs = append(errs, fmt.Errorf("audio.capture_rate %d is invalid", cfg.Audio.CaptureRate))
	}

	if cfg.Wizard.BaseURL == "" && cfg.Server.BackendURL != "" {
		cfg.Wizard.BaseURL = strings.TrimRight(cfg.Server.BackendURL, "/") + "/gdd"
	}
	if cfg.Wizard.RequestTimeout < 0 {
		errs = append(errs, errors.New("wizard.request_timeout must not be negative"))
	} else if cfg.Wizard.RequestTimeout == 0 {
		cfg.Wizard.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Wizard.FinishTimeout < 0 {
		errs = append(errs, errors.New("wizard.finish_timeout must not be negative"))
	} else if cfg.Wizard.FinishTimeout == 0 {
		cfg.Wizard.FinishTimeout = DefaultFinishTimeout
	}

	return errors.Join(errs...)
}

// StreamURL derives the duplex channel endpoint from the backend origin:
// http becomes ws, https becomes wss, and the stream path is appended.
func (c *Config) StreamURL() (string, error) {
	u, err := url.Parse(c.Server.BackendURL)
	if err != nil {
		return "", fmt.Errorf("config: backend_url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("config: cannot derive channel scheme from %q", u.Scheme)
	}
	u.Path = c.Server.StreamPath
	return u.String(), nil
}
