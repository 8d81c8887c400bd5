// Package config provides the configuration schema and loader for the
// voxdraft client.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that unmarshals from YAML either as a
// Go duration string ("10s", "1m30s") or as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("config: invalid duration value %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements [yaml.Marshaler].
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a plain [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogLevel controls log verbosity for the voxdraft client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxdraft.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	Wizard     WizardConfig     `yaml:"wizard"`
	Transcript TranscriptConfig `yaml:"transcript"`
}

// ServerConfig locates the conversational backend and controls logging and
// metrics exposure.
type ServerConfig struct {
	// BackendURL is the backend origin (e.g., "http://localhost:8000").
	// The duplex channel scheme (ws/wss) is derived from this URL's scheme.
	BackendURL string `yaml:"backend_url"`

	// StreamPath is the websocket path on the backend.
	StreamPath string `yaml:"stream_path"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address for the Prometheus scrape endpoint.
	// Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AudioConfig holds microphone capture settings. Captured audio is always
// normalised to the mono 16kHz wire format before framing.
type AudioConfig struct {
	// InputDevice names the capture device ("default" when empty).
	InputDevice string `yaml:"input_device"`

	// CaptureRate is the device sample rate in Hz. 0 means capture directly
	// at the 16kHz wire rate.
	CaptureRate int `yaml:"capture_rate"`

	// CaptureChannels is the device channel count (1 or 2).
	CaptureChannels int `yaml:"capture_channels"`
}

// WizardConfig configures the guided-questionnaire HTTP endpoints.
type WizardConfig struct {
	// BaseURL is the wizard service root (e.g., "http://localhost:8000/gdd").
	// Empty defaults to BackendURL + "/gdd".
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds start/answer/advance/export calls.
	RequestTimeout Duration `yaml:"request_timeout"`

	// FinishTimeout bounds the finish call, which runs the full document
	// pipeline on the backend and is much slower than the other endpoints.
	FinishTimeout Duration `yaml:"finish_timeout"`

	// ExportDir is where exported documents are written. Empty means the
	// current working directory.
	ExportDir string `yaml:"export_dir"`
}

// TranscriptConfig controls local persistence of the conversation log.
type TranscriptConfig struct {
	// Path is the SQLite database file for finalized bubbles.
	// Empty disables persistence.
	Path string `yaml:"path"`
}

// Default timeout values applied by Validate when the config leaves them
// unset. The backend's own wizard HTTP client uses a 10 second timeout, so
// the client matches it.
const (
	DefaultRequestTimeout = Duration(10 * time.Second)
	DefaultFinishTimeout  = Duration(30 * time.Second)
)
