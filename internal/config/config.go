// Package config provides the configuration schema and loader for the
// Pronunex capture engine.
package config

// LogLevel controls log verbosity for the capture server.
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

// DefaultMaxDurationSeconds bounds a recording attempt when the capture
// block does not configure a maximum.
const DefaultMaxDurationSeconds = 30

// maxDurationCeilingSeconds is the largest configurable attempt length.
// Pronunciation clips are short; anything longer is a configuration mistake.
const maxDurationCeilingSeconds = 600

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Capture CaptureConfig `yaml:"capture"`
	Upload  UploadConfig  `yaml:"upload"`
}

// ServerConfig holds network and logging settings for the engine's HTTP
// surface (UI adapter, health, metrics).
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// CaptureConfig holds the recording-session settings.
type CaptureConfig struct {
	// Origin is the page origin used by the secure-context probe. Leave
	// empty when the engine runs as a native host.
	Origin string `yaml:"origin"`

	// MaxDurationSeconds is the auto-stop deadline for one attempt.
	// Defaults to [DefaultMaxDurationSeconds] when zero.
	MaxDurationSeconds int `yaml:"max_duration_seconds"`

	// PreferredFormats is the encoding preference order as MIME-style
	// identifiers. Empty means the built-in default order.
	PreferredFormats []string `yaml:"preferred_formats"`

	// Constraints is the audio processing requested from the device.
	Constraints ConstraintsConfig `yaml:"constraints"`
}

// ConstraintsConfig mirrors the device constraints requested at stream
// acquisition. Nil booleans mean "use the engine defaults" (both on).
type ConstraintsConfig struct {
	EchoCancellation *bool `yaml:"echo_cancellation"`
	NoiseSuppression *bool `yaml:"noise_suppression"`
	SampleRate       int   `yaml:"sample_rate"`
}

// UploadConfig configures the external submit collaborator that receives
// finished artifacts for assessment. An empty BaseURL disables submission.
type UploadConfig struct {
	// BaseURL is the assessment backend root (e.g.,
	// "https://api.pronunex.example").
	BaseURL string `yaml:"base_url"`

	// AuthToken is sent as a bearer token when non-empty.
	AuthToken string `yaml:"auth_token"`

	// TimeoutSeconds bounds one submission round trip. Defaults to 30.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}
