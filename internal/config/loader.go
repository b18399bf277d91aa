package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"
)

// knownFormats lists the format identifiers the engine's adapters can
// produce. Used by [Validate] to warn about unrecognised entries.
var knownFormats = map[string]bool{
	string(capture.FormatOpus):    true,
	string(capture.FormatOggOpus): true,
	string(capture.FormatFLAC):    true,
	string(capture.FormatWAV):     true,
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
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

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Capture
	if cfg.Capture.MaxDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("capture.max_duration_seconds %d must not be negative", cfg.Capture.MaxDurationSeconds))
	}
	if cfg.Capture.MaxDurationSeconds > maxDurationCeilingSeconds {
		errs = append(errs, fmt.Errorf("capture.max_duration_seconds %d exceeds the %d second ceiling", cfg.Capture.MaxDurationSeconds, maxDurationCeilingSeconds))
	}
	if cfg.Capture.Constraints.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.constraints.sample_rate %d must not be negative", cfg.Capture.Constraints.SampleRate))
	}
	if cfg.Capture.Origin != "" {
		if _, err := url.Parse(cfg.Capture.Origin); err != nil {
			errs = append(errs, fmt.Errorf("capture.origin %q is not a valid URL: %w", cfg.Capture.Origin, err))
		}
	}
	for i, f := range cfg.Capture.PreferredFormats {
		if !knownFormats[f] {
			slog.Warn("unrecognised preferred format; no adapter will be able to negotiate it",
				"index", i, "format", f)
		}
	}

	// Upload
	if cfg.Upload.BaseURL != "" {
		u, err := url.Parse(cfg.Upload.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("upload.base_url %q is not an absolute URL", cfg.Upload.BaseURL))
		}
	}
	if cfg.Upload.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("upload.timeout_seconds %d must not be negative", cfg.Upload.TimeoutSeconds))
	}
	if cfg.Upload.AuthToken != "" && cfg.Upload.BaseURL == "" {
		slog.Warn("upload.auth_token is set but upload.base_url is empty; submission is disabled")
	}

	return errors.Join(errs...)
}

// Formats converts the configured preference list to capture formats,
// falling back to the engine default order when the list is empty.
func (c CaptureConfig) Formats() []capture.Format {
	if len(c.PreferredFormats) == 0 {
		return capture.DefaultFormats()
	}
	out := make([]capture.Format, len(c.PreferredFormats))
	for i, f := range c.PreferredFormats {
		out[i] = capture.Format(f)
	}
	return out
}

// DeviceConstraints converts the configured constraint block to capture
// constraints, applying engine defaults for unset fields.
func (c CaptureConfig) DeviceConstraints() capture.Constraints {
	out := capture.DefaultConstraints()
	if c.Constraints.EchoCancellation != nil {
		out.EchoCancellation = *c.Constraints.EchoCancellation
	}
	if c.Constraints.NoiseSuppression != nil {
		out.NoiseSuppression = *c.Constraints.NoiseSuppression
	}
	if c.Constraints.SampleRate > 0 {
		out.SampleRate = c.Constraints.SampleRate
	}
	return out
}

// MaxDuration returns the configured attempt limit in seconds, defaulted.
func (c CaptureConfig) MaxDuration() int {
	if c.MaxDurationSeconds == 0 {
		return DefaultMaxDurationSeconds
	}
	return c.MaxDurationSeconds
}
