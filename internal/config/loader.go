package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the known live-provider names. Used by [Validate]
// to reject unrecognised providers early.
var ValidProviderNames = []string{"gemini-live"}

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
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Live.Provider == "" {
		cfg.Live.Provider = "gemini-live"
	}
	if cfg.Session.DefaultVoice == "" {
		cfg.Session.DefaultVoice = "Kore"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	known := false
	for _, name := range ValidProviderNames {
		if cfg.Live.Provider == name {
			known = true
			break
		}
	}
	if !known {
		errs = append(errs, fmt.Errorf("live.provider %q is unknown; valid values: %v", cfg.Live.Provider, ValidProviderNames))
	}
	if cfg.Live.APIKey == "" {
		slog.Warn("live.api_key is empty; sessions will fail to connect")
	}

	if cfg.Audio.CaptureBlock < 0 {
		errs = append(errs, fmt.Errorf("audio.capture_block %d must be >= 0", cfg.Audio.CaptureBlock))
	}

	if cfg.Session.DefaultLanguage != "" && !cfg.Session.AllowsLanguage(cfg.Session.DefaultLanguage) {
		errs = append(errs, fmt.Errorf("session.default_language %q is not in session.languages", cfg.Session.DefaultLanguage))
	}

	if len(cfg.Events.KafkaBrokers) > 0 && cfg.Events.KafkaTopic == "" {
		errs = append(errs, fmt.Errorf("events.kafka_topic is required when events.kafka_brokers is set"))
	}

	return errors.Join(errs...)
}
