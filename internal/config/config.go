// Package config provides the configuration schema, loader, and live-provider
// registry for the translation assistant server.
package config

// LogLevel controls log verbosity for the server.
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

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Live       LiveConfig       `yaml:"live"`
	Audio      AudioConfig      `yaml:"audio"`
	Session    SessionConfig    `yaml:"session"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Events     EventsConfig     `yaml:"events"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the gateway listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// LiveConfig selects and configures the remote streaming provider.
type LiveConfig struct {
	// Provider selects the registered dialer implementation ("gemini-live").
	Provider string `yaml:"provider"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default endpoint. Leave empty to use
	// the built-in default.
	BaseURL string `yaml:"base_url"`
}

// AudioConfig holds capture tuning values. Sample rates are fixed by the
// wire-format contract and are not configurable.
type AudioConfig struct {
	// CaptureBlock is the number of mono samples per dispatched microphone
	// frame. Zero means the capture default (4096).
	CaptureBlock int `yaml:"capture_block"`
}

// SessionConfig holds the translation-session defaults offered to clients.
type SessionConfig struct {
	// DefaultLanguage is the target language preselected for new sessions.
	DefaultLanguage string `yaml:"default_language"`

	// DefaultVoice is the provider voice identifier preselected for new
	// sessions.
	DefaultVoice string `yaml:"default_voice"`

	// Languages is an optional allowlist of target-language labels. Empty
	// means any non-empty label is accepted and forwarded verbatim.
	Languages []string `yaml:"languages"`
}

// TranscriptConfig enables the optional persistent conversation log.
type TranscriptConfig struct {
	// PostgresDSN is the connection string for the transcript store.
	// Empty disables persistence.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EventsConfig enables the optional Kafka transcript publisher.
type EventsConfig struct {
	// KafkaBrokers lists broker addresses. Empty disables publishing.
	KafkaBrokers []string `yaml:"kafka_brokers"`

	// KafkaTopic is the topic finalized entries are written to.
	KafkaTopic string `yaml:"kafka_topic"`
}

// AllowsLanguage reports whether label passes the configured allowlist.
func (s SessionConfig) AllowsLanguage(label string) bool {
	if label == "" {
		return false
	}
	if len(s.Languages) == 0 {
		return true
	}
	for _, l := range s.Languages {
		if l == label {
			return true
		}
	}
	return false
}
