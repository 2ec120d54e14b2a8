package config

import (
	"errors"
	"fmt"

	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/live"
)

// ErrProviderNotRegistered is returned by [Registry.CreateDialer] when no
// factory is registered for the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// DialerFactory constructs a live.Dialer from a [LiveConfig] block.
type DialerFactory func(cfg LiveConfig) (live.Dialer, error)

// Registry maps live-provider names to their factories. It exists so that
// main.go wires concrete implementations while everything else depends only
// on the [live.Dialer] interface. Not safe for concurrent mutation; register
// everything during startup.
type Registry struct {
	dialers map[string]DialerFactory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{dialers: make(map[string]DialerFactory)}
}

// RegisterDialer wires a factory under name, replacing any previous entry.
func (r *Registry) RegisterDialer(name string, f DialerFactory) {
	r.dialers[name] = f
}

// CreateDialer instantiates the dialer selected by cfg.Provider.
func (r *Registry) CreateDialer(cfg LiveConfig) (live.Dialer, error) {
	f, ok := r.dialers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, cfg.Provider)
	}
	return f(cfg)
}
