// Package mock provides scriptable live.Dialer and live.Transport
// implementations for tests that exercise the session layer without a real
// remote connection.
package mock

import (
	"context"
	"sync"

	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/live"
)

// Compile-time interface assertions.
var _ live.Dialer = (*Dialer)(nil)
var _ live.Transport = (*Transport)(nil)

// Dialer returns a pre-built Transport (or a scripted error) from Connect.
type Dialer struct {
	// ConnectErr, when non-nil, is returned by Connect.
	ConnectErr error

	mu        sync.Mutex
	transport *Transport
	lastCfg   live.Config
	connects  int
}

// NewDialer creates a Dialer that hands out fresh Transports.
func NewDialer() *Dialer { return &Dialer{} }

// Connect returns a new scripted Transport, recording the config.
func (d *Dialer) Connect(_ context.Context, cfg live.Config) (live.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ConnectErr != nil {
		return nil, d.ConnectErr
	}
	d.connects++
	d.lastCfg = cfg
	d.transport = NewTransport()
	return d.transport, nil
}

// Transport returns the most recently connected Transport, or nil.
func (d *Dialer) Transport() *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport
}

// LastConfig returns the config passed to the most recent Connect.
func (d *Dialer) LastConfig() live.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastCfg
}

// Connects returns how many times Connect succeeded.
func (d *Dialer) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Transport is a scriptable live.Transport. Tests push inbound events with
// [Transport.Emit] and inspect outbound traffic with the Sent accessors.
type Transport struct {
	events chan live.Event

	mu        sync.Mutex
	state     live.State
	sentAudio []audio.Blob
	sentText  []string
	closed    bool

	// SendAudioErr, when non-nil, is returned by SendAudio.
	SendAudioErr error
}

// NewTransport creates a connected scripted Transport.
func NewTransport() *Transport {
	return &Transport{
		events: make(chan live.Event, 64),
		state:  live.StateConnected,
	}
}

// Emit delivers one inbound event to the session layer.
func (t *Transport) Emit(ev live.Event) { t.events <- ev }

// EmitTerminal delivers a terminal event, updates the state accordingly, and
// closes the event channel.
func (t *Transport) EmitTerminal(ev live.Event) {
	t.mu.Lock()
	switch ev.Kind {
	case live.EventError:
		t.state = live.StateErrored
	default:
		t.state = live.StateClosed
	}
	t.mu.Unlock()
	t.events <- ev
	close(t.events)
}

// SendAudio records the outbound frame. Frames are dropped (recorded nowhere)
// once the transport left the connected state, mirroring the real transport.
func (t *Transport) SendAudio(blob audio.Blob) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SendAudioErr != nil {
		return t.SendAudioErr
	}
	if t.state != live.StateConnected {
		return nil
	}
	t.sentAudio = append(t.sentAudio, blob)
	return nil
}

// SendText records the outbound control message.
func (t *Transport) SendText(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sentText = append(t.sentText, text)
	return nil
}

// Events returns the scripted inbound event stream.
func (t *Transport) Events() <-chan live.Event { return t.events }

// State reports the scripted FSM state.
func (t *Transport) State() live.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Close marks the transport closed and closes the event channel if still
// open. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.state == live.StateConnected {
		t.state = live.StateClosed
		close(t.events)
	}
	return nil
}

// SentAudio returns a snapshot of the outbound frames recorded so far.
func (t *Transport) SentAudio() []audio.Blob {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]audio.Blob(nil), t.sentAudio...)
}

// SentText returns a snapshot of the outbound control messages.
func (t *Transport) SentText() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sentText...)
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
