// Package live defines the abstraction over the bidirectional remote
// streaming connection that carries the translation session: connect, send
// audio frames, send text control messages, receive structured server
// events, close.
//
// The remote service's callback style is modelled as an explicit finite state
// machine with typed event kinds, so the session core stays decoupled from
// any particular callback-registration mechanism:
//
//	idle → connecting → connected → {closed, errored}
//
// connected → closed on explicit close or a remote close event;
// connected → errored on a transport-level error. There is no automatic
// reconnect — any reconnection is a fresh Connect initiated by the caller.
//
// Implementations must be safe for concurrent use.
package live

import (
	"context"

	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio"
)

// State is the transport connection state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateClosed
	StateErrored
)

// String returns the lower-case state name used in logs and status payloads.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// EventKind classifies inbound events routed to the session layer.
type EventKind int

const (
	// EventInputTranscription carries partial transcription text of the
	// user's speech. Appended to the input transcript buffer.
	EventInputTranscription EventKind = iota

	// EventOutputTranscription carries partial transcription text of the
	// model's synthesized speech. Appended to the output transcript buffer.
	EventOutputTranscription

	// EventTurnComplete signals the end of one utterance-and-response
	// exchange; the session flushes its transcript buffers.
	EventTurnComplete

	// EventAudio carries a decoded inline audio payload (s16le PCM at the
	// playback rate) for the playback scheduler.
	EventAudio

	// EventInterrupted signals that the remote model detected the user
	// talking over it; all pending playback must be cancelled.
	EventInterrupted

	// EventError reports a transport-level error. The transport has
	// transitioned to StateErrored and will emit no further events.
	EventError

	// EventClosed reports that the far end closed the session, normally or
	// abnormally. It triggers the same teardown path as a manual stop.
	EventClosed
)

// Event is one structured inbound event. Exactly the fields relevant to Kind
// are populated.
type Event struct {
	Kind  EventKind
	Text  string
	Audio []byte
	Err   error
}

// Config is the initial configuration for a session.
type Config struct {
	// Instructions is the system-level prompt forwarded to the model. The
	// target-language selection is carried here as a plain instruction
	// string — the core does no language management beyond pass-through.
	Instructions string

	// Voice is the opaque provider voice identifier for synthesized speech.
	Voice string

	// InputSampleRate is the rate in Hz declared for outbound audio.
	// Zero means [audio.CaptureRate].
	InputSampleRate int
}

// Transport is an open bidirectional session.
type Transport interface {
	// SendAudio delivers one encoded microphone frame. Sending is
	// fire-and-forget: when the connection is not (or no longer) ready the
	// frame is silently dropped and nil is returned — acceptable loss, no
	// backpressure. A non-nil error indicates a write failure on an
	// established connection.
	SendAudio(blob audio.Blob) error

	// SendText forwards a plain text control message to the model, e.g. the
	// user's language choice as an instruction string.
	SendText(text string) error

	// Events returns the inbound event stream. The channel is closed after a
	// terminal event (EventError or EventClosed) or after Close. The session
	// layer is the single consumer.
	Events() <-chan Event

	// State reports the current FSM state.
	State() State

	// Close terminates the session and releases the connection. Idempotent.
	Close() error
}

// Dialer establishes sessions against a remote streaming endpoint.
type Dialer interface {
	// Connect performs the handshake and returns a Transport in
	// StateConnected. A handshake failure leaves nothing to clean up; the
	// caller may retry manually with a fresh Connect.
	Connect(ctx context.Context, cfg Config) (Transport, error)
}
