package gateway

import "github.com/Twaha07/voice-interactive-translation-assistant/internal/transcript"

// The browser speaks a small JSON protocol over one WebSocket:
//
//   - text frames client → server: clientMessage control messages
//   - binary frames client → server: raw s16le mono PCM microphone audio at
//     the capture rate
//   - text frames server → client: serverMessage updates; synthesized audio
//     travels base64-encoded inside "audio" messages so every chunk stays
//     ordered with its scheduling metadata

// clientMessage is a control message from the browser.
type clientMessage struct {
	// Type is one of "start", "stop", "language".
	Type string `json:"type"`

	// Language is the target-language label for "start" and "language".
	Language string `json:"language,omitempty"`

	// Voice is the provider voice identifier for "start".
	Voice string `json:"voice,omitempty"`

	// Mic reports the browser's microphone permission outcome on "start":
	// "granted" (or empty) and "denied".
	Mic string `json:"mic,omitempty"`
}

// serverMessage is an update pushed to the browser.
type serverMessage struct {
	// Type is one of "status", "entry", "speaking", "capture-start",
	// "capture-stop", "audio", "audio-stop", "error".
	Type string `json:"type"`

	// Status and Error are set for "status" ("idle", "connecting",
	// "connected", "error") and "error" messages.
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`

	// Entry is one finalized transcript line, set for "entry".
	Entry *transcript.Entry `json:"entry,omitempty"`

	// Speaking is the model-speaking flag, set for "speaking".
	Speaking *bool `json:"speaking,omitempty"`

	// ID identifies a scheduled chunk for "audio" and "audio-stop".
	ID uint64 `json:"id,omitempty"`

	// Start is the playback-clock time in seconds the chunk begins at.
	Start float64 `json:"start,omitempty"`

	// SampleRate is the PCM rate of Data in Hz.
	SampleRate int `json:"sample_rate,omitempty"`

	// Data is the base64-encoded s16le PCM payload for "audio".
	Data string `json:"data,omitempty"`
}
