// Package transcript reconciles the incrementally-arriving transcription
// events of a live session into a turn-based conversation log.
//
// The [Aggregator] is a pure reducer over the event stream: partial text is
// appended to one of two accumulator buffers (user input, model output), and
// finalized [Entry] values are committed only when a turn-completion signal
// arrives. It has no concurrency of its own — the session run loop is the
// single writer.
package transcript

import (
	"strings"
	"time"
)

// Speaker identifies who produced an entry.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// Entry is one finalized line of the conversation log. Immutable once
// created; log ordering is append order.
type Entry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Aggregator buffers partial transcription text per speaker turn.
type Aggregator struct {
	input  strings.Builder
	output strings.Builder
	now    func() time.Time
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// AppendInput appends partial user-speech transcription text.
func (a *Aggregator) AppendInput(text string) {
	a.input.WriteString(text)
}

// AppendOutput appends partial model-speech transcription text.
func (a *Aggregator) AppendOutput(text string) {
	a.output.WriteString(text)
}

// Flush commits the buffered turn: each buffer whose content is non-empty
// after whitespace trimming produces one Entry (user first, then model), and
// both buffers are reset atomically. The committed text keeps its original
// spacing — trimming is only the emptiness test.
func (a *Aggregator) Flush() []Entry {
	var entries []Entry
	ts := a.now()

	if strings.TrimSpace(a.input.String()) != "" {
		entries = append(entries, Entry{Speaker: SpeakerUser, Text: a.input.String(), Timestamp: ts})
	}
	if strings.TrimSpace(a.output.String()) != "" {
		entries = append(entries, Entry{Speaker: SpeakerModel, Text: a.output.String(), Timestamp: ts})
	}

	a.input.Reset()
	a.output.Reset()
	return entries
}

// Pending reports whether either buffer holds uncommitted text.
func (a *Aggregator) Pending() bool {
	return a.input.Len() > 0 || a.output.Len() > 0
}
