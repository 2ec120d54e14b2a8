// Package playback schedules synthesized audio chunks for gapless playback.
//
// Chunks arrive as discrete network messages at irregular intervals but must
// sound like continuous speech, so the scheduler cannot simply play each
// chunk on arrival. It tracks a virtual playhead — the next start time on the
// playback clock — independent of wall-clock message arrival, and schedules
// every chunk either at that playhead or immediately, whichever is later.
//
// The actual audio output device lives behind the [Player] seam: in
// production the gateway forwards scheduled chunks to the browser's playback
// context; tests supply fakes for both the clock and the player.
package playback

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio"
)

// Clock reports the current time of the playback context in seconds.
type Clock interface {
	Now() float64
}

// Handle identifies one in-flight scheduled chunk.
type Handle interface {
	// Stop halts playback immediately. Stopping a source that already
	// finished may return an error; the scheduler swallows it.
	Stop() error
}

// Player begins playback of a decoded buffer at a given clock time and
// invokes onEnded exactly once when the chunk finishes (or is stopped).
type Player interface {
	Play(buf audio.Buffer, start float64, onEnded func()) (Handle, error)
}

// Option configures a [Scheduler] during construction.
type Option func(*Scheduler)

// WithSpeakingDone registers the callback fired when the model finishes
// speaking: either the last active chunk ended naturally, or playback was
// interrupted. The callback is invoked outside the scheduler lock and may be
// called from the player's ended goroutine.
func WithSpeakingDone(fn func()) Option {
	return func(s *Scheduler) { s.speakingDone = fn }
}

// Scheduler guarantees sample-accurate sequential playback of enqueued
// chunks: no overlap, and no gap beyond scheduling jitter. All exported
// methods are safe for concurrent use.
type Scheduler struct {
	clock  Clock
	player Player

	speakingDone func()

	mu        sync.Mutex
	nextStart float64
	seq       uint64
	active    map[uint64]Handle
}

// New creates a Scheduler playing through player against clock.
func New(clock Clock, player Player, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clock,
		player: player,
		active: make(map[uint64]Handle),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue schedules buf to begin at max(nextStartTime, now) and advances the
// playhead by the buffer's duration. A chunk the player refuses is dropped;
// playback of subsequent chunks continues.
func (s *Scheduler) Enqueue(buf audio.Buffer) error {
	s.mu.Lock()
	start := s.nextStart
	if now := s.clock.Now(); now > start {
		start = now
	}
	s.nextStart = start + buf.Seconds()

	s.seq++
	id := s.seq
	// Reserve the slot before Play so an ended signal firing synchronously
	// finds it registered.
	s.active[id] = nil
	s.mu.Unlock()

	handle, err := s.player.Play(buf, start, func() { s.release(id) })
	if err != nil {
		s.release(id)
		return fmt.Errorf("playback: schedule chunk: %w", err)
	}

	s.mu.Lock()
	_, ok := s.active[id]
	if ok {
		s.active[id] = handle
	}
	s.mu.Unlock()

	if !ok {
		// An interrupt or reset cleared the set while Play was in flight; the
		// source it returned is live but untracked, so halt it here.
		if err := handle.Stop(); err != nil {
			slog.Debug("playback: stop source scheduled across clear", "err", err)
		}
	}
	return nil
}

// release removes one chunk from the active set and signals end-of-speech
// when the set empties. Late ended signals for already-cleared chunks
// (after an interrupt) are ignored.
func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	_, ok := s.active[id]
	if ok {
		delete(s.active, id)
	}
	empty := len(s.active) == 0
	done := s.speakingDone
	s.mu.Unlock()

	if ok && empty && done != nil {
		done()
	}
}

// Interrupt immediately halts every active source, clears the set, and
// resets the playhead to zero. Used on barge-in: the remote model reported
// the user talking over it. Always signals end-of-speech.
func (s *Scheduler) Interrupt() {
	s.clear("interrupt")
}

// Reset applies the same clearing behaviour as Interrupt; used during full
// session teardown.
func (s *Scheduler) Reset() {
	s.clear("reset")
}

func (s *Scheduler) clear(reason string) {
	s.mu.Lock()
	handles := make([]Handle, 0, len(s.active))
	for _, h := range s.active {
		if h != nil {
			handles = append(handles, h)
		}
	}
	s.active = make(map[uint64]Handle)
	s.nextStart = 0
	done := s.speakingDone
	s.mu.Unlock()

	for _, h := range handles {
		// Best effort: a source may already have finished on its own.
		if err := h.Stop(); err != nil {
			slog.Debug("playback: stop source", "reason", reason, "err", err)
		}
	}
	if done != nil {
		done()
	}
}

// Active returns the number of in-flight chunks.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the playhead cursor in seconds. It is always ≥ the end
// time of the previously scheduled chunk and is zero only after an interrupt
// or reset (or before the first chunk).
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}
