// Package session wires the full real-time translation pipeline for one
// connection: microphone capture, frame encoding, the remote transport, the
// playback scheduler, and the transcript aggregator.
//
// A Session is single-use: create, Start, Stop, discard. All fatal conditions
// (transport errors, remote close, manual stop) funnel through one idempotent
// teardown routine, so resource release is consistent regardless of failure
// origin. No automatic retries happen anywhere — a reconnection is a fresh
// Session created by the caller.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Twaha07/voice-interactive-translation-assistant/internal/observe"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/transcript"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio/capture"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio/playback"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/live"
)

// Status is the session-level connection status surfaced to clients.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

// String returns the lower-case status name used in logs and status payloads.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Option configures a [Session] during construction.
type Option func(*Session)

// WithBlockSize overrides the capture block size in samples.
func WithBlockSize(n int) Option {
	return func(s *Session) { s.blockSize = n }
}

// WithLog attaches the conversation log finalized entries are appended to.
func WithLog(l *transcript.Log) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics overrides the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithStatusFunc registers a callback invoked on every status change. err is
// non-nil only for [StatusError]. The callback may be invoked from the event
// loop goroutine and must not call back into the Session.
func WithStatusFunc(fn func(st Status, err error)) Option {
	return func(s *Session) { s.onStatus = fn }
}

// WithSpeakingFunc registers a callback invoked when the model-speaking flag
// flips. Same threading caveats as [WithStatusFunc].
func WithSpeakingFunc(fn func(speaking bool)) Option {
	return func(s *Session) { s.onSpeaking = fn }
}

// Session owns every resource of one live translation exchange.
type Session struct {
	dialer   live.Dialer
	pipeline *capture.Pipeline
	sched    *playback.Scheduler
	agg      *transcript.Aggregator
	log      *transcript.Log
	metrics  *observe.Metrics

	blockSize  int
	onStatus   func(Status, error)
	onSpeaking func(bool)

	mu        sync.Mutex
	status    Status
	lastErr   error
	transport live.Transport
	speaking  bool
	startedAt time.Time

	teardown sync.Once
	done     chan struct{}
}

// New assembles a Session from its seams: the remote dialer, the microphone
// source, and the playback clock and player. Nothing is acquired until Start.
func New(dialer live.Dialer, src capture.Source, clock playback.Clock, player playback.Player, opts ...Option) *Session {
	s := &Session{
		dialer:  dialer,
		agg:     transcript.NewAggregator(),
		log:     transcript.NewLog(),
		metrics: observe.DefaultMetrics(),
		status:  StatusIdle,
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}

	s.sched = playback.New(clock, player, playback.WithSpeakingDone(func() {
		s.setSpeaking(false)
	}))

	var capOpts []capture.Option
	if s.blockSize > 0 {
		capOpts = append(capOpts, capture.WithBlockSize(s.blockSize))
	}
	s.pipeline = capture.New(src, capOpts...)
	return s
}

// Start connects the transport, acquires the microphone, and launches the
// event loop. On any failure everything acquired so far is released and the
// session ends in [StatusError]; the caller may retry with a fresh Session.
func (s *Session) Start(ctx context.Context, cfg live.Config) error {
	s.mu.Lock()
	if s.status != StatusIdle {
		s.mu.Unlock()
		return fmt.Errorf("session: already started")
	}
	s.status = StatusConnecting
	s.mu.Unlock()
	s.notifyStatus(StatusConnecting, nil)

	transport, err := s.dialer.Connect(ctx, cfg)
	if err != nil {
		err = fmt.Errorf("session: connect: %w", err)
		s.fail(err)
		return err
	}

	if err := s.pipeline.Start(ctx, s.sendFrame); err != nil {
		if cerr := transport.Close(); cerr != nil {
			slog.Warn("session: close transport after failed capture start", "err", cerr)
		}
		err = fmt.Errorf("session: start capture: %w", err)
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.transport = transport
	s.status = StatusConnected
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.metrics.ActiveSessions.Add(ctx, 1)
	s.notifyStatus(StatusConnected, nil)

	go s.run(transport)
	return nil
}

// sendFrame encodes one capture block and hands it to the transport.
// Fire-and-forget: frames arriving while the connection is not ready are
// dropped without error, and a failed write drops the frame too.
func (s *Session) sendFrame(samples []float32) {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()

	if t == nil || t.State() != live.StateConnected {
		s.metrics.FramesDropped.Add(context.Background(), 1)
		return
	}
	blob := audio.EncodePCM16(samples, audio.CaptureRate)
	if err := t.SendAudio(blob); err != nil {
		slog.Warn("session: send frame", "err", err)
		s.metrics.FramesDropped.Add(context.Background(), 1)
		return
	}
	s.metrics.FramesSent.Add(context.Background(), 1)
}

// run is the single consumer of the inbound event stream. It is also the
// only writer of the aggregator, so the final flush of a partial turn happens
// here, after the loop exits, never concurrently with it.
func (s *Session) run(transport live.Transport) {
	ctx := context.Background()
	final, cause := StatusIdle, error(nil)

loop:
	for ev := range transport.Events() {
		switch ev.Kind {
		case live.EventInputTranscription:
			s.agg.AppendInput(ev.Text)
		case live.EventOutputTranscription:
			s.agg.AppendOutput(ev.Text)
		case live.EventTurnComplete:
			s.flushTurn(ctx)
		case live.EventAudio:
			s.scheduleAudio(ctx, ev.Audio)
		case live.EventInterrupted:
			s.metrics.Interrupts.Add(ctx, 1)
			s.sched.Interrupt()
		case live.EventError:
			final, cause = StatusError, ev.Err
			break loop
		case live.EventClosed:
			// Remote close: same teardown as a manual stop.
			break loop
		}
	}

	// Commit any partial turn so its text is not lost on abrupt stop.
	s.flushTurn(ctx)
	s.cleanup(final, cause)
}

// scheduleAudio decodes one inline audio payload and enqueues it. Malformed
// payloads are dropped; playback of subsequent chunks is unaffected.
func (s *Session) scheduleAudio(ctx context.Context, data []byte) {
	buf, err := audio.DecodeAudioData(data, audio.PlaybackRate, 1)
	if err != nil {
		slog.Warn("session: dropping undecodable audio chunk", "err", err)
		s.metrics.DecodeErrors.Add(ctx, 1)
		return
	}
	s.setSpeaking(true)
	if err := s.sched.Enqueue(buf); err != nil {
		slog.Warn("session: dropping unschedulable audio chunk", "err", err)
		return
	}
	s.metrics.ChunksScheduled.Add(ctx, 1)
}

// flushTurn commits the buffered transcription turn to the log.
func (s *Session) flushTurn(ctx context.Context) {
	entries := s.agg.Flush()
	if len(entries) == 0 {
		return
	}
	s.metrics.Turns.Add(ctx, 1)
	for _, e := range entries {
		s.log.Append(e)
	}
}

// Stop tears the session down: abrupt halt of capture and playback, transport
// closed, no drain of in-flight audio. Safe to call multiple times and from
// any state.
func (s *Session) Stop() {
	s.cleanup(StatusIdle, nil)
}

// fail records a start-phase failure. Capture and the event loop never ran,
// so the full teardown funnel is still armed for a later (no-op) Stop.
func (s *Session) fail(err error) {
	s.teardown.Do(func() {
		s.mu.Lock()
		s.status = StatusError
		s.lastErr = err
		s.mu.Unlock()
		s.notifyStatus(StatusError, err)
		close(s.done)
	})
}

// cleanup releases every owned resource exactly once. Each release step is
// guarded so one failure does not prevent the rest.
func (s *Session) cleanup(final Status, cause error) {
	s.teardown.Do(func() {
		s.mu.Lock()
		transport := s.transport
		s.transport = nil
		wasConnected := s.status == StatusConnected
		startedAt := s.startedAt
		s.status = final
		s.lastErr = cause
		s.mu.Unlock()

		if err := s.pipeline.Stop(); err != nil {
			slog.Warn("session: stop capture", "err", err)
		}
		s.sched.Reset()
		if transport != nil {
			if err := transport.Close(); err != nil {
				slog.Warn("session: close transport", "err", err)
			}
		}

		if wasConnected {
			s.metrics.RecordTeardown(context.Background(),
				time.Since(startedAt).Seconds(), final.String())
		}
		s.notifyStatus(final, cause)
		close(s.done)
	})
}

// Done returns a channel closed when teardown has completed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Status reports the session status and, for [StatusError], its cause.
func (s *Session) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.lastErr
}

// Speaking reports whether model audio is currently scheduled or playing.
func (s *Session) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Entries returns the finalized conversation log so far.
func (s *Session) Entries() []transcript.Entry {
	return s.log.Entries()
}

// SendText forwards a plain text control message, e.g. a changed
// target-language instruction, to the remote model.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return errors.New("session: not connected")
	}
	return t.SendText(text)
}

func (s *Session) setSpeaking(v bool) {
	s.mu.Lock()
	changed := s.speaking != v
	s.speaking = v
	fn := s.onSpeaking
	s.mu.Unlock()
	if changed && fn != nil {
		fn(v)
	}
}

func (s *Session) notifyStatus(st Status, err error) {
	if s.onStatus != nil {
		s.onStatus(st, err)
	}
}
