// Package app owns the application-level session lifecycle: exactly one live
// translation session at a time, created on a start request and discarded on
// stop, close, or error.
//
// The Manager is deliberately thin — all real-time behaviour lives in
// [session.Session]; the Manager enforces the single-session rule, assigns
// session IDs, applies configured defaults, and fans finalized transcript
// entries out to the optional store and event publisher.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Twaha07/voice-interactive-translation-assistant/internal/config"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/events"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/session"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/transcript"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio/capture"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio/playback"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/live"
)

// SessionInfo holds metadata about the active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string `json:"session_id"`

	// Language is the target-language label the model translates into.
	Language string `json:"language"`

	// Voice is the provider voice identifier used for synthesized speech.
	Voice string `json:"voice"`

	// StartedAt is when the session was started.
	StartedAt time.Time `json:"started_at"`
}

// StartRequest carries everything a new session needs from the caller: the
// chosen target language and voice plus the per-connection audio seams the
// gateway provides.
type StartRequest struct {
	Language string
	Voice    string

	Source capture.Source
	Clock  playback.Clock
	Player playback.Player

	// OnStatus, OnSpeaking and OnEntry are forwarded to the session; any may
	// be nil. OnEntry fires once per finalized transcript entry.
	OnStatus   func(st session.Status, err error)
	OnSpeaking func(speaking bool)
	OnEntry    func(e transcript.Entry)
}

// ManagerConfig holds the dependencies for a [Manager]. Store and Publisher
// are optional; nil disables the respective transcript fan-out.
type ManagerConfig struct {
	Config    *config.Config
	Dialer    live.Dialer
	Store     *transcript.Store
	Publisher *events.Publisher
}

// Manager enforces the one-active-session rule. All exported methods are safe
// for concurrent use.
type Manager struct {
	cfg       *config.Config
	dialer    live.Dialer
	store     *transcript.Store
	publisher *events.Publisher

	mu       sync.Mutex
	current  *session.Session
	starting bool
	info     SessionInfo
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:       cfg.Config,
		dialer:    cfg.Dialer,
		store:     cfg.Store,
		publisher: cfg.Publisher,
	}
}

// Start begins a new translation session. It refuses to start while another
// session is connecting or connected — the previous one must be stopped (or
// have failed) first.
func (m *Manager) Start(ctx context.Context, req StartRequest) (SessionInfo, error) {
	language := req.Language
	if language == "" {
		language = m.cfg.Session.DefaultLanguage
	}
	if !m.cfg.Session.AllowsLanguage(language) {
		return SessionInfo{}, fmt.Errorf("app: target language %q is not allowed", language)
	}
	voice := req.Voice
	if voice == "" {
		voice = m.cfg.Session.DefaultVoice
	}

	m.mu.Lock()
	// The slot is claimed under the lock and held until session.Start returns,
	// so a concurrent Start cannot observe the new session while it is still
	// idle and race past the status check.
	if m.starting {
		m.mu.Unlock()
		return SessionInfo{}, fmt.Errorf("app: a session is already starting")
	}
	if m.current != nil {
		if st, _ := m.current.Status(); st == session.StatusConnecting || st == session.StatusConnected {
			id := m.info.SessionID
			m.mu.Unlock()
			return SessionInfo{}, fmt.Errorf("app: a session is already active (id=%s)", id)
		}
	}

	sessionID := uuid.NewString()
	sinks := m.entrySinks(sessionID)
	if req.OnEntry != nil {
		sinks = append(sinks, req.OnEntry)
	}
	log := transcript.NewLog(sinks...)

	s := session.New(m.dialer, req.Source, req.Clock, req.Player,
		session.WithBlockSize(m.cfg.Audio.CaptureBlock),
		session.WithLog(log),
		session.WithStatusFunc(req.OnStatus),
		session.WithSpeakingFunc(req.OnSpeaking),
	)
	m.current = s
	m.starting = true
	m.info = SessionInfo{
		SessionID: sessionID,
		Language:  language,
		Voice:     voice,
		StartedAt: time.Now().UTC(),
	}
	info := m.info
	m.mu.Unlock()

	cfg := live.Config{
		Instructions: InstructionForLanguage(language),
		Voice:        voice,
	}
	err := s.Start(ctx, cfg)
	m.mu.Lock()
	m.starting = false
	m.mu.Unlock()
	if err != nil {
		return SessionInfo{}, fmt.Errorf("app: start session: %w", err)
	}

	slog.Info("session started",
		"session_id", sessionID,
		"language", language,
		"voice", voice,
	)
	return info, nil
}

// entrySinks builds the fan-out for finalized transcript entries: persistent
// store and event publisher, both best-effort.
func (m *Manager) entrySinks(sessionID string) []transcript.Sink {
	var sinks []transcript.Sink
	if m.store != nil {
		sinks = append(sinks, func(e transcript.Entry) {
			if err := m.store.WriteEntry(context.Background(), sessionID, e); err != nil {
				slog.Warn("app: persist transcript entry", "session_id", sessionID, "err", err)
			}
		})
	}
	if m.publisher != nil {
		sinks = append(sinks, func(e transcript.Entry) {
			if err := m.publisher.PublishEntry(context.Background(), sessionID, e); err != nil {
				slog.Warn("app: publish transcript entry", "session_id", sessionID, "err", err)
			}
		})
	}
	return sinks
}

// Stop tears down the active session. Calling Stop with no session running is
// a no-op — teardown is idempotent from any state.
func (m *Manager) Stop() {
	m.mu.Lock()
	s := m.current
	id := m.info.SessionID
	m.mu.Unlock()

	if s == nil {
		return
	}
	s.Stop()
	slog.Info("session stopped", "session_id", id)
}

// SetLanguage forwards a changed target-language choice to the running model
// as a plain instruction string.
func (m *Manager) SetLanguage(language string) error {
	if !m.cfg.Session.AllowsLanguage(language) {
		return fmt.Errorf("app: target language %q is not allowed", language)
	}

	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return fmt.Errorf("app: no active session")
	}
	if err := s.SendText(InstructionForLanguage(language)); err != nil {
		return fmt.Errorf("app: set language: %w", err)
	}

	m.mu.Lock()
	m.info.Language = language
	m.mu.Unlock()
	return nil
}

// Status reports the current session status. With no session ever started it
// reports [session.StatusIdle].
func (m *Manager) Status() (session.Status, error) {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return session.StatusIdle, nil
	}
	return s.Status()
}

// Speaking reports whether model audio is currently playing.
func (m *Manager) Speaking() bool {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return false
	}
	return s.Speaking()
}

// Entries returns the finalized conversation log of the current (or most
// recent) session.
func (m *Manager) Entries() []transcript.Entry {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Entries()
}

// Info returns metadata about the current (or most recent) session. Zero
// value if none was ever started.
func (m *Manager) Info() SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// InstructionForLanguage builds the system instruction that carries the
// user's target-language choice. This pass-through string is the entire
// language-selection mechanism — no language-list management happens in the
// session core.
func InstructionForLanguage(language string) string {
	return fmt.Sprintf(
		"You are a real-time interpreter. Translate everything the user says into %s and reply with only the spoken translation, nothing else.",
		language,
	)
}
