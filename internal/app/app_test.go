package app

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/Twaha07/voice-interactive-translation-assistant/internal/config"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/session"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio/capture"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio/playback"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/live"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/live/mock"
)

type fakeStream struct {
	frames    chan audio.Frame
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan audio.Frame)}
}

func (f *fakeStream) Frames() <-chan audio.Frame { return f.frames }
func (f *fakeStream) Resume() error              { return nil }

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.frames) })
	return nil
}

type fakeSource struct{}

func (fakeSource) Open(context.Context) (capture.Stream, error) {
	return newFakeStream(), nil
}

type fakeClock struct{}

func (fakeClock) Now() float64 { return 0 }

type fakeHandle struct{}

func (fakeHandle) Stop() error { return nil }

type fakePlayer struct{}

func (fakePlayer) Play(audio.Buffer, float64, func()) (playback.Handle, error) {
	return fakeHandle{}, nil
}

func testConfig(languages ...string) *config.Config {
	return &config.Config{
		Session: config.SessionConfig{
			DefaultLanguage: "Spanish",
			DefaultVoice:    "Kore",
			Languages:       languages,
		},
	}
}

func newTestManager(cfg *config.Config) (*Manager, *mock.Dialer) {
	dialer := mock.NewDialer()
	m := NewManager(ManagerConfig{Config: cfg, Dialer: dialer})
	return m, dialer
}

func startRequest() StartRequest {
	return StartRequest{
		Source: fakeSource{},
		Clock:  fakeClock{},
		Player: fakePlayer{},
	}
}

func TestManager_SingleActiveSession(t *testing.T) {
	m, _ := newTestManager(testConfig())

	info, err := m.Start(context.Background(), startRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if info.SessionID == "" {
		t.Error("expected a session ID")
	}
	if st, _ := m.Status(); st != session.StatusConnected {
		t.Fatalf("status: got %v, want connected", st)
	}

	if _, err := m.Start(context.Background(), startRequest()); err == nil {
		t.Fatal("expected error starting a second session, got nil")
	}

	m.Stop()
	if st, _ := m.Status(); st != session.StatusIdle {
		t.Fatalf("status after stop: got %v, want idle", st)
	}

	info2, err := m.Start(context.Background(), startRequest())
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if info2.SessionID == info.SessionID {
		t.Error("restart should produce a fresh session ID")
	}
	m.Stop()
}

// gatedDialer blocks Connect until released, holding a session mid-connect.
type gatedDialer struct {
	inner   *mock.Dialer
	entered chan struct{}
	release chan struct{}
}

func (d *gatedDialer) Connect(ctx context.Context, cfg live.Config) (live.Transport, error) {
	close(d.entered)
	<-d.release
	return d.inner.Connect(ctx, cfg)
}

func TestManager_StartRefusedWhileStarting(t *testing.T) {
	dialer := &gatedDialer{
		inner:   mock.NewDialer(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	m := NewManager(ManagerConfig{Config: testConfig(), Dialer: dialer})

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Start(context.Background(), startRequest())
		errCh <- err
	}()
	<-dialer.entered

	// The first session is still inside Connect; a second start must be
	// refused, not handed the slot.
	if _, err := m.Start(context.Background(), startRequest()); err == nil {
		t.Fatal("expected error starting while another start is in flight, got nil")
	}

	close(dialer.release)
	if err := <-errCh; err != nil {
		t.Fatalf("first start: %v", err)
	}
	if st, _ := m.Status(); st != session.StatusConnected {
		t.Fatalf("status: got %v, want connected", st)
	}
	if got := dialer.inner.Connects(); got != 1 {
		t.Errorf("connects: got %d, want 1", got)
	}
	m.Stop()
}

func TestManager_Defaults(t *testing.T) {
	m, dialer := newTestManager(testConfig())

	info, err := m.Start(context.Background(), startRequest())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	if info.Language != "Spanish" {
		t.Errorf("language: got %q, want Spanish", info.Language)
	}
	if info.Voice != "Kore" {
		t.Errorf("voice: got %q, want Kore", info.Voice)
	}
	cfg := dialer.LastConfig()
	if !strings.Contains(cfg.Instructions, "Spanish") {
		t.Errorf("instructions %q should carry the target language", cfg.Instructions)
	}
	if cfg.Voice != "Kore" {
		t.Errorf("config voice: got %q, want Kore", cfg.Voice)
	}
}

func TestManager_LanguageAllowlist(t *testing.T) {
	m, _ := newTestManager(testConfig("Spanish", "French"))

	req := startRequest()
	req.Language = "German"
	if _, err := m.Start(context.Background(), req); err == nil {
		t.Fatal("expected error for disallowed language, got nil")
	}

	req.Language = "French"
	if _, err := m.Start(context.Background(), req); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Stop()
}

func TestManager_SetLanguage(t *testing.T) {
	m, dialer := newTestManager(testConfig())

	if err := m.SetLanguage("French"); err == nil {
		t.Fatal("expected error with no active session, got nil")
	}

	if _, err := m.Start(context.Background(), startRequest()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	if err := m.SetLanguage("French"); err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}
	sent := dialer.Transport().SentText()
	if len(sent) != 1 || !strings.Contains(sent[0], "French") {
		t.Errorf("sent instructions: got %v, want one carrying French", sent)
	}
	if m.Info().Language != "French" {
		t.Errorf("info language: got %q, want French", m.Info().Language)
	}
}

func TestManager_StopWithoutSession(t *testing.T) {
	m, _ := newTestManager(testConfig())
	m.Stop()
	m.Stop()
	if st, _ := m.Status(); st != session.StatusIdle {
		t.Errorf("status: got %v, want idle", st)
	}
}
