package gemini_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/live"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/live/gemini"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startLiveServer launches a test WebSocket server. The handler function
// receives the accepted *websocket.Conn. The server is automatically closed
// when the test finishes.
func startLiveServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// nextEvent waits for one event of the given kind, skipping others.
func nextEvent(t *testing.T, tr live.Transport, kind live.EventKind) live.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-tr.Events():
			if !ok {
				t.Fatalf("events channel closed while waiting for kind %d", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timeout waiting for event kind %d", kind)
		}
	}
}

// ── Connect / setup ───────────────────────────────────────────────────────────

func TestConnect_SendsSetup(t *testing.T) {
	t.Parallel()

	type setupMsg struct {
		Setup struct {
			Model            string `json:"model"`
			GenerationConfig struct {
				ResponseModalities []string `json:"responseModalities"`
				SpeechConfig       *struct {
					VoiceConfig struct {
						PrebuiltVoiceConfig struct {
							VoiceName string `json:"voiceName"`
						} `json:"prebuiltVoiceConfig"`
					} `json:"voiceConfig"`
				} `json:"speechConfig"`
			} `json:"generationConfig"`
			SystemInstruction *struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
			InputAudioTranscription  *struct{} `json:"inputAudioTranscription"`
			OutputAudioTranscription *struct{} `json:"outputAudioTranscription"`
		} `json:"setup"`
	}

	received := make(chan setupMsg, 1)
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg setupMsg
		readJSON(t, conn, &msg)
		received <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	d := gemini.New("test-key", gemini.WithBaseURL(wsURL(srv)), gemini.WithModel("custom-model"))
	tr, err := d.Connect(context.Background(), live.Config{
		Instructions: "Translate everything you hear into German.",
		Voice:        "Kore",
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	if got := tr.State(); got != live.StateConnected {
		t.Errorf("state after connect: got %v, want connected", got)
	}

	select {
	case msg := <-received:
		if want := "models/custom-model"; msg.Setup.Model != want {
			t.Errorf("model = %q; want %q", msg.Setup.Model, want)
		}
		if msg.Setup.SystemInstruction == nil || msg.Setup.SystemInstruction.Parts[0].Text != "Translate everything you hear into German." {
			t.Errorf("unexpected system instruction: %+v", msg.Setup.SystemInstruction)
		}
		if msg.Setup.GenerationConfig.SpeechConfig == nil ||
			msg.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Kore" {
			t.Errorf("voice not forwarded: %+v", msg.Setup.GenerationConfig.SpeechConfig)
		}
		if msg.Setup.InputAudioTranscription == nil || msg.Setup.OutputAudioTranscription == nil {
			t.Error("transcription was not requested in setup")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for setup message")
	}
}

func TestConnect_DialFailure(t *testing.T) {
	t.Parallel()
	d := gemini.New("key", gemini.WithBaseURL("ws://127.0.0.1:1"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := d.Connect(ctx, live.Config{}); err == nil {
		t.Fatal("expected connect error")
	}
}

// ── Outbound ──────────────────────────────────────────────────────────────────

func TestSendAudio_EncodesMediaChunk(t *testing.T) {
	t.Parallel()

	type inputMsg struct {
		RealtimeInput struct {
			MediaChunks []struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"mediaChunks"`
		} `json:"realtimeInput"`
	}

	received := make(chan inputMsg, 1)
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		var msg inputMsg
		readJSON(t, conn, &msg)
		received <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	d := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	tr, err := d.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	blob := audio.EncodePCM16([]float32{0.5, -0.5}, audio.CaptureRate)
	if err := tr.SendAudio(blob); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case msg := <-received:
		chunks := msg.RealtimeInput.MediaChunks
		if len(chunks) != 1 {
			t.Fatalf("media chunks: got %d, want 1", len(chunks))
		}
		if chunks[0].MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("mime type: got %q", chunks[0].MIMEType)
		}
		raw, err := base64.StdEncoding.DecodeString(chunks[0].Data)
		if err != nil {
			t.Fatalf("chunk data is not base64: %v", err)
		}
		if len(raw) != 4 {
			t.Errorf("chunk payload: got %d bytes, want 4", len(raw))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for media chunk")
	}
}

func TestSendAudio_DeclaredInputRateStampsChunks(t *testing.T) {
	t.Parallel()

	type inputMsg struct {
		RealtimeInput struct {
			MediaChunks []struct {
				MIMEType string `json:"mimeType"`
			} `json:"mediaChunks"`
		} `json:"realtimeInput"`
	}

	received := make(chan inputMsg, 1)
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		var msg inputMsg
		readJSON(t, conn, &msg)
		received <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	d := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	tr, err := d.Connect(context.Background(), live.Config{InputSampleRate: 8000})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	// The rate from Connect wins over the blob's own tag.
	if err := tr.SendAudio(audio.EncodePCM16([]float32{0}, audio.CaptureRate)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case msg := <-received:
		if got := msg.RealtimeInput.MediaChunks[0].MIMEType; got != "audio/pcm;rate=8000" {
			t.Errorf("mime type: got %q, want audio/pcm;rate=8000", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for media chunk")
	}
}

func TestSendAudio_DroppedAfterClose(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		<-conn.CloseRead(context.Background()).Done()
	})

	d := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	tr, err := d.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tr.Close()

	// Fire-and-forget: a frame sent on a closed transport is dropped, not an error.
	if err := tr.SendAudio(audio.EncodePCM16([]float32{0}, audio.CaptureRate)); err != nil {
		t.Errorf("SendAudio after close: got %v, want silent drop", err)
	}
}

func TestSendText_ForwardsInstruction(t *testing.T) {
	t.Parallel()

	type contentMsg struct {
		ClientContent struct {
			Turns []struct {
				Role  string `json:"role"`
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"turns"`
			TurnComplete bool `json:"turnComplete"`
		} `json:"clientContent"`
	}

	received := make(chan contentMsg, 1)
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		var msg contentMsg
		readJSON(t, conn, &msg)
		received <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	d := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	tr, err := d.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	if err := tr.SendText("From now on translate into Japanese."); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	select {
	case msg := <-received:
		if len(msg.ClientContent.Turns) != 1 || msg.ClientContent.Turns[0].Parts[0].Text != "From now on translate into Japanese." {
			t.Errorf("unexpected client content: %+v", msg.ClientContent)
		}
		if !msg.ClientContent.TurnComplete {
			t.Error("turnComplete not set on control message")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for client content")
	}
}

// ── Inbound event routing ─────────────────────────────────────────────────────

func TestReceive_RoutesServerContent(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)

		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"inputTranscription": map[string]any{"text": "Hola"},
		}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"outputTranscription": map[string]any{"text": "Hello"},
			"modelTurn": map[string]any{
				"parts": []map[string]any{
					{"inlineData": map[string]any{
						"mimeType": "audio/pcm;rate=24000",
						"data":     base64.StdEncoding.EncodeToString(pcm),
					}},
				},
			},
		}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"turnComplete": true,
		}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"interrupted": true,
		}})
		<-conn.CloseRead(context.Background()).Done()
	})

	d := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	tr, err := d.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	if ev := nextEvent(t, tr, live.EventInputTranscription); ev.Text != "Hola" {
		t.Errorf("input transcription: got %q, want %q", ev.Text, "Hola")
	}
	if ev := nextEvent(t, tr, live.EventOutputTranscription); ev.Text != "Hello" {
		t.Errorf("output transcription: got %q, want %q", ev.Text, "Hello")
	}
	if ev := nextEvent(t, tr, live.EventAudio); len(ev.Audio) != len(pcm) {
		t.Errorf("audio payload: got %d bytes, want %d", len(ev.Audio), len(pcm))
	}
	nextEvent(t, tr, live.EventTurnComplete)
	nextEvent(t, tr, live.EventInterrupted)
}

func TestReceive_MalformedAudioDropped(t *testing.T) {
	t.Parallel()

	good := []byte{0x0A, 0x0B}
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)

		// A malformed chunk followed by a valid one: only the valid one
		// must surface.
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []map[string]any{
					{"inlineData": map[string]any{"data": "!!not-base64!!"}},
				},
			},
		}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []map[string]any{
					{"inlineData": map[string]any{"data": base64.StdEncoding.EncodeToString(good)}},
				},
			},
		}})
		<-conn.CloseRead(context.Background()).Done()
	})

	d := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	tr, err := d.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	ev := nextEvent(t, tr, live.EventAudio)
	if len(ev.Audio) != len(good) {
		t.Errorf("surviving chunk: got %d bytes, want %d", len(ev.Audio), len(good))
	}
	if got := tr.State(); got != live.StateConnected {
		t.Errorf("state after dropped chunk: got %v, want connected", got)
	}
}

func TestReceive_ServerErrorTransitionsToErrored(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		writeJSON(t, conn, map[string]any{"error": map[string]any{
			"code":    500,
			"message": "quota exceeded",
		}})
		<-conn.CloseRead(context.Background()).Done()
	})

	d := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	tr, err := d.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	ev := nextEvent(t, tr, live.EventError)
	if ev.Err == nil || !strings.Contains(ev.Err.Error(), "quota exceeded") {
		t.Errorf("error event: got %v", ev.Err)
	}
	if got := tr.State(); got != live.StateErrored {
		t.Errorf("state: got %v, want errored", got)
	}

	// Terminal: channel must close after the error event.
	select {
	case _, ok := <-tr.Events():
		if ok {
			t.Error("expected events channel to close after terminal error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for events channel close")
	}
}

func TestReceive_RemoteClose(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		conn.Close(websocket.StatusNormalClosure, "bye")
	})

	d := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	tr, err := d.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	nextEvent(t, tr, live.EventClosed)
	if got := tr.State(); got != live.StateClosed {
		t.Errorf("state: got %v, want closed", got)
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		<-conn.CloseRead(context.Background()).Done()
	})

	d := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	tr, err := d.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if got := tr.State(); got != live.StateClosed {
		t.Errorf("state: got %v, want closed", got)
	}
}
