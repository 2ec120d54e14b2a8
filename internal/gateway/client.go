package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/Twaha07/voice-interactive-translation-assistant/internal/app"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/session"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/transcript"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio/capture"
	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio/playback"
)

// writeTimeout bounds a single outbound WebSocket write.
const writeTimeout = 10 * time.Second

// micBuffer is the inbound frame channel capacity. Frames arriving while the
// buffer is full are dropped — the capture path tolerates loss.
const micBuffer = 32

// client is one connected browser. It bridges the WebSocket to the session
// seams: the browser microphone becomes a [capture.Source], and the browser
// playback context sits behind the [playback.Clock] and [playback.Player]
// implementations, driven by scheduling messages.
type client struct {
	ws      *websocket.Conn
	manager *app.Manager
	epoch   time.Time
	seq     atomic.Uint64

	writeMu sync.Mutex

	mu        sync.Mutex
	micDenied bool
	stream    *micStream
	started   bool
}

var _ capture.Source = (*client)(nil)
var _ playback.Clock = (*client)(nil)
var _ playback.Player = (*client)(nil)

func newClient(ws *websocket.Conn, manager *app.Manager) *client {
	return &client{ws: ws, manager: manager, epoch: time.Now()}
}

// run reads messages until the connection drops, then tears down any session
// this client started.
func (c *client) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		if started {
			c.manager.Stop()
		}
	}()

	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			slog.Debug("gateway: connection closed", "err", err)
			return
		}
		switch typ {
		case websocket.MessageBinary:
			c.handleAudio(data)
		case websocket.MessageText:
			c.handleControl(ctx, data)
		}
	}
}

// handleControl dispatches one JSON control message.
func (c *client) handleControl(ctx context.Context, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(fmt.Sprintf("malformed control message: %v", err))
		return
	}

	switch msg.Type {
	case "start":
		c.mu.Lock()
		c.micDenied = msg.Mic == "denied"
		c.mu.Unlock()

		_, err := c.manager.Start(ctx, app.StartRequest{
			Language:   msg.Language,
			Voice:      msg.Voice,
			Source:     c,
			Clock:      c,
			Player:     c,
			OnStatus:   c.sendStatus,
			OnSpeaking: c.sendSpeaking,
			OnEntry:    c.sendEntry,
		})
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.mu.Lock()
		c.started = true
		c.mu.Unlock()

	case "stop":
		c.manager.Stop()

	case "language":
		if err := c.manager.SetLanguage(msg.Language); err != nil {
			c.sendError(err.Error())
		}

	default:
		slog.Warn("gateway: unknown control message", "type", msg.Type)
	}
}

// handleAudio forwards one binary microphone frame to the capture stream.
func (c *client) handleAudio(data []byte) {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return
	}

	buf, err := audio.DecodeAudioData(data, audio.CaptureRate, 1)
	if err != nil {
		slog.Warn("gateway: dropping malformed microphone frame", "err", err)
		return
	}
	stream.push(audio.Frame{Samples: buf.Samples, SampleRate: buf.SampleRate})
}

// Open implements [capture.Source] over the WebSocket: the returned stream is
// fed by inbound binary frames.
func (c *client) Open(context.Context) (capture.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.micDenied {
		return nil, capture.ErrPermissionDenied
	}
	s := &micStream{client: c, frames: make(chan audio.Frame, micBuffer)}
	c.stream = s
	return s, nil
}

// Now implements [playback.Clock]: seconds since the connection was
// established, the epoch the browser playback context is aligned to.
func (c *client) Now() float64 {
	return time.Since(c.epoch).Seconds()
}

// Play implements [playback.Player]: the chunk travels to the browser with
// its scheduled start time, and the ended signal fires from a server-side
// timer at the chunk's predicted completion.
func (c *client) Play(buf audio.Buffer, start float64, onEnded func()) (playback.Handle, error) {
	id := c.seq.Add(1)
	blob := audio.EncodePCM16(buf.Samples, buf.SampleRate)

	err := c.send(serverMessage{
		Type:       "audio",
		ID:         id,
		Start:      start,
		SampleRate: buf.SampleRate,
		Data:       base64.StdEncoding.EncodeToString(blob.Data),
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: send audio chunk: %w", err)
	}

	h := &chunkHandle{client: c, id: id, onEnded: onEnded}
	delay := time.Duration((start + buf.Seconds() - c.Now()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	h.timer = time.AfterFunc(delay, h.end)
	return h, nil
}

func (c *client) sendStatus(st session.Status, err error) {
	msg := serverMessage{Type: "status", Status: st.String()}
	if err != nil {
		msg.Error = err.Error()
	}
	if serr := c.send(msg); serr != nil {
		slog.Debug("gateway: push status", "err", serr)
	}
}

func (c *client) sendSpeaking(speaking bool) {
	if err := c.send(serverMessage{Type: "speaking", Speaking: &speaking}); err != nil {
		slog.Debug("gateway: push speaking flag", "err", err)
	}
}

func (c *client) sendEntry(e transcript.Entry) {
	if err := c.send(serverMessage{Type: "entry", Entry: &e}); err != nil {
		slog.Debug("gateway: push transcript entry", "err", err)
	}
}

func (c *client) sendError(text string) {
	if err := c.send(serverMessage{Type: "error", Error: text}); err != nil {
		slog.Debug("gateway: push error", "err", err)
	}
}

// send serializes writes to the socket; the WebSocket allows one concurrent
// writer only.
func (c *client) send(msg serverMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("gateway: marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// micStream is the capture stream fed by inbound binary frames.
type micStream struct {
	client *client
	frames chan audio.Frame

	mu     sync.Mutex
	closed bool
}

var _ capture.Stream = (*micStream)(nil)

func (s *micStream) Frames() <-chan audio.Frame { return s.frames }

// Resume tells the browser to begin microphone capture.
func (s *micStream) Resume() error {
	if err := s.client.send(serverMessage{Type: "capture-start"}); err != nil {
		return fmt.Errorf("gateway: request capture start: %w", err)
	}
	return nil
}

// Close stops frame flow and asks the browser to release the microphone.
// Tolerates repeated calls.
func (s *micStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.frames)
	s.mu.Unlock()

	s.client.mu.Lock()
	if s.client.stream == s {
		s.client.stream = nil
	}
	s.client.mu.Unlock()

	if err := s.client.send(serverMessage{Type: "capture-stop"}); err != nil {
		slog.Debug("gateway: request capture stop", "err", err)
	}
	return nil
}

// push delivers one frame, dropping it when the buffer is full or the stream
// already closed.
func (s *micStream) push(f audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.frames <- f:
	default:
		slog.Debug("gateway: dropping microphone frame, buffer full")
	}
}

// chunkHandle is one scheduled chunk in flight to the browser.
type chunkHandle struct {
	client  *client
	id      uint64
	timer   *time.Timer
	onEnded func()
	once    sync.Once
}

var _ playback.Handle = (*chunkHandle)(nil)

// Stop halts the chunk browser-side and fires the ended signal if the chunk
// had not already completed.
func (h *chunkHandle) Stop() error {
	if h.timer.Stop() {
		if err := h.client.send(serverMessage{Type: "audio-stop", ID: h.id}); err != nil {
			return fmt.Errorf("gateway: stop audio chunk: %w", err)
		}
	}
	h.end()
	return nil
}

func (h *chunkHandle) end() {
	h.once.Do(h.onEnded)
}
