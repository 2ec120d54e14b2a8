// Package capture owns the microphone side of the pipeline: it acquires an
// exclusive input stream from a [Source], resumes it explicitly, and taps the
// incoming audio into fixed-size mono blocks at the capture rate.
//
// The Source abstraction exists because the process itself has no microphone —
// audio originates in the browser and reaches the server through the gateway,
// which implements Source over its WebSocket connection. Tests supply a mock.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio"
)

// ErrPermissionDenied is returned by Source.Open when microphone access was
// denied. It is fatal to session start; the session does not proceed and no
// retry is attempted.
var ErrPermissionDenied = errors.New("capture: microphone permission denied")

// DefaultBlockSize is the number of mono samples per dispatched frame,
// matching the device buffer size used by browser capture taps.
const DefaultBlockSize = 4096

// Stream is an open microphone stream.
type Stream interface {
	// Frames returns the channel on which raw capture frames arrive. The
	// channel is closed when the stream ends. Frame sizes, sample rates and
	// channel layouts are source-defined; the pipeline normalises them.
	Frames() <-chan audio.Frame

	// Resume explicitly starts frame flow. Some environments create streams
	// suspended; resuming is mandatory before any frames are delivered.
	Resume() error

	// Close releases the stream and closes the Frames channel. Implementations
	// must tolerate being closed more than once.
	Close() error
}

// Source acquires an exclusive microphone stream.
type Source interface {
	// Open acquires the stream, returning [ErrPermissionDenied] (possibly
	// wrapped) when access is refused.
	Open(ctx context.Context) (Stream, error)
}

// Option configures a [Pipeline] during construction.
type Option func(*Pipeline)

// WithBlockSize overrides the dispatched block size in samples.
func WithBlockSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.blockSize = n
		}
	}
}

// WithTargetRate overrides the sample rate frames are normalised to before
// dispatch. Default: [audio.CaptureRate].
func WithTargetRate(rate int) Option {
	return func(p *Pipeline) {
		if rate > 0 {
			p.targetRate = rate
		}
	}
}

// Pipeline is the microphone frame tap. Start opens the stream and dispatches
// fixed-size blocks to the frame callback; Stop detaches the tap and closes
// the stream. A Pipeline is single-use: once stopped it cannot be restarted.
type Pipeline struct {
	src        Source
	blockSize  int
	targetRate int

	mu      sync.Mutex
	stream  Stream
	running bool
	done    chan struct{}
}

// New creates a Pipeline reading from src.
func New(src Source, opts ...Option) *Pipeline {
	p := &Pipeline{
		src:        src,
		blockSize:  DefaultBlockSize,
		targetRate: audio.CaptureRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start acquires the microphone stream, resumes it, and begins dispatching
// blocks of exactly blockSize mono samples at the target rate to onFrame.
// onFrame is invoked synchronously from the tap goroutine; it must not block
// for extended periods.
//
// Returns an error (wrapping [ErrPermissionDenied] where applicable) if the
// stream cannot be acquired or resumed, in which case no frames are ever
// dispatched.
func (p *Pipeline) Start(ctx context.Context, onFrame func(samples []float32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("capture: already started")
	}

	stream, err := p.src.Open(ctx)
	if err != nil {
		return fmt.Errorf("capture: open source: %w", err)
	}
	if err := stream.Resume(); err != nil {
		if cerr := stream.Close(); cerr != nil {
			slog.Warn("capture: close after failed resume", "err", cerr)
		}
		return fmt.Errorf("capture: resume stream: %w", err)
	}

	p.stream = stream
	p.running = true
	p.done = make(chan struct{})

	go p.tap(stream, onFrame)
	return nil
}

// tap accumulates incoming frames into fixed-size blocks and dispatches them.
// A partial block pending at stop time is discarded — no buffering survives
// Stop.
func (p *Pipeline) tap(stream Stream, onFrame func([]float32)) {
	defer close(p.done)

	pending := make([]float32, 0, p.blockSize)
	for frame := range stream.Frames() {
		samples := frame.Samples
		if frame.Channels == 2 {
			samples = audio.DownmixStereo(samples)
		}
		if frame.SampleRate != p.targetRate {
			samples = audio.ResampleMono(samples, frame.SampleRate, p.targetRate)
		}
		pending = append(pending, samples...)

		for len(pending) >= p.blockSize {
			block := make([]float32, p.blockSize)
			copy(block, pending[:p.blockSize])
			pending = pending[p.blockSize:]

			p.mu.Lock()
			running := p.running
			p.mu.Unlock()
			if !running {
				return
			}
			onFrame(block)
		}
	}
}

// Stop detaches the frame tap and closes the stream. Once Stop returns, no
// further frames are dispatched. Stop is idempotent and tolerates an
// already-closed stream: a failing Close is logged, not surfaced.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stream := p.stream
	p.stream = nil
	done := p.done
	p.mu.Unlock()

	if err := stream.Close(); err != nil {
		slog.Warn("capture: close stream", "err", err)
	}
	if done != nil {
		<-done
	}
	return nil
}
