// Package audio provides the PCM codec layer of the translation pipeline:
// conversion between raw float32 samples and the little-endian 16-bit wire
// format spoken by the live model, plus the buffer type consumed by the
// playback scheduler.
//
// Wire format contract: outbound audio is s16le mono at 16 kHz, inbound audio
// is s16le mono at 24 kHz. Sample values outside [-1, 1] are clamped on
// encode, never rejected.
package audio

import "time"

// CaptureRate is the sample rate in Hz of microphone audio sent to the model.
const CaptureRate = 16000

// PlaybackRate is the sample rate in Hz of synthesized audio received from
// the model.
const PlaybackRate = 24000

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Frame is a block of float32 samples as delivered by a capture source.
// Frames are ephemeral: produced continuously while a session is connected,
// normalised to mono at the capture rate, encoded immediately and discarded.
type Frame struct {
	// Samples holds PCM in the range [-1, 1], interleaved when Channels > 1.
	Samples []float32

	// SampleRate in Hz of the samples as delivered by the source.
	SampleRate int

	// Channels is the interleaved channel count. Zero means mono.
	Channels int
}

// Buffer is a block of decoded playback samples. It is owned by the playback
// scheduler from decode until its ended signal fires.
type Buffer struct {
	// Samples holds interleaved float32 PCM in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Channels is the interleaved channel count (1 = mono).
	Channels int
}

// Duration returns the playback duration of the buffer:
// frames / sampleRate, where a frame is one sample per channel.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(float64(frames) / float64(b.SampleRate) * float64(time.Second))
}

// Seconds returns the buffer duration as a float64 second count, the unit
// used by the scheduler's playhead cursor.
func (b Buffer) Seconds() float64 {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	return float64(len(b.Samples)/b.Channels) / float64(b.SampleRate)
}
