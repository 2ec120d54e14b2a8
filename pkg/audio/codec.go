package audio

import (
	"encoding/base64"
	"fmt"
	"math"
)

// Blob is an encoded outbound audio chunk: s16le PCM bytes tagged with the
// MIME type the transport declares to the remote model.
type Blob struct {
	Data     []byte
	MIMEType string
}

// DecodeError reports a malformed inbound audio payload. The offending chunk
// is dropped and the session continues; it must never crash playback of
// subsequent chunks.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: decode payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodePCM16 converts float32 samples in [-1, 1] to little-endian 16-bit
// signed PCM and wraps the result with the declared MIME/rate tag.
// Out-of-range samples are clamped, not rejected.
func EncodePCM16(samples []float32, sampleRate int) Blob {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(math.Round(float64(clamp(s)) * 32767))
		data[i*2] = byte(v)
		data[i*2+1] = byte(uint16(v) >> 8)
	}
	return Blob{
		Data:     data,
		MIMEType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
	}
}

// DecodeBase64 decodes a base64-encoded inbound payload into raw bytes.
// Malformed input yields a *DecodeError.
func DecodeBase64(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return data, nil
}

// DecodeAudioData interprets data as little-endian 16-bit PCM and constructs
// a playable Buffer of the given sample rate and channel count. Each sample
// is converted back to float32 by dividing by 32768. An odd trailing byte is
// truncated.
func DecodeAudioData(data []byte, sampleRate, channels int) (Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return Buffer{}, &DecodeError{Err: fmt.Errorf("invalid format %dHz/%dch", sampleRate, channels)}
	}
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		v := int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
		samples[i] = float32(v) / 32768
	}
	return Buffer{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

func clamp(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
