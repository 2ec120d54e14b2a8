package audio_test

import (
	"testing"

	"github.com/Twaha07/voice-interactive-translation-assistant/pkg/audio"
)

func TestResampleMono_SameRate(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := audio.ResampleMono(in, 48000, 48000)
	if len(out) != len(in) {
		t.Fatalf("length: got %d, want %d", len(out), len(in))
	}
}

func TestResampleMono_Downsample(t *testing.T) {
	// 6 samples at 48 kHz → 2 samples at 16 kHz.
	in := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	out := audio.ResampleMono(in, 48000, 16000)
	if len(out) != 2 {
		t.Fatalf("length: got %d, want 2", len(out))
	}
	if out[0] != 0.1 {
		t.Errorf("first sample: got %v, want 0.1", out[0])
	}
}

func TestResampleMono_Upsample(t *testing.T) {
	in := []float32{0.0, 1.0}
	out := audio.ResampleMono(in, 16000, 48000)
	if len(out) != 6 {
		t.Fatalf("length: got %d, want 6", len(out))
	}
	// Interpolated samples must be monotonically non-decreasing for a ramp.
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Errorf("sample %d: %v < %v, expected non-decreasing ramp", i, out[i], out[i-1])
		}
	}
}

func TestDownmixStereo(t *testing.T) {
	in := []float32{0.2, 0.4, -0.2, -0.4}
	out := audio.DownmixStereo(in)
	if len(out) != 2 {
		t.Fatalf("length: got %d, want 2", len(out))
	}
	if out[0] != 0.3 {
		t.Errorf("frame 0: got %v, want 0.3", out[0])
	}
	if out[1] != -0.3 {
		t.Errorf("frame 1: got %v, want -0.3", out[1])
	}
}

func TestDownmixStereo_DanglingSample(t *testing.T) {
	out := audio.DownmixStereo([]float32{0.5, 0.5, 0.9})
	if len(out) != 1 {
		t.Fatalf("length: got %d, want 1", len(out))
	}
}
