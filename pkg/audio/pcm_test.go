package audio_test

import (
	"math"
	"testing"
	"time"

	"github.com/lodrian/ascolta/pkg/audio"
)

func TestInt16RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345}
	got := audio.BytesToInt16(audio.Int16ToBytes(samples))
	if len(got) != len(samples) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestBytesToInt16_TrailingByte(t *testing.T) {
	got := audio.BytesToInt16([]byte{0x01, 0x00, 0xFF})
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0] != 1 {
		t.Errorf("got %d, want 1", got[0])
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{name: "empty", samples: nil, want: 0},
		{name: "silence", samples: []int16{0, 0, 0, 0}, want: 0},
		{name: "constant", samples: []int16{1000, 1000, 1000}, want: 1000},
		{name: "alternating", samples: []int16{3000, -3000, 3000, -3000}, want: 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := audio.RMS(audio.Int16ToBytes(tt.samples))
			if math.Abs(got-tt.want) > 0.5 {
				t.Errorf("RMS = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestPCMDuration(t *testing.T) {
	// 640 bytes = 320 samples at 16kHz mono = 20ms.
	if got := audio.PCMDuration(640, 16000, 1); got != 20*time.Millisecond {
		t.Errorf("got %v, want 20ms", got)
	}
	// Stereo halves the per-channel sample count.
	if got := audio.PCMDuration(640, 16000, 2); got != 10*time.Millisecond {
		t.Errorf("got %v, want 10ms", got)
	}
	if got := audio.PCMDuration(640, 0, 1); got != 0 {
		t.Errorf("invalid rate: got %v, want 0", got)
	}
}

func TestFrameSize(t *testing.T) {
	// 20ms at 16kHz mono = 320 samples = 640 bytes.
	if got := audio.FrameSize(20*time.Millisecond, 16000, 1); got != 640 {
		t.Errorf("got %d, want 640", got)
	}
	// 32ms at 16kHz mono = 512 samples = 1024 bytes.
	if got := audio.FrameSize(32*time.Millisecond, 16000, 1); got != 1024 {
		t.Errorf("got %d, want 1024", got)
	}
	if got := audio.FrameSize(0, 16000, 1); got != 0 {
		t.Errorf("zero duration: got %d, want 0", got)
	}
}

func TestFrameDuration(t *testing.T) {
	f := audio.Frame{
		Data:       make([]byte, 640),
		SampleRate: 16000,
		Channels:   1,
	}
	if got := f.Duration(); got != 20*time.Millisecond {
		t.Errorf("got %v, want 20ms", got)
	}
	if got := f.Samples(); got != 320 {
		t.Errorf("samples: got %d, want 320", got)
	}
}
