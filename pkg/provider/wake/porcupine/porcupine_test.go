package porcupine

import (
	"testing"

	"github.com/lodrian/ascolta/pkg/provider/wake"
)

func TestNewSession_Validation(t *testing.T) {
	tests := []struct {
		name   string
		engine *Engine
		cfg    wake.Config
	}{
		{
			name:   "missing access key",
			engine: New("", []string{"kw.ppn"}, ""),
			cfg:    wake.Config{SampleRate: 16000},
		},
		{
			name:   "no keyword models",
			engine: New("key", nil, ""),
			cfg:    wake.Config{SampleRate: 16000},
		},
		{
			name:   "wrong sample rate",
			engine: New("key", []string{"kw.ppn"}, ""),
			cfg:    wake.Config{SampleRate: 44100},
		},
		{
			name:   "sensitivity out of range",
			engine: New("key", []string{"kw.ppn"}, ""),
			cfg:    wake.Config{SampleRate: 16000, Sensitivity: 1.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.engine.NewSession(tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestPhraseIDs(t *testing.T) {
	got := phraseIDs([]string{
		"models/hey_ascolta_linux.ppn",
		"simple.ppn",
		"no_extension",
	})
	want := []string{"hey_ascolta_linux", "simple", "no_extension"}
	if len(got) != len(want) {
		t.Fatalf("got %d ids, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("id %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSessionCompact(t *testing.T) {
	s := &session{frameLen: 4, buf: []int16{1, 2, 3, 4, 5, 6}}
	s.compact(4)
	if len(s.buf) != 2 {
		t.Fatalf("buffer length after compact: got %d, want 2", len(s.buf))
	}
	if s.buf[0] != 5 || s.buf[1] != 6 {
		t.Errorf("remaining samples: got %v, want [5 6]", s.buf)
	}

	// Compacting nothing is a no-op.
	s.compact(0)
	if len(s.buf) != 2 {
		t.Errorf("no-op compact changed length to %d", len(s.buf))
	}
}
