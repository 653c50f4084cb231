package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// minimalYAML is the smallest config that passes validation.
const minimalYAML = `
providers:
  stt:
    name: scribe
    api_key: test-key
`

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != "127.0.0.1:8723" {
		t.Errorf("listen_addr = %q, want 127.0.0.1:8723", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}

	p := cfg.Pipeline
	if p.SampleRate != 16000 {
		t.Errorf("sample_rate = %d, want 16000", p.SampleRate)
	}
	if p.FrameDurationMs != 32 {
		t.Errorf("frame_duration_ms = %d, want 32", p.FrameDurationMs)
	}
	if p.SilenceTimeoutMs != 1500 {
		t.Errorf("silence_timeout_ms = %d, want 1500", p.SilenceTimeoutMs)
	}
	if p.GraceWindowMs != 250 {
		t.Errorf("grace_window_ms = %d, want 250", p.GraceWindowMs)
	}
	if p.MaxSessionMs != 30000 {
		t.Errorf("max_session_ms = %d, want 30000", p.MaxSessionMs)
	}
	if p.NoSpeechTimeoutMs != 10000 {
		t.Errorf("no_speech_timeout_ms = %d, want 10000", p.NoSpeechTimeoutMs)
	}
	if !p.WakeEnabled() {
		t.Error("wake word should default to enabled")
	}
	if p.ActivationThreshold != 0.5 {
		t.Errorf("activation_threshold = %v, want 0.5", p.ActivationThreshold)
	}
	if p.CooldownMs != 2000 {
		t.Errorf("cooldown_ms = %d, want 2000", p.CooldownMs)
	}
	if !p.AutoSend() {
		t.Error("auto_send_on_silence should default to enabled")
	}
	if p.Device() != -1 {
		t.Errorf("device = %d, want -1 (system default)", p.Device())
	}

	h := cfg.Hotkey
	if !h.IsEnabled() {
		t.Error("hotkey should default to enabled")
	}
	if h.Binding != "ctrl+shift+s" {
		t.Errorf("binding = %q, want ctrl+shift+s", h.Binding)
	}
	if h.Mode != HotkeyToggle {
		t.Errorf("mode = %q, want toggle", h.Mode)
	}
	if h.Debounce() != 200*time.Millisecond {
		t.Errorf("debounce = %v, want 200ms", h.Debounce())
	}

	if cfg.Providers.VAD.Name != "energy" {
		t.Errorf("vad name = %q, want energy", cfg.Providers.VAD.Name)
	}
	if cfg.Providers.Wake.Name != "porcupine" {
		t.Errorf("wake name = %q, want porcupine", cfg.Providers.Wake.Name)
	}
	if cfg.Providers.Source.Name != "portaudio" {
		t.Errorf("source name = %q, want portaudio", cfg.Providers.Source.Name)
	}

	if cfg.Chat.ReconnectMin() != 500*time.Millisecond {
		t.Errorf("reconnect_min = %v, want 500ms", cfg.Chat.ReconnectMin())
	}
	if cfg.Chat.ReconnectMax() != 15*time.Second {
		t.Errorf("reconnect_max = %v, want 15s", cfg.Chat.ReconnectMax())
	}

	if !cfg.Sound.Enabled() {
		t.Error("sound cues should default to enabled")
	}
	if cfg.Sound.Volume != 0.2 {
		t.Errorf("volume = %v, want 0.2", cfg.Sound.Volume)
	}
	if cfg.Sound.OutputDevice() != -1 {
		t.Errorf("output device = %d, want -1 (system default)", cfg.Sound.OutputDevice())
	}
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	yaml := `
server:
  listen_addr: ":9000"
  log_level: debug
pipeline:
  device_id: 2
  sample_rate: 16000
  frame_duration_ms: 20
  silence_timeout_ms: 800
  grace_window_ms: 100
  max_session_ms: 20000
  no_speech_timeout_ms: 5000
  wake_word_enabled: false
  activation_threshold: 0.7
  cooldown_ms: 3000
  auto_send_on_silence: false
hotkey:
  enabled: true
  binding: ctrl+shift+r
  mode: hold_to_talk
  debounce_ms: 100
providers:
  stt:
    name: whisper
    base_url: http://localhost:8080
    model: small
  stt_fallback:
    - name: openai
      api_key: sk-test
      model: whisper-1
  vad:
    name: energy
  wake:
    name: porcupine
    api_key: pv-key
    options:
      keyword_paths:
        - /models/sombra.ppn
      sensitivity: 0.6
  source:
    name: portaudio
chat:
  events_url: ws://localhost:9100/events
  token: secret
sound:
  cues_enabled: false
  output_device_id: 1
  volume: 0.5
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Pipeline.Device() != 2 {
		t.Errorf("device = %d, want 2", cfg.Pipeline.Device())
	}
	if cfg.Pipeline.FrameDuration() != 20*time.Millisecond {
		t.Errorf("frame duration = %v, want 20ms", cfg.Pipeline.FrameDuration())
	}
	if cfg.Pipeline.SilenceTimeout() != 800*time.Millisecond {
		t.Errorf("silence timeout = %v, want 800ms", cfg.Pipeline.SilenceTimeout())
	}
	if cfg.Pipeline.WakeEnabled() {
		t.Error("wake word should be disabled")
	}
	if cfg.Pipeline.AutoSend() {
		t.Error("auto send should be disabled")
	}
	if cfg.Hotkey.Mode != HotkeyHoldToTalk {
		t.Errorf("hotkey mode = %q, want hold_to_talk", cfg.Hotkey.Mode)
	}
	if len(cfg.Providers.STTFallback) != 1 || cfg.Providers.STTFallback[0].Name != "openai" {
		t.Errorf("stt_fallback = %+v, want one openai entry", cfg.Providers.STTFallback)
	}
	if cfg.Sound.Enabled() {
		t.Error("sound cues should be disabled")
	}
	if cfg.Sound.OutputDevice() != 1 {
		t.Errorf("output device = %d, want 1", cfg.Sound.OutputDevice())
	}

	paths, ok := cfg.Providers.Wake.StringSliceOption("keyword_paths")
	if !ok || len(paths) != 1 || paths[0] != "/models/sombra.ppn" {
		t.Errorf("keyword_paths = %v ok=%v", paths, ok)
	}
	sens, ok := cfg.Providers.Wake.FloatOption("sensitivity")
	if !ok || sens != 0.6 {
		t.Errorf("sensitivity = %v ok=%v, want 0.6", sens, ok)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	yaml := `
providers:
  stt:
    name: scribe
pipelines:
  sample_rate: 16000
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: verbose\nproviders:\n  stt:\n    name: scribe\n",
			want: "log_level",
		},
		{
			name: "tls missing key",
			yaml: "server:\n  tls:\n    cert_file: /a.pem\nproviders:\n  stt:\n    name: scribe\n",
			want: "tls",
		},
		{
			name: "frame duration out of range",
			yaml: "pipeline:\n  frame_duration_ms: 500\nproviders:\n  stt:\n    name: scribe\n",
			want: "frame_duration_ms",
		},
		{
			name: "silence shorter than a frame",
			yaml: "pipeline:\n  frame_duration_ms: 32\n  silence_timeout_ms: 10\nproviders:\n  stt:\n    name: scribe\n",
			want: "silence_timeout_ms",
		},
		{
			name: "max session below silence timeout",
			yaml: "pipeline:\n  silence_timeout_ms: 1500\n  max_session_ms: 1000\nproviders:\n  stt:\n    name: scribe\n",
			want: "max_session_ms",
		},
		{
			name: "activation threshold out of range",
			yaml: "pipeline:\n  activation_threshold: 1.5\nproviders:\n  stt:\n    name: scribe\n",
			want: "activation_threshold",
		},
		{
			name: "bad hotkey mode",
			yaml: "hotkey:\n  mode: push\nproviders:\n  stt:\n    name: scribe\n",
			want: "hotkey.mode",
		},
		{
			name: "missing stt provider",
			yaml: "pipeline:\n  sample_rate: 16000\n",
			want: "providers.stt.name",
		},
		{
			name: "fallback entry without name",
			yaml: "providers:\n  stt:\n    name: scribe\n  stt_fallback:\n    - api_key: x\n",
			want: "stt_fallback[0]",
		},
		{
			name: "bad chat url",
			yaml: "providers:\n  stt:\n    name: scribe\nchat:\n  events_url: localhost:9100\n",
			want: "chat.events_url",
		},
		{
			name: "volume out of range",
			yaml: "providers:\n  stt:\n    name: scribe\nsound:\n  volume: 1.5\n",
			want: "sound.volume",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestProviderEntry_Options(t *testing.T) {
	e := ProviderEntry{Options: map[string]any{
		"model_path": "/models/porcupine_params.pv",
		"sensitivity": 0.7,
		"hangover":   5,
		"enabled":    true,
		"phrases":    []any{"sombra", "ascolta"},
		"mixed":      []any{"ok", 3},
	}}

	if s, ok := e.StringOption("model_path"); !ok || s != "/models/porcupine_params.pv" {
		t.Errorf("StringOption = %q, %v", s, ok)
	}
	if _, ok := e.StringOption("missing"); ok {
		t.Error("StringOption should miss for absent key")
	}
	if _, ok := e.StringOption("sensitivity"); ok {
		t.Error("StringOption should miss for non-string value")
	}

	if f, ok := e.FloatOption("sensitivity"); !ok || f != 0.7 {
		t.Errorf("FloatOption = %v, %v", f, ok)
	}
	if f, ok := e.FloatOption("hangover"); !ok || f != 5 {
		t.Errorf("FloatOption(int) = %v, %v", f, ok)
	}

	if b, ok := e.BoolOption("enabled"); !ok || !b {
		t.Errorf("BoolOption = %v, %v", b, ok)
	}

	if ss, ok := e.StringSliceOption("phrases"); !ok || len(ss) != 2 || ss[1] != "ascolta" {
		t.Errorf("StringSliceOption = %v, %v", ss, ok)
	}
	if _, ok := e.StringSliceOption("mixed"); ok {
		t.Error("StringSliceOption should miss for mixed-type list")
	}
}

func TestHotkeyModeIsValid(t *testing.T) {
	tests := []struct {
		mode HotkeyMode
		want bool
	}{
		{HotkeyToggle, true},
		{HotkeyHoldToTalk, true},
		{HotkeyMode("push"), false},
		{HotkeyMode(""), false},
	}
	for _, tt := range tests {
		if got := tt.mode.IsValid(); got != tt.want {
			t.Errorf("HotkeyMode(%q).IsValid() = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestLogLevelLevel(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  slog.Level
	}{
		{LogDebug, slog.LevelDebug},
		{LogInfo, slog.LevelInfo},
		{LogWarn, slog.LevelWarn},
		{LogError, slog.LevelError},
		{LogLevel("verbose"), slog.LevelInfo},
		{LogLevel(""), slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.level.Level(); got != tt.want {
			t.Errorf("LogLevel(%q).Level() = %v, want %v", tt.level, got, tt.want)
		}
	}
}
