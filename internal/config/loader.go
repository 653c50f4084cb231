package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":    {"scribe", "whisper", "whisper-native", "openai"},
	"vad":    {"energy"},
	"wake":   {"porcupine"},
	"source": {"portaudio", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults replaces zero-value fields with the documented defaults.
// Pointer fields distinguish "unset" from an explicit false / 0.
func applyDefaults(cfg *Config) {
	boolPtr := func(v bool) *bool { return &v }

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1:8723"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	p := &cfg.Pipeline
	if p.SampleRate == 0 {
		p.SampleRate = 16000
	}
	if p.FrameDurationMs == 0 {
		p.FrameDurationMs = 32
	}
	if p.SilenceTimeoutMs == 0 {
		p.SilenceTimeoutMs = 1500
	}
	if p.GraceWindowMs == 0 {
		p.GraceWindowMs = 250
	}
	if p.MaxSessionMs == 0 {
		p.MaxSessionMs = 30000
	}
	if p.NoSpeechTimeoutMs == 0 {
		p.NoSpeechTimeoutMs = 10000
	}
	if p.WakeWordEnabled == nil {
		p.WakeWordEnabled = boolPtr(true)
	}
	if p.ActivationThreshold == 0 {
		p.ActivationThreshold = 0.5
	}
	if p.CooldownMs == 0 {
		p.CooldownMs = 2000
	}
	if p.AutoSendOnSilence == nil {
		p.AutoSendOnSilence = boolPtr(true)
	}

	h := &cfg.Hotkey
	if h.Enabled == nil {
		h.Enabled = boolPtr(true)
	}
	if h.Binding == "" {
		h.Binding = "ctrl+shift+s"
	}
	if h.Mode == "" {
		h.Mode = HotkeyToggle
	}
	if h.DebounceMs == 0 {
		h.DebounceMs = 200
	}

	pr := &cfg.Providers
	if pr.VAD.Name == "" {
		pr.VAD.Name = "energy"
	}
	if pr.Wake.Name == "" {
		pr.Wake.Name = "porcupine"
	}
	if pr.Source.Name == "" {
		pr.Source.Name = "portaudio"
	}

	c := &cfg.Chat
	if c.ReconnectMinMs == 0 {
		c.ReconnectMinMs = 500
	}
	if c.ReconnectMaxMs == 0 {
		c.ReconnectMaxMs = 15000
	}

	s := &cfg.Sound
	if s.CuesEnabled == nil {
		s.CuesEnabled = boolPtr(true)
	}
	if s.Volume == 0 {
		s.Volume = 0.2
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Pipeline
	p := cfg.Pipeline
	if p.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.sample_rate %d must be positive", p.SampleRate))
	}
	if p.FrameDurationMs < 5 || p.FrameDurationMs > 100 {
		errs = append(errs, fmt.Errorf("pipeline.frame_duration_ms %d is out of range [5, 100]", p.FrameDurationMs))
	}
	if p.SilenceTimeoutMs < p.FrameDurationMs {
		errs = append(errs, fmt.Errorf("pipeline.silence_timeout_ms %d must be at least one frame (%d ms)", p.SilenceTimeoutMs, p.FrameDurationMs))
	}
	if p.GraceWindowMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.grace_window_ms %d must not be negative", p.GraceWindowMs))
	}
	if p.MaxSessionMs <= p.SilenceTimeoutMs {
		errs = append(errs, fmt.Errorf("pipeline.max_session_ms %d must exceed silence_timeout_ms %d", p.MaxSessionMs, p.SilenceTimeoutMs))
	}
	if p.NoSpeechTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.no_speech_timeout_ms %d must not be negative (0 disables)", p.NoSpeechTimeoutMs))
	}
	if p.ActivationThreshold < 0 || p.ActivationThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.activation_threshold %.2f is out of range [0, 1]", p.ActivationThreshold))
	}
	if p.CooldownMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.cooldown_ms %d must not be negative", p.CooldownMs))
	}

	// Hotkey
	if cfg.Hotkey.Mode != "" && !cfg.Hotkey.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("hotkey.mode %q is invalid; valid values: toggle, hold_to_talk", cfg.Hotkey.Mode))
	}
	if cfg.Hotkey.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("hotkey.debounce_ms %d must not be negative", cfg.Hotkey.DebounceMs))
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required; captured audio has nowhere to go without a transcription backend"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, entry := range cfg.Providers.STTFallback {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallback[%d].name is required", i))
			continue
		}
		validateProviderName("stt", entry.Name)
	}
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("wake", cfg.Providers.Wake.Name)
	validateProviderName("source", cfg.Providers.Source.Name)

	if cfg.Pipeline.WakeEnabled() && cfg.Providers.Wake.Name == "porcupine" && cfg.Providers.Wake.APIKey == "" {
		slog.Warn("wake word is enabled but providers.wake.api_key is empty; the detector will not start and capture degrades to manual triggers")
	}

	// Chat
	if url := cfg.Chat.EventsURL; url != "" {
		if !hasAnyPrefix(url, "ws://", "wss://", "http://", "https://") {
			errs = append(errs, fmt.Errorf("chat.events_url %q must start with ws://, wss://, http:// or https://", url))
		}
	}

	// Sound
	if cfg.Sound.Volume < 0 || cfg.Sound.Volume > 1 {
		errs = append(errs, fmt.Errorf("sound.volume %.2f is out of range [0, 1]", cfg.Sound.Volume))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
