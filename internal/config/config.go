// Package config provides the configuration schema, loader, and provider
// registry for the Ascolta capture pipeline.
//
// The pipeline section is an immutable snapshot: it is loaded once at startup
// and never mutated while the process runs. A config-file change detected at
// runtime only raises a restart-required notification (see [Watcher]).
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the Ascolta server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto its slog equivalent. Unknown values map to Info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HotkeyMode selects how the global hotkey drives capture.
type HotkeyMode string

const (
	// HotkeyToggle starts capture on one press and stops it on the next.
	HotkeyToggle HotkeyMode = "toggle"

	// HotkeyHoldToTalk captures only while the combination is held down.
	HotkeyHoldToTalk HotkeyMode = "hold_to_talk"
)

// IsValid reports whether m is a recognised hotkey mode.
func (m HotkeyMode) IsValid() bool {
	return m == HotkeyToggle || m == HotkeyHoldToTalk
}

// Config is the root configuration structure for Ascolta.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Hotkey    HotkeyConfig    `yaml:"hotkey"`
	Providers ProvidersConfig `yaml:"providers"`
	Chat      ChatConfig      `yaml:"chat"`
	Sound     SoundConfig     `yaml:"sound"`
}

// ServerConfig holds network and logging settings for the control surface.
type ServerConfig struct {
	// ListenAddr is the TCP address the control server listens on
	// (e.g., "127.0.0.1:8723").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// PipelineConfig is the immutable capture-pipeline snapshot. Durations are
// expressed in milliseconds in YAML; use the accessor methods for
// [time.Duration] values.
type PipelineConfig struct {
	// DeviceID selects the capture device by index. Nil means the system
	// default input device.
	DeviceID *int `yaml:"device_id"`

	// SampleRate is the pipeline sample rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameDurationMs is the length of one capture frame. Default: 32
	// (512 samples at 16 kHz, the wake engine's native framing).
	FrameDurationMs int `yaml:"frame_duration_ms"`

	// SilenceTimeoutMs is the trailing-silence span that auto-finalizes a
	// session. Default: 1500.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`

	// GraceWindowMs is how long after a finalize trigger frames are still
	// appended before the flush snapshot is taken. Default: 250.
	GraceWindowMs int `yaml:"grace_window_ms"`

	// MaxSessionMs caps the length of a single capture session. Default: 30000.
	MaxSessionMs int `yaml:"max_session_ms"`

	// NoSpeechTimeoutMs discards a wake-triggered session that never produced
	// a speech label. 0 disables the check. Default: 10000.
	NoSpeechTimeoutMs int `yaml:"no_speech_timeout_ms"`

	// WakeWordEnabled turns the wake-word detector on. Default: true.
	WakeWordEnabled *bool `yaml:"wake_word_enabled"`

	// ActivationThreshold is the minimum detection confidence accepted by the
	// wake debouncer, in [0, 1]. Default: 0.5.
	ActivationThreshold float64 `yaml:"activation_threshold"`

	// CooldownMs suppresses repeat wake detections after an accepted one.
	// Default: 2000.
	CooldownMs int `yaml:"cooldown_ms"`

	// AutoSendOnSilence finalizes manually-started sessions on trailing
	// silence too. Wake-triggered sessions always finalize on silence.
	// Default: true.
	AutoSendOnSilence *bool `yaml:"auto_send_on_silence"`
}

// Device returns the configured capture device index, or -1 for the system
// default.
func (p PipelineConfig) Device() int {
	if p.DeviceID == nil {
		return -1
	}
	return *p.DeviceID
}

// WakeEnabled reports whether the wake-word detector should run.
func (p PipelineConfig) WakeEnabled() bool {
	return p.WakeWordEnabled == nil || *p.WakeWordEnabled
}

// AutoSend reports whether manual sessions finalize on trailing silence.
func (p PipelineConfig) AutoSend() bool {
	return p.AutoSendOnSilence == nil || *p.AutoSendOnSilence
}

// FrameDuration returns the frame length as a [time.Duration].
func (p PipelineConfig) FrameDuration() time.Duration {
	return time.Duration(p.FrameDurationMs) * time.Millisecond
}

// SilenceTimeout returns the auto-finalize silence span.
func (p PipelineConfig) SilenceTimeout() time.Duration {
	return time.Duration(p.SilenceTimeoutMs) * time.Millisecond
}

// GraceWindow returns the post-trigger append window.
func (p PipelineConfig) GraceWindow() time.Duration {
	return time.Duration(p.GraceWindowMs) * time.Millisecond
}

// MaxSession returns the session length cap.
func (p PipelineConfig) MaxSession() time.Duration {
	return time.Duration(p.MaxSessionMs) * time.Millisecond
}

// NoSpeechTimeout returns the false-activation discard window; zero disables.
func (p PipelineConfig) NoSpeechTimeout() time.Duration {
	return time.Duration(p.NoSpeechTimeoutMs) * time.Millisecond
}

// Cooldown returns the wake debounce window.
func (p PipelineConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownMs) * time.Millisecond
}

// HotkeyConfig configures the global push-to-talk hotkey.
type HotkeyConfig struct {
	// Enabled turns the hotkey listener on. Default: true.
	Enabled *bool `yaml:"enabled"`

	// Binding is the key combination, e.g. "ctrl+shift+s". Only ctrl and
	// shift modifiers are accepted (the portable subset).
	Binding string `yaml:"binding"`

	// Mode selects toggle or hold-to-talk behaviour. Default: toggle.
	Mode HotkeyMode `yaml:"mode"`

	// DebounceMs coalesces identical intents arriving within the window,
	// covering OS key auto-repeat. Default: 200.
	DebounceMs int `yaml:"debounce_ms"`
}

// IsEnabled reports whether the hotkey listener should run.
func (h HotkeyConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// Debounce returns the intent-coalescing window.
func (h HotkeyConfig) Debounce() time.Duration {
	return time.Duration(h.DebounceMs) * time.Millisecond
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each entry selects a named factory registered in [Registry].
type ProvidersConfig struct {
	// STT is the primary transcription backend.
	STT ProviderEntry `yaml:"stt"`

	// STTFallback lists additional transcription backends tried in order when
	// the primary fails.
	STTFallback []ProviderEntry `yaml:"stt_fallback"`

	// VAD is the speech/silence classifier backend.
	VAD ProviderEntry `yaml:"vad"`

	// Wake is the wake-word detector backend.
	Wake ProviderEntry `yaml:"wake"`

	// Source is the audio capture backend.
	Source ProviderEntry `yaml:"source"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "scribe",
	// "whisper-native").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "scribe_v1",
	// "whisper-1", or a model file path for local engines).
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or
	// lists.
	Options map[string]any `yaml:"options"`
}

// StringOption returns the named option as a string.
func (e ProviderEntry) StringOption(key string) (string, bool) {
	v, ok := e.Options[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// FloatOption returns the named option as a float64. YAML integers are
// accepted and converted.
func (e ProviderEntry) FloatOption(key string) (float64, bool) {
	v, ok := e.Options[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// BoolOption returns the named option as a bool.
func (e ProviderEntry) BoolOption(key string) (bool, bool) {
	v, ok := e.Options[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// StringSliceOption returns the named option as a string slice. YAML lists
// decode as []any; entries that are not strings fail the lookup.
func (e ProviderEntry) StringSliceOption(key string) ([]string, bool) {
	v, ok := e.Options[key]
	if !ok {
		return nil, false
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// ChatConfig points the response-phase notifier at the chat backend's event
// stream. An empty URL disables the notifier.
type ChatConfig struct {
	// EventsURL is the WebSocket endpoint emitting response lifecycle events
	// (ws://, wss://, http:// and https:// are accepted).
	EventsURL string `yaml:"events_url"`

	// Token is sent as a Bearer token when non-empty.
	Token string `yaml:"token"`

	// ReconnectMinMs is the initial reconnect backoff. Default: 500.
	ReconnectMinMs int `yaml:"reconnect_min_ms"`

	// ReconnectMaxMs caps the reconnect backoff. Default: 15000.
	ReconnectMaxMs int `yaml:"reconnect_max_ms"`
}

// ReconnectMin returns the initial reconnect backoff.
func (c ChatConfig) ReconnectMin() time.Duration {
	return time.Duration(c.ReconnectMinMs) * time.Millisecond
}

// ReconnectMax returns the reconnect backoff cap.
func (c ChatConfig) ReconnectMax() time.Duration {
	return time.Duration(c.ReconnectMaxMs) * time.Millisecond
}

// SoundConfig controls the audible capture cues.
type SoundConfig struct {
	// CuesEnabled plays short tones on capture start / finalize / cancel.
	// Default: true.
	CuesEnabled *bool `yaml:"cues_enabled"`

	// OutputDeviceID selects the playback device by index. Nil means the
	// system default output device.
	OutputDeviceID *int `yaml:"output_device_id"`

	// Volume scales cue amplitude in [0, 1]. Default: 0.2.
	Volume float64 `yaml:"volume"`
}

// Enabled reports whether capture cues should play.
func (s SoundConfig) Enabled() bool {
	return s.CuesEnabled == nil || *s.CuesEnabled
}

// OutputDevice returns the configured playback device index, or -1 for the
// system default.
func (s SoundConfig) OutputDevice() int {
	if s.OutputDeviceID == nil {
		return -1
	}
	return *s.OutputDeviceID
}
