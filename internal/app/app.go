// Package app wires all Ascolta subsystems into a running capture pipeline.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture pipeline until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock providers via the Providers struct and functional
// options (WithHotkeyListener, etc.). A nil provider slot runs the pipeline
// without that stage.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lodrian/ascolta/internal/capture"
	"github.com/lodrian/ascolta/internal/chat"
	"github.com/lodrian/ascolta/internal/config"
	"github.com/lodrian/ascolta/internal/control"
	"github.com/lodrian/ascolta/internal/health"
	"github.com/lodrian/ascolta/internal/hotkey"
	"github.com/lodrian/ascolta/internal/resilience"
	"github.com/lodrian/ascolta/internal/sound"
	"github.com/lodrian/ascolta/internal/transcript"
	"github.com/lodrian/ascolta/pkg/audio"
	"github.com/lodrian/ascolta/pkg/audio/portaudio"
	"github.com/lodrian/ascolta/pkg/provider/stt"
	"github.com/lodrian/ascolta/pkg/provider/vad"
	"github.com/lodrian/ascolta/pkg/provider/wake"
)

const (
	// framePathBuffer sizes the lossless frame channel feeding the
	// controller. At the default 32 ms frame duration this rides out about
	// two seconds of controller lag before the fanout blocks.
	framePathBuffer = 64

	// tapBuffer sizes the lossy classifier and wake taps. A model lagging
	// further than this loses frames to scan, never session audio.
	tapBuffer = 32

	// Default session thresholds when the provider entry carries none.
	defaultSpeechThreshold  = 0.5
	defaultSilenceThreshold = 0.35
	defaultWakeSensitivity  = 0.5
)

// NamedSTT pairs a fallback transcription backend with its config name.
type NamedSTT struct {
	Name     string
	Provider stt.Provider
}

// Providers holds one value per provider slot. Nil means the slot is not
// configured. Populated by main.go via the config registry.
type Providers struct {
	// STT transcribes finalized sessions. Required.
	STT stt.Provider

	// STTName labels the primary backend in logs and breaker state.
	STTName string

	// STTFallbacks are tried in order when the primary fails.
	STTFallbacks []NamedSTT

	// VAD classifies frames as speech or silence. Nil leaves sessions
	// under manual control only.
	VAD vad.Engine

	// Wake spots the wake phrase in the stream. Nil disables wake capture.
	Wake wake.Engine

	// Source is the exclusive capture-device handle. Required.
	Source audio.Source
}

// App owns all subsystem lifetimes and orchestrates the Ascolta pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	chain      *resilience.STTChain
	controller *capture.Controller
	classifier *capture.Classifier
	wake       *capture.WakeDetector
	hotkeys    *hotkey.Listener
	notifier   *chat.Notifier
	server     *control.Server
	player     *sound.Player
	watcher    *config.Watcher

	configPath string
	logLevel   *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHotkeyListener injects a hotkey listener instead of creating one from
// config. An injected listener is started in Run even when the config
// disables hotkeys; the caller owns its teardown.
func WithHotkeyListener(l *hotkey.Listener) Option {
	return func(a *App) { a.hotkeys = l }
}

// WithConfigPath enables the config-file watcher on path. Edits to the file
// switch the log level in place and raise restart-required notifications
// for everything else.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithLogLevel hands the watcher the handler's level var so log-level edits
// apply without a restart.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// degradation is a component that failed to initialise but does not stop
// the pipeline. Reported through the controller once it exists.
type degradation struct {
	component string
	err       error
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles.
//
// A missing source or transcription provider is fatal. A VAD or wake model
// that fails to open is not: the pipeline starts anyway and reports the
// component as degraded.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Source == nil {
		return nil, errors.New("app: an audio source is required")
	}
	if providers.STT == nil {
		return nil, errors.New("app: a transcription provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Transcription chain ───────────────────────────────────────────
	a.initChain()

	// ── 2. Capture pipeline ──────────────────────────────────────────────
	if err := a.initCapture(); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	// ── 3. Hotkey listener ───────────────────────────────────────────────
	if err := a.initHotkeys(); err != nil {
		return nil, fmt.Errorf("app: init hotkeys: %w", err)
	}

	// ── 4. Chat notifier ─────────────────────────────────────────────────
	a.notifier = chat.New(chat.Config{
		URL:        cfg.Chat.EventsURL,
		Token:      cfg.Chat.Token,
		Sink:       a.controller,
		Backoff:    cfg.Chat.ReconnectMin(),
		MaxBackoff: cfg.Chat.ReconnectMax(),
	})

	// ── 5. Control surface ───────────────────────────────────────────────
	a.initServer()

	// ── 6. Sound cues ────────────────────────────────────────────────────
	a.player = sound.New(sound.Config{
		Enabled:        cfg.Sound.Enabled(),
		OutputDeviceID: cfg.Sound.OutputDeviceID,
		Volume:         cfg.Sound.Volume,
	})

	// ── 7. Config watcher ────────────────────────────────────────────────
	if err := a.initWatcher(); err != nil {
		return nil, fmt.Errorf("app: init config watcher: %w", err)
	}

	// The source closes last so every consumer has drained by then.
	a.closers = append(a.closers, providers.Source.Close)

	return a, nil
}

// Controller exposes the capture controller for tests and embedders.
func (a *App) Controller() *capture.Controller { return a.controller }

// ─── Init helpers ────────────────────────────────────────────────────────────

// initChain stacks the configured transcription backends behind one
// stt.Provider face with a circuit breaker per backend.
func (a *App) initChain() {
	name := a.providers.STTName
	if name == "" {
		name = a.cfg.Providers.STT.Name
	}
	chain := resilience.NewSTTChain(a.providers.STT, name, resilience.FallbackConfig{})
	for _, fb := range a.providers.STTFallbacks {
		chain.AddFallback(fb.Name, fb.Provider)
		slog.Info("registered transcription fallback", "name", fb.Name)
	}
	a.chain = chain
}

// initCapture opens the model sessions and builds the classifier, wake
// detector, dispatcher and controller. Model failures degrade instead of
// aborting: the pipeline still captures under manual triggers.
func (a *App) initCapture() error {
	pipe := a.cfg.Pipeline
	var degraded []degradation

	if a.providers.VAD != nil {
		sess, err := a.providers.VAD.NewSession(vad.Config{
			SampleRate:       pipe.SampleRate,
			FrameSizeMs:      pipe.FrameDurationMs,
			SpeechThreshold:  floatOption(a.cfg.Providers.VAD, "speech_threshold", defaultSpeechThreshold),
			SilenceThreshold: floatOption(a.cfg.Providers.VAD, "silence_threshold", defaultSilenceThreshold),
		})
		if err != nil {
			slog.Warn("vad session failed, capture degrades to manual triggers",
				"provider", a.cfg.Providers.VAD.Name, "err", err)
			degraded = append(degraded, degradation{"vad", fmt.Errorf("%w: %v", capture.ErrModelUnavailable, err)})
		} else {
			a.classifier = capture.NewClassifier(capture.ClassifierConfig{
				Session:       sess,
				Provider:      a.cfg.Providers.VAD.Name,
				FrameDuration: pipe.FrameDuration(),
			})
			a.closers = append(a.closers, a.classifier.Close)
		}
	}

	var wakeSess wake.Session
	if pipe.WakeEnabled() && a.providers.Wake != nil {
		sess, err := a.providers.Wake.NewSession(wake.Config{
			SampleRate:  pipe.SampleRate,
			Sensitivity: float32(floatOption(a.cfg.Providers.Wake, "sensitivity", defaultWakeSensitivity)),
		})
		if err != nil {
			slog.Warn("wake session failed, wake word disabled",
				"provider", a.cfg.Providers.Wake.Name, "err", err)
			degraded = append(degraded, degradation{"wake", fmt.Errorf("%w: %v", capture.ErrModelUnavailable, err)})
		} else {
			wakeSess = sess
		}
	}
	a.wake = capture.NewWakeDetector(capture.WakeConfig{
		Session:   wakeSess,
		Provider:  a.cfg.Providers.Wake.Name,
		Threshold: pipe.ActivationThreshold,
		Cooldown:  pipe.Cooldown(),
	})
	a.closers = append(a.closers, a.wake.Close)

	var trimmer *transcript.Trimmer
	if phrases, ok := a.cfg.Providers.Wake.StringSliceOption("phrases"); ok && len(phrases) > 0 {
		trimmer = transcript.NewTrimmer(phrases)
	}
	language, _ := a.cfg.Providers.STT.StringOption("language")
	hints, _ := a.cfg.Providers.STT.StringSliceOption("hints")

	a.controller = capture.NewController(capture.ControllerConfig{
		Params: capture.Params{
			FrameDuration:   pipe.FrameDuration(),
			SilenceTimeout:  pipe.SilenceTimeout(),
			GraceWindow:     pipe.GraceWindow(),
			MaxSession:      pipe.MaxSession(),
			NoSpeechTimeout: pipe.NoSpeechTimeout(),
			AutoSend:        pipe.AutoSend(),
			HotkeyMode:      a.cfg.Hotkey.Mode,
		},
		Dispatcher: capture.NewDispatcher(capture.DispatcherConfig{
			Transcriber: a.chain,
			Trimmer:     trimmer,
			Language:    language,
			Hints:       hints,
		}),
		Wake:         a.wake,
		WakeSuppress: pipe.Cooldown(),
	})

	for _, d := range degraded {
		a.controller.NotifyDegraded(d.component, d.err)
	}
	return nil
}

// initHotkeys parses the configured key combination. A binding that does
// not parse is a config error and fatal; OS registration waits until Run.
func (a *App) initHotkeys() error {
	if a.hotkeys != nil || !a.cfg.Hotkey.IsEnabled() {
		return nil
	}
	l, err := hotkey.New(a.cfg.Hotkey)
	if err != nil {
		return err
	}
	a.hotkeys = l
	a.closers = append(a.closers, func() error {
		l.Stop()
		return nil
	})
	return nil
}

// initServer builds the control surface with health checks bound to the
// controller loop and the capture device.
func (a *App) initServer() {
	cfg := control.Config{
		Addr:    a.cfg.Server.ListenAddr,
		Capture: a.controller,
		Devices: portaudio.Devices,
		Health: health.New(
			health.Controller(a.controller),
			health.CaptureDevice(a.controller.Status),
		),
	}
	if tls := a.cfg.Server.TLS; tls != nil {
		cfg.CertFile = tls.CertFile
		cfg.KeyFile = tls.KeyFile
	}
	a.server = control.New(cfg)
}

// initWatcher starts the config-file poller when a path was provided.
func (a *App) initWatcher() error {
	if a.configPath == "" {
		return nil
	}
	w, err := config.NewWatcher(a.configPath, func(d config.Diff, _ *config.Config) {
		if d.LogLevelChanged && a.logLevel != nil {
			a.logLevel.Set(d.NewLogLevel.Level())
			slog.Info("log level switched", "level", d.NewLogLevel)
		}
		if len(d.RestartRequired) > 0 {
			a.controller.NotifyRestartRequired(d.RestartRequired)
		}
	})
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

// floatOption reads a float from a provider entry's options block.
func floatOption(e config.ProviderEntry, key string, def float64) float64 {
	if v, ok := e.FloatOption(key); ok {
		return v
	}
	return def
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the pipeline and blocks until ctx is cancelled or a stage
// fails. On cancellation it closes the source, which unwinds the fanout and
// every frame consumer; the frame path drains completely before exiting so
// a trailing utterance is never cut off by the shutdown itself.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// ── Frame fanout ─────────────────────────────────────────────────────
	// Taps must be registered before the fanout runs.
	fan := audio.NewFanout(a.providers.Source.Frames(), framePathBuffer)
	frames := fan.Primary()
	var vadTap, wakeTap <-chan audio.Frame
	if a.classifier != nil {
		vadTap = fan.Tap("vad", tapBuffer)
	}
	if a.wake.Enabled() {
		wakeTap = fan.Tap("wake", tapBuffer)
	}
	g.Go(func() error {
		fan.Run()
		return nil
	})

	// The fanout exits only when the source stream ends; closing the
	// source is what propagates cancellation into the frame path.
	g.Go(func() error {
		<-gctx.Done()
		if err := a.providers.Source.Close(); err != nil {
			slog.Warn("source close", "err", err)
		}
		return gctx.Err()
	})

	// ── Frame consumers ──────────────────────────────────────────────────
	g.Go(func() error { return a.pumpFrames(gctx, frames) })
	if a.classifier != nil {
		g.Go(func() error { return a.classifier.Run(gctx, vadTap, a.controller.Events()) })
	}
	if a.wake.Enabled() {
		g.Go(func() error { return a.wake.Run(gctx, wakeTap, a.controller.Events()) })
	}

	// ── Hotkeys ──────────────────────────────────────────────────────────
	// Registration can fail (another process owns the combination, no
	// display server); the pipeline keeps running without it.
	if a.hotkeys != nil {
		if err := a.hotkeys.Start(); err != nil {
			slog.Warn("hotkey registration failed, continuing without", "err", err)
			a.controller.NotifyDegraded("hotkey", err)
		} else {
			g.Go(func() error { return a.pumpIntents(gctx, a.hotkeys.Intents()) })
		}
	}

	// ── Control loop and surfaces ────────────────────────────────────────
	g.Go(func() error { return a.controller.Run(gctx) })
	g.Go(func() error { return a.server.Run(gctx) })
	g.Go(func() error { return a.notifier.Run(gctx) })
	g.Go(func() error { return a.player.Run(gctx, a.controller) })

	slog.Info("pipeline running",
		"vad", a.classifier != nil,
		"wake", a.wake.Enabled(),
		"hotkey", a.hotkeys != nil,
		"chat", a.notifier.Enabled(),
	)
	return g.Wait()
}

// pumpFrames feeds the lossless frame path. It drains until the source
// stream closes — not until ctx is done — so queued audio always reaches
// the controller ahead of the shutdown. A stream that ends on its own is a
// lost device: the controller is told and the pipeline stays up for the
// control surface, with readiness failing until a restart.
func (a *App) pumpFrames(ctx context.Context, frames <-chan audio.Frame) error {
	for f := range frames {
		// Submit only fails when the controller or the run context is
		// gone; keep draining so the fanout never blocks.
		_ = a.controller.Submit(ctx, capture.Event{Kind: capture.EventFrame, Frame: f})
	}
	if err := a.providers.Source.Err(); err != nil {
		slog.Error("capture stream ended", "err", err)
		_ = a.controller.Submit(ctx, capture.Event{Kind: capture.EventDeviceLost})
	}
	return nil
}

// pumpIntents forwards hotkey gestures to the controller.
func (a *App) pumpIntents(ctx context.Context, intents <-chan hotkey.Intent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-intents:
			if !ok {
				return nil
			}
			if err := a.submitIntent(ctx, in); err != nil {
				if errors.Is(err, capture.ErrControllerClosed) {
					return nil
				}
				slog.Warn("hotkey intent dropped", "kind", in.Kind, "err", err)
			}
		}
	}
}

func (a *App) submitIntent(ctx context.Context, in hotkey.Intent) error {
	switch in.Kind {
	case hotkey.IntentStart:
		return a.controller.Start(ctx)
	case hotkey.IntentStop:
		return a.controller.Stop(ctx)
	default:
		return a.controller.Toggle(ctx)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
