// Command ascolta is the main entry point for the Ascolta voice capture daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lodrian/ascolta/internal/app"
	"github.com/lodrian/ascolta/internal/config"
	"github.com/lodrian/ascolta/internal/observe"
	"github.com/lodrian/ascolta/pkg/audio"
	audiomock "github.com/lodrian/ascolta/pkg/audio/mock"
	paudio "github.com/lodrian/ascolta/pkg/audio/portaudio"
	"github.com/lodrian/ascolta/pkg/provider/stt"
	sttopenai "github.com/lodrian/ascolta/pkg/provider/stt/openai"
	"github.com/lodrian/ascolta/pkg/provider/stt/scribe"
	"github.com/lodrian/ascolta/pkg/provider/stt/whisper"
	"github.com/lodrian/ascolta/pkg/provider/vad"
	"github.com/lodrian/ascolta/pkg/provider/vad/energy"
	"github.com/lodrian/ascolta/pkg/provider/wake"
	"github.com/lodrian/ascolta/pkg/provider/wake/porcupine"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── Flags ─────────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Configuration ─────────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "ascolta: no config at %q (configs/example.yaml is a working starting point)\n", *configPath)
		return 1
	case err != nil:
		fmt.Fprintf(os.Stderr, "ascolta: %v\n", err)
		return 1
	}

	// ── Logging ───────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so the config watcher can switch it at
	// runtime without rebuilding the handler.
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("starting",
		"version", version,
		"config", *configPath,
		"level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	printStartupSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, providers,
		app.WithConfigPath(*configPath),
		app.WithLogLevel(logLevel),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		if providers.Source != nil {
			_ = providers.Source.Close()
		}
		return 1
	}

	slog.Info("ready, press Ctrl+C to stop")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("pipeline exited", "err", runErr)
		return 1
	}

	// ── Shutdown ──────────────────────────────────────────────────────────────
	slog.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(stopCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("shutdown complete")
	return 0
}

// ── Backend wiring ────────────────────────────────────────────────────────────

// builtinProviders lists the backends compiled into this binary, by registry
// kind. Only the startup debug log reads it.
var builtinProviders = map[string][]string{
	"stt":    {"scribe", "whisper", "whisper-native", "openai"},
	"vad":    {"energy"},
	"wake":   {"porcupine"},
	"source": {"portaudio", "mock"},
}

// registerBuiltinProviders fills reg with the factories for every compiled-in
// backend; the loaded config then selects among them by name.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Transcription ─────────────────────────────────────────────────────────

	reg.RegisterSTT("scribe", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []scribe.Option
		if entry.BaseURL != "" {
			opts = append(opts, scribe.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, scribe.WithModelID(entry.Model))
		}
		return scribe.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang, ok := entry.StringOption("language"); ok {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		// model names the ggml file directly; model_path is the fallback
		// spelling for configs that keep model for the served variant.
		modelPath := entry.Model
		if modelPath == "" {
			modelPath, _ = entry.StringOption("model_path")
		}
		var opts []whisper.NativeOption
		if lang, ok := entry.StringOption("language"); ok {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Voice activity ────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── Wake word ─────────────────────────────────────────────────────────────

	reg.RegisterWake("porcupine", func(entry config.ProviderEntry) (wake.Engine, error) {
		keywords, _ := entry.StringSliceOption("keyword_paths")
		modelPath, _ := entry.StringOption("model_path")
		return porcupine.New(entry.APIKey, keywords, modelPath), nil
	})

	// ── Capture sources ───────────────────────────────────────────────────────

	reg.RegisterSource("portaudio", func(entry config.ProviderEntry, pipe config.PipelineConfig) (audio.Source, error) {
		return paudio.Open(paudio.Config{
			DeviceID:      pipe.Device(),
			SampleRate:    pipe.SampleRate,
			FrameDuration: pipe.FrameDuration(),
		})
	})

	// mock emits nothing on its own. It lets the daemon run end to end on
	// machines without a capture device.
	reg.RegisterSource("mock", func(entry config.ProviderEntry, pipe config.PipelineConfig) (audio.Source, error) {
		return audiomock.NewSource(64), nil
	})

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders turns the provider entries in cfg into live instances.
// Transcription and the capture source are load-bearing and abort startup
// when they fail; VAD and wake engines degrade to manual triggers with a
// warning instead.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{STTName: cfg.Providers.STT.Name}

	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.STT = primary
	slog.Info("provider ready", "kind", "stt", "name", ps.STTName)

	for _, entry := range cfg.Providers.STTFallback {
		fb, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("stt fallback %q: %w", entry.Name, err)
		}
		ps.STTFallbacks = append(ps.STTFallbacks, app.NamedSTT{Name: entry.Name, Provider: fb})
		slog.Info("provider ready", "kind", "stt_fallback", "name", entry.Name)
	}

	if name := cfg.Providers.VAD.Name; name != "" {
		eng, err := reg.CreateVAD(cfg.Providers.VAD)
		if err != nil {
			slog.Warn("vad provider unavailable, capture degrades to manual triggers", "name", name, "err", err)
		} else {
			ps.VAD = eng
			slog.Info("provider ready", "kind", "vad", "name", name)
		}
	}

	if name := cfg.Providers.Wake.Name; name != "" && cfg.Pipeline.WakeEnabled() {
		eng, err := reg.CreateWake(cfg.Providers.Wake)
		if err != nil {
			slog.Warn("wake provider unavailable, wake word disabled", "name", name, "err", err)
		} else {
			ps.Wake = eng
			slog.Info("provider ready", "kind", "wake", "name", name)
		}
	}

	src, err := reg.CreateSource(cfg.Providers.Source, cfg.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("capture source %q: %w", cfg.Providers.Source.Name, err)
	}
	ps.Source = src
	slog.Info("capture source open", "name", cfg.Providers.Source.Name, "device", cfg.Pipeline.Device())

	return ps, nil
}

// ── Summary box ───────────────────────────────────────────────────────────────

// printStartupSummary draws the configuration box operators see on stdout
// before the pipeline's first log line.
func printStartupSummary(cfg *config.Config) {
	bar := strings.Repeat("─", 46)
	fmt.Println("┌" + bar + "┐")
	fmt.Printf("│ %-44s │\n", "ascolta "+version)
	fmt.Println("├" + bar + "┤")
	summaryRow("STT", providerLabel(cfg.Providers.STT.Name, cfg.Providers.STT.Model))
	for _, fb := range cfg.Providers.STTFallback {
		summaryRow("STT fallback", providerLabel(fb.Name, fb.Model))
	}
	summaryRow("VAD", providerLabel(cfg.Providers.VAD.Name, ""))
	if cfg.Pipeline.WakeEnabled() {
		summaryRow("Wake word", providerLabel(cfg.Providers.Wake.Name, ""))
	} else {
		summaryRow("Wake word", "off")
	}
	summaryRow("Source", providerLabel(cfg.Providers.Source.Name, ""))
	if cfg.Hotkey.IsEnabled() {
		summaryRow("Hotkey", cfg.Hotkey.Binding)
	} else {
		summaryRow("Hotkey", "off")
	}
	if cfg.Chat.EventsURL != "" {
		summaryRow("Chat events", "on")
	} else {
		summaryRow("Chat events", "off")
	}
	if cfg.Sound.Enabled() {
		summaryRow("Sound cues", "on")
	} else {
		summaryRow("Sound cues", "off")
	}
	if cfg.Server.ListenAddr != "" {
		summaryRow("Control API", cfg.Server.ListenAddr)
	}
	fmt.Println("└" + bar + "┘")
}

func summaryRow(label, value string) {
	if len(value) > 28 {
		value = value[:27] + "…"
	}
	fmt.Printf("│ %-13s : %-28s │\n", label, value)
}

func providerLabel(name, model string) string {
	switch {
	case name == "":
		return "(not configured)"
	case model != "":
		return name + " / " + model
	default:
		return name
	}
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(level.Level())
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}
