package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lodrian/ascolta/internal/observe"
	"github.com/lodrian/ascolta/pkg/audio"
	"github.com/lodrian/ascolta/pkg/provider/wake"
)

// WakeConfig wires a WakeDetector.
type WakeConfig struct {
	// Session is the wake-word session scanning the stream. Nil disables
	// the detector entirely; Scan then never emits and never errors.
	Session wake.Session

	// Provider names the engine for logs and metrics.
	Provider string

	// Threshold is the minimum confidence for a hit to qualify.
	Threshold float64

	// Cooldown is the minimum spacing between emitted detections.
	Cooldown time.Duration

	// Clock defaults to time.Now.
	Clock func() time.Time

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// WakeDetector debounces raw wake-word hits. The cooldown window opens at
// the first qualifying hit; hits landing inside it are suppressed and do
// not extend it. Suppress re-arms the window externally, which the
// controller uses after a finalize so the assistant's own playback cannot
// immediately retrigger.
type WakeDetector struct {
	session   wake.Session
	provider  string
	threshold float64
	cooldown  time.Duration
	now       func() time.Time
	metrics   *observe.Metrics

	mu           sync.Mutex
	blockedUntil time.Time

	warnedErr bool
}

// NewWakeDetector builds a detector from cfg, filling in defaults.
func NewWakeDetector(cfg WakeConfig) *WakeDetector {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "wake"
	}
	return &WakeDetector{
		session:   cfg.Session,
		provider:  provider,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		now:       now,
		metrics:   metrics,
	}
}

// Enabled reports whether a wake model is loaded.
func (w *WakeDetector) Enabled() bool { return w.session != nil }

// Scan feeds one frame to the engine and reports a debounced detection.
// A disabled detector returns immediately. Engine errors are logged and
// swallowed; wake detection is best-effort.
func (w *WakeDetector) Scan(ctx context.Context, f audio.Frame) (WakeEvent, bool) {
	if w.session == nil {
		return WakeEvent{}, false
	}

	det, err := w.session.Feed(audio.BytesToInt16(f.Data))
	if err != nil {
		w.metrics.RecordProviderError(ctx, w.provider, "wake")
		if !w.warnedErr {
			w.warnedErr = true
			slog.Warn("wake engine error, detection degraded", "provider", w.provider, "error", err)
		} else {
			slog.Debug("wake engine error", "provider", w.provider, "error", err)
		}
		return WakeEvent{}, false
	}
	if !det.Hit || det.Confidence < w.threshold {
		return WakeEvent{}, false
	}

	w.mu.Lock()
	at := w.now()
	if at.Before(w.blockedUntil) {
		w.mu.Unlock()
		w.metrics.RecordWakeDetection(ctx, "suppressed")
		slog.Debug("wake hit suppressed by cooldown",
			"phrase", det.PhraseID, "confidence", det.Confidence)
		return WakeEvent{}, false
	}
	w.blockedUntil = at.Add(w.cooldown)
	w.mu.Unlock()

	w.metrics.RecordWakeDetection(ctx, "accepted")
	slog.Info("wake word detected",
		"phrase", det.PhraseID, "confidence", det.Confidence)
	return WakeEvent{At: at, PhraseID: det.PhraseID, Confidence: det.Confidence}, true
}

// Suppress blocks emissions for d from now. A shorter d never shrinks an
// already longer block.
func (w *WakeDetector) Suppress(d time.Duration) {
	if w.session == nil || d <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	until := w.now().Add(d)
	if until.After(w.blockedUntil) {
		w.blockedUntil = until
	}
}

// Run consumes frames until the channel closes or ctx is done, emitting
// one wake event per debounced detection.
func (w *WakeDetector) Run(ctx context.Context, frames <-chan audio.Frame, out chan<- Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			det, ok := w.Scan(ctx, f)
			if !ok {
				continue
			}
			select {
			case out <- Event{Kind: EventWake, Wake: det}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Close releases the wake session.
func (w *WakeDetector) Close() error {
	if w.session == nil {
		return nil
	}
	return w.session.Close()
}
