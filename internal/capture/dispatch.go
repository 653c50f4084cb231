package capture

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/lodrian/ascolta/internal/observe"
	"github.com/lodrian/ascolta/internal/transcript"
	"github.com/lodrian/ascolta/pkg/provider/stt"
)

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	// Transcriber turns audio into text; usually a resilience.STTChain.
	Transcriber stt.Provider

	// Trimmer strips a leading wake phrase from wake-triggered results.
	// Optional.
	Trimmer *transcript.Trimmer

	// Language hints the provider. Empty means auto-detect.
	Language string

	// Hints bias recognition toward expected vocabulary.
	Hints []string

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// Dispatcher flushes a finalized session to transcription. It works on an
// immutable Snapshot, so it runs concurrently with the controller without
// sharing state; cancellation rides the context.
type Dispatcher struct {
	transcriber stt.Provider
	trimmer     *transcript.Trimmer
	language    string
	hints       []string
	metrics     *observe.Metrics
}

// NewDispatcher builds a dispatcher from cfg.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Dispatcher{
		transcriber: cfg.Transcriber,
		trimmer:     cfg.Trimmer,
		language:    cfg.Language,
		hints:       cfg.Hints,
		metrics:     metrics,
	}
}

// Dispatch transcribes the snapshot. Wake-triggered results get the wake
// phrase trimmed from their head before being returned.
func (d *Dispatcher) Dispatch(ctx context.Context, snap Snapshot, reason FinalizeReason) (stt.Transcript, error) {
	ctx, span := observe.StartSpan(ctx, "capture.dispatch")
	defer span.End()
	log := observe.Logger(ctx)

	attrs := metric.WithAttributes(observe.Attr("trigger", snap.Trigger.String()))
	d.metrics.SessionAudioDuration.Record(ctx, snap.Duration().Seconds(), attrs)

	seg := stt.Segment{
		PCM:        snap.PCM(),
		SampleRate: snap.SampleRate(),
		Channels:   snap.Channels(),
		Language:   d.language,
		Hints:      d.hints,
	}

	start := time.Now()
	tr, err := d.transcriber.Transcribe(ctx, seg)
	elapsed := time.Since(start)
	d.metrics.STTDuration.Record(ctx, elapsed.Seconds(), attrs)

	if err != nil {
		log.Warn("dispatch failed",
			"session", snap.ID, "reason", reason.String(),
			"audio", snap.Duration(), "elapsed", elapsed, "error", err)
		return stt.Transcript{}, err
	}

	if snap.Trigger == TriggerWakeWord && d.trimmer != nil {
		trimmed := d.trimmer.Trim(tr.Text)
		if trimmed != tr.Text {
			log.Debug("wake phrase trimmed", "session", snap.ID)
			tr.Text = trimmed
		}
	}

	log.Info("session transcribed",
		"session", snap.ID, "reason", reason.String(),
		"audio", snap.Duration(), "elapsed", elapsed, "chars", len(tr.Text))
	return tr, nil
}
