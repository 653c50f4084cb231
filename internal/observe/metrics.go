// Package observe carries the observability plumbing shared by the whole
// daemon: OpenTelemetry metric instruments, tracing helpers, trace-aware
// logging, and the HTTP middleware that ties the three together.
//
// Recording goes through the OTel metrics API; [InitProvider] bridges the
// instruments to a Prometheus exporter so the /metrics endpoint keeps
// working. Production code shares the process-wide [DefaultMetrics]; tests
// build their own [Metrics] from a manual-reader provider so they never see
// each other's samples.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every instrument below.
const meterName = "github.com/lodrian/ascolta"

// Metrics bundles the application's metric instruments. The underlying OTel
// types synchronise themselves, so a single instance serves all goroutines.
type Metrics struct {
	// ClassifyDuration is the per-frame speech/silence classification
	// latency, attributed by provider.
	ClassifyDuration metric.Float64Histogram

	// STTDuration is the transcription dispatch latency, attributed by
	// the trigger that opened the session.
	STTDuration metric.Float64Histogram

	// SessionAudioDuration is the length of captured audio per dispatched
	// session, in seconds.
	SessionAudioDuration metric.Float64Histogram

	// SessionsStarted counts capture session starts, by trigger.
	SessionsStarted metric.Int64Counter

	// SessionsFinalized counts sessions flushed to transcription, by the
	// reason capture ended.
	SessionsFinalized metric.Int64Counter

	// SessionsCanceled counts sessions discarded without dispatch, by
	// reason.
	SessionsCanceled metric.Int64Counter

	// WakeDetections counts wake-word hits, with status "accepted" or
	// "suppressed".
	WakeDetections metric.Int64Counter

	// FramesCaptured counts audio frames appended to sessions.
	FramesCaptured metric.Int64Counter

	// FramesDropped counts frames dropped by lagging fan-out taps, by tap
	// name.
	FramesDropped metric.Int64Counter

	// ProviderRequests counts provider API calls, by provider, kind, and
	// status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures, by provider and kind.
	ProviderErrors metric.Int64Counter

	// ActiveSessions tracks the number of live capture sessions.
	ActiveSessions metric.Int64UpDownCounter

	// EventSubscribers tracks the number of connected event-stream
	// clients.
	EventSubscribers metric.Int64UpDownCounter

	// HTTPRequestDuration is the control-surface request latency, by
	// method, path, and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets suits per-frame and per-dispatch latencies, in seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets suits captured-session lengths, which run up to the
// max-duration cap, in seconds.
var sessionBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 15, 20, 30,
}

// instruments creates instruments against one meter and keeps the first
// creation error, so NewMetrics reads as a flat list.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) keep(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *instruments) seconds(name, desc string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(desc),
		metric.WithUnit("s"),
	}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	b.keep(err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.keep(err)
	return g
}

// NewMetrics creates every instrument against the given provider. It fails
// only when the provider rejects an instrument.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		ClassifyDuration: b.seconds("ascolta.classify.duration",
			"Latency of per-frame speech/silence classification.", latencyBuckets),
		STTDuration: b.seconds("ascolta.stt.duration",
			"Latency of transcription dispatch.", latencyBuckets),
		SessionAudioDuration: b.seconds("ascolta.session.audio_duration",
			"Length of captured audio per dispatched session.", sessionBuckets),

		SessionsStarted: b.counter("ascolta.sessions.started",
			"Total capture sessions started, by trigger."),
		SessionsFinalized: b.counter("ascolta.sessions.finalized",
			"Total sessions flushed to transcription, by reason."),
		SessionsCanceled: b.counter("ascolta.sessions.canceled",
			"Total sessions discarded without dispatch, by reason."),
		WakeDetections: b.counter("ascolta.wake.detections",
			"Total wake-word detections, accepted or suppressed."),
		FramesCaptured: b.counter("ascolta.frames.captured",
			"Total audio frames appended to capture sessions."),
		FramesDropped: b.counter("ascolta.frames.dropped",
			"Total frames dropped by lagging fan-out taps."),
		ProviderRequests: b.counter("ascolta.provider.requests",
			"Total provider API requests by provider, kind, and status."),
		ProviderErrors: b.counter("ascolta.provider.errors",
			"Total provider errors by provider and kind."),

		ActiveSessions: b.gauge("ascolta.active_sessions",
			"Number of live capture sessions."),
		EventSubscribers: b.gauge("ascolta.event_subscribers",
			"Number of connected event-stream clients."),

		HTTPRequestDuration: b.seconds("ascolta.http.request.duration",
			"HTTP request latency by method and path.", nil),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics], built on first use from
// the global meter provider. The global provider never rejects instruments,
// so a creation failure here is a broken SDK and panics.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr shortens [attribute.String] at recording sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one provider API call with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", status)))
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind)))
}

// RecordSessionStarted counts a session start with the trigger that opened
// it.
func (m *Metrics) RecordSessionStarted(ctx context.Context, trigger string) {
	m.SessionsStarted.Add(ctx, 1, metric.WithAttributes(Attr("trigger", trigger)))
}

// RecordSessionFinalized counts a dispatched session with the reason capture
// ended.
func (m *Metrics) RecordSessionFinalized(ctx context.Context, reason string) {
	m.SessionsFinalized.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordSessionCanceled counts a discarded session with the reason the audio
// was dropped.
func (m *Metrics) RecordSessionCanceled(ctx context.Context, reason string) {
	m.SessionsCanceled.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordWakeDetection counts a wake-word detection, "accepted" or
// "suppressed" by the debounce window.
func (m *Metrics) RecordWakeDetection(ctx context.Context, status string) {
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}
