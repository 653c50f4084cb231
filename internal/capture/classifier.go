package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/lodrian/ascolta/internal/observe"
	"github.com/lodrian/ascolta/pkg/audio"
	"github.com/lodrian/ascolta/pkg/provider/vad"
)

// Default classifier policy.
const (
	// defaultTimeoutFactor: a classification slower than this many frame
	// durations counts as a miss.
	defaultTimeoutFactor = 3

	// defaultErrorStreak misses in a row mark the model unavailable.
	defaultErrorStreak = 8
)

// ClassifierConfig wires a Classifier.
type ClassifierConfig struct {
	// Session is the VAD session the classifier drives.
	Session vad.Session

	// Provider names the VAD engine for logs and metrics.
	Provider string

	// FrameDuration is the nominal frame length; it sets the default
	// classify timeout.
	FrameDuration time.Duration

	// Timeout overrides the classify deadline. Zero means
	// defaultTimeoutFactor times FrameDuration.
	Timeout time.Duration

	// ErrorStreak overrides how many consecutive misses flip the
	// classifier into degraded mode. Zero means defaultErrorStreak.
	ErrorStreak int

	// OnDegraded is called exactly once when the model becomes
	// unavailable. Optional.
	OnDegraded func(error)

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// Classifier turns frames into speech or silence labels. The VAD call is
// synchronous; the classifier measures it and treats errors and overruns
// as speech so a broken model can never cut a session short. After a
// sustained miss streak it stops calling the model entirely and labels
// everything speech, leaving the pipeline under manual control.
//
// The classifier also owns the running silence counter: it grows by one
// frame duration per silence label and resets to zero on speech.
type Classifier struct {
	session  vad.Session
	provider string
	timeout  time.Duration
	streak   int
	metrics  *observe.Metrics
	onDeg    func(error)

	misses    int
	degraded  bool
	silenceMs int
}

// NewClassifier builds a classifier from cfg, filling in defaults.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeoutFactor * cfg.FrameDuration
	}
	streak := cfg.ErrorStreak
	if streak <= 0 {
		streak = defaultErrorStreak
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "vad"
	}
	return &Classifier{
		session:  cfg.Session,
		provider: provider,
		timeout:  timeout,
		streak:   streak,
		metrics:  metrics,
		onDeg:    cfg.OnDegraded,
	}
}

// Classify labels one frame and returns the label together with the
// silence counter after this frame.
func (c *Classifier) Classify(ctx context.Context, f audio.Frame) (Label, int) {
	label := c.classify(ctx, f)
	if label == LabelSilence {
		c.silenceMs += int(f.Duration() / time.Millisecond)
	} else {
		c.silenceMs = 0
	}
	return label, c.silenceMs
}

func (c *Classifier) classify(ctx context.Context, f audio.Frame) Label {
	if c.degraded {
		return LabelSpeech
	}

	start := time.Now()
	ev, err := c.session.ProcessFrame(f.Data)
	elapsed := time.Since(start)
	c.metrics.ClassifyDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(observe.Attr("provider", c.provider)))

	if err != nil || elapsed > c.timeout {
		c.miss(ctx, f.Seq, elapsed, err)
		return LabelSpeech
	}

	c.misses = 0
	switch ev.Type {
	case vad.SpeechStart, vad.SpeechContinue:
		return LabelSpeech
	default:
		return LabelSilence
	}
}

func (c *Classifier) miss(ctx context.Context, seq uint64, elapsed time.Duration, err error) {
	c.misses++
	c.metrics.RecordProviderError(ctx, c.provider, "classify")
	slog.Debug("classification miss, defaulting to speech",
		"provider", c.provider, "seq", seq, "elapsed", elapsed, "misses", c.misses, "error", err)
	if c.misses < c.streak {
		return
	}
	c.degraded = true
	slog.Error("classifier degraded, labeling everything speech",
		"provider", c.provider, "misses", c.misses, "error", err)
	if c.onDeg != nil {
		cause := fmt.Errorf("%w: %s failed %d consecutive classifications", ErrModelUnavailable, c.provider, c.misses)
		c.onDeg(cause)
	}
}

// Degraded reports whether the classifier gave up on the model.
func (c *Classifier) Degraded() bool { return c.degraded }

// Run consumes frames until the channel closes or ctx is done, sending
// one label event per frame. Labels ride the same ordered channel as
// everything else the controller consumes.
func (c *Classifier) Run(ctx context.Context, frames <-chan audio.Frame, out chan<- Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			label, silenceMs := c.Classify(ctx, f)
			ev := Event{Kind: EventLabel, Seq: f.Seq, Label: label, SilenceMs: silenceMs}
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Close releases the VAD session.
func (c *Classifier) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}
