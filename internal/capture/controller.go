// Package capture is the voice-activation core: it decides when the
// pipeline is listening, which frames belong to a session, and when a
// session's audio is flushed to transcription.
//
// The design splits decision from execution. Machine is a deterministic
// transition table with no clock and no IO; Controller owns the single
// ordered event channel, applies the machine's effects, and runs the
// asynchronous dispatches. Frames reach the controller on a lossless
// path, while classifier labels and wake detections arrive on bounded
// lossy taps — losing a label delays a timeout decision, but never loses
// session audio.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lodrian/ascolta/internal/observe"
)

// ErrControllerClosed is returned by Submit after the controller stopped.
var ErrControllerClosed = errors.New("capture: controller closed")

// defaultEventBuffer sizes the controller channel. Frames arrive every
// frame duration; the buffer rides out dispatch launches and slow
// subscribers without backpressuring the source.
const defaultEventBuffer = 256

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	// Params is the machine's timing policy.
	Params Params

	// Dispatcher flushes finalized sessions.
	Dispatcher *Dispatcher

	// Wake, when set, is re-armed after every finalize so the assistant's
	// own playback cannot retrigger a session.
	Wake *WakeDetector

	// WakeSuppress is how long the wake detector stays blocked after a
	// finalize. Usually the wake cooldown.
	WakeSuppress time.Duration

	// EventBuffer overrides the event channel capacity.
	EventBuffer int

	// Clock defaults to time.Now.
	Clock func() time.Time

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// Status is a point-in-time view of the pipeline for the control surface.
type Status struct {
	State      string            `json:"state"`
	SessionID  string            `json:"session_id,omitempty"`
	Trigger    string            `json:"trigger,omitempty"`
	DeviceLost bool              `json:"device_lost"`
	Degraded   map[string]string `json:"degraded,omitempty"`
}

// dispatchHandle tracks one in-flight flush.
type dispatchHandle struct {
	sessionID string
	trigger   Trigger
	cancel    context.CancelFunc
	aborted   bool
}

// Controller runs the capture state machine. All events funnel through
// one channel and one goroutine, so arrival order is decision order and
// the session needs no locks. Dispatches run in their own goroutines on
// immutable snapshots and report back through the same channel.
type Controller struct {
	machine      *Machine
	dispatcher   *Dispatcher
	wake         *WakeDetector
	wakeSuppress time.Duration
	metrics      *observe.Metrics
	now          func() time.Time

	events   chan Event
	quit     chan struct{}
	quitOnce sync.Once

	// owned by the Run goroutine
	session    *Session
	sessionID  string
	dispatches map[uint64]*dispatchHandle

	mu          sync.Mutex
	status      Status
	subscribers map[int]chan Notification
	nextSub     int
}

// NewController builds a controller from cfg, filling in defaults.
func NewController(cfg ControllerConfig) *Controller {
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Controller{
		machine:      NewMachine(cfg.Params),
		dispatcher:   cfg.Dispatcher,
		wake:         cfg.Wake,
		wakeSuppress: cfg.WakeSuppress,
		metrics:      metrics,
		now:          now,
		events:       make(chan Event, buffer),
		quit:         make(chan struct{}),
		dispatches:   make(map[uint64]*dispatchHandle),
		subscribers:  make(map[int]chan Notification),
		status:       Status{State: StateIdle.String()},
	}
}

// Events returns the sink producer goroutines feed. Sends must be
// guarded by the producer's context; the channel is never closed.
func (c *Controller) Events() chan<- Event { return c.events }

// Submit queues one event, honoring ctx and controller shutdown.
func (c *Controller) Submit(ctx context.Context, ev Event) error {
	// checked first: the buffered event channel accepts sends even after
	// the loop stopped draining it
	select {
	case <-c.quit:
		return ErrControllerClosed
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return ErrControllerClosed
	}
}

// Start requests a manual session start.
func (c *Controller) Start(ctx context.Context) error {
	return c.Submit(ctx, Event{Kind: EventStart})
}

// Stop requests the running session be finalized.
func (c *Controller) Stop(ctx context.Context) error {
	return c.Submit(ctx, Event{Kind: EventStop})
}

// Toggle flips between starting and finalizing.
func (c *Controller) Toggle(ctx context.Context) error {
	return c.Submit(ctx, Event{Kind: EventToggle})
}

// Cancel throws the running session away.
func (c *Controller) Cancel(ctx context.Context) error {
	return c.Submit(ctx, Event{Kind: EventCancel})
}

// Ping verifies the controller loop is consuming events.
func (c *Controller) Ping(ctx context.Context) error {
	return c.Submit(ctx, Event{Kind: EventPing})
}

// Status returns a copy of the current pipeline status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	if st.Degraded != nil {
		deg := make(map[string]string, len(st.Degraded))
		for k, v := range st.Degraded {
			deg[k] = v
		}
		st.Degraded = deg
	}
	return st
}

// NotifyDegraded marks a component degraded and tells subscribers. Safe
// from any goroutine.
func (c *Controller) NotifyDegraded(component string, err error) {
	c.mu.Lock()
	if c.status.Degraded == nil {
		c.status.Degraded = make(map[string]string)
	}
	c.status.Degraded[component] = err.Error()
	c.mu.Unlock()
	slog.Warn("component degraded", "component", component, "error", err)
	c.publish(Notification{
		Type:      NotifyDegraded,
		Time:      c.now(),
		Component: component,
		Error:     err.Error(),
	})
}

// NotifyRestartRequired tells subscribers that an edited config file
// needs a process restart to take effect. The pipeline itself keeps
// running on the boot snapshot. Safe from any goroutine.
func (c *Controller) NotifyRestartRequired(sections []string) {
	slog.Info("config changed, restart required", "sections", sections)
	c.publish(Notification{
		Type:      NotifyRestartRequired,
		Time:      c.now(),
		Component: "config",
		Reason:    strings.Join(sections, ","),
	})
}

// Subscribe registers a notification receiver. Slow receivers lose
// notifications rather than stalling the pipeline. The returned cancel
// is idempotent and closes the channel.
func (c *Controller) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Notification, buffer)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch
	c.mu.Unlock()
	c.metrics.EventSubscribers.Add(context.Background(), 1)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			_, ok := c.subscribers[id]
			delete(c.subscribers, id)
			c.mu.Unlock()
			if ok {
				close(ch)
				c.metrics.EventSubscribers.Add(context.Background(), -1)
			}
		})
	}
	return ch, cancel
}

// Run consumes the event channel until ctx is done. On exit it aborts
// in-flight dispatches and closes all subscriber channels.
func (c *Controller) Run(ctx context.Context) error {
	defer c.shutdown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventFrame:
		c.metrics.FramesCaptured.Add(ctx, 1)
	case EventLabel:
		if c.session != nil && ev.Label == LabelSpeech {
			c.session.LastSpeechAt = c.now()
		}
	case EventDeviceLost:
		c.markDeviceLost()
	case EventFlushDone:
		// deliver the result before the machine moves on, so subscribers
		// see the transcription ahead of the idle transition
		c.finishDispatch(ev)
	}

	prev := c.machine.State()
	var reason string
	for _, eff := range c.machine.Apply(ev) {
		c.applyEffect(ctx, ev, eff, &reason)
	}
	if st := c.machine.State(); st != prev {
		c.changeState(prev, st, reason)
	}
}

func (c *Controller) applyEffect(ctx context.Context, ev Event, eff Effect, reason *string) {
	switch eff.Kind {
	case EffectStartSession:
		c.session = NewSession(eff.Trigger, c.now())
		c.sessionID = c.session.ID
		c.metrics.RecordSessionStarted(ctx, eff.Trigger.String())
		c.metrics.ActiveSessions.Add(ctx, 1)
		slog.Info("session started",
			"session", c.session.ID, "trigger", eff.Trigger.String())
	case EffectUpgradeTrigger:
		if c.session != nil {
			c.session.Trigger = TriggerManual
			slog.Info("session trigger upgraded to manual", "session", c.session.ID)
		}
	case EffectAppendFrame:
		if c.session == nil {
			return
		}
		if err := c.session.Append(ev.Frame); err != nil {
			slog.Warn("frame rejected",
				"session", c.session.ID, "seq", ev.Frame.Seq, "error", err)
		}
	case EffectDispatch:
		c.startDispatch(ctx, eff)
		*reason = eff.Reason.String()
	case EffectDiscard:
		c.discardSession(ctx, eff.Reason)
		*reason = eff.Reason.String()
	case EffectAbortDispatches:
		c.abortDispatches()
	}
}

func (c *Controller) startDispatch(ctx context.Context, eff Effect) {
	if c.session == nil {
		// nothing to flush; complete the cycle so the machine is not
		// stuck waiting
		slog.Error("dispatch requested without a session", "epoch", eff.Epoch)
		go c.deliver(Event{
			Kind:        EventFlushDone,
			Epoch:       eff.Epoch,
			DispatchErr: errors.New("capture: no session to dispatch"),
		})
		return
	}
	snap := c.session.Snapshot()
	c.session = nil
	c.metrics.RecordSessionFinalized(ctx, eff.Reason.String())
	c.metrics.ActiveSessions.Add(ctx, -1)
	if c.wake != nil {
		c.wake.Suppress(c.wakeSuppress)
	}
	slog.Info("session finalized",
		"session", snap.ID, "reason", eff.Reason.String(),
		"frames", len(snap.Frames), "audio", snap.Duration())

	dctx, cancel := context.WithCancel(context.Background())
	c.dispatches[eff.Epoch] = &dispatchHandle{
		sessionID: snap.ID,
		trigger:   snap.Trigger,
		cancel:    cancel,
	}
	go func() {
		defer cancel()
		tr, err := c.dispatcher.Dispatch(dctx, snap, eff.Reason)
		c.deliver(Event{Kind: EventFlushDone, Epoch: eff.Epoch, Transcript: tr, DispatchErr: err})
	}()
}

// deliver feeds an event back into the loop from a helper goroutine.
func (c *Controller) deliver(ev Event) {
	select {
	case c.events <- ev:
	case <-c.quit:
	}
}

func (c *Controller) finishDispatch(ev Event) {
	h, ok := c.dispatches[ev.Epoch]
	if !ok {
		return
	}
	delete(c.dispatches, ev.Epoch)
	if h.aborted {
		slog.Debug("aborted dispatch finished", "session", h.sessionID)
		return
	}
	n := Notification{
		Type:      NotifyTranscription,
		Time:      c.now(),
		SessionID: h.sessionID,
		Trigger:   h.trigger.String(),
	}
	if ev.DispatchErr != nil {
		n.Error = ev.DispatchErr.Error()
	} else {
		n.Text = ev.Transcript.Text
	}
	c.publish(n)
}

func (c *Controller) discardSession(ctx context.Context, reason FinalizeReason) {
	if c.session == nil {
		return
	}
	c.metrics.RecordSessionCanceled(ctx, reason.String())
	c.metrics.ActiveSessions.Add(ctx, -1)
	slog.Info("session discarded",
		"session", c.session.ID, "reason", reason.String(),
		"frames", c.session.FrameCount())
	c.session = nil
}

func (c *Controller) abortDispatches() {
	for epoch, h := range c.dispatches {
		if h.aborted {
			continue
		}
		h.aborted = true
		h.cancel()
		slog.Debug("dispatch aborted", "session", h.sessionID, "epoch", epoch)
	}
}

func (c *Controller) markDeviceLost() {
	c.mu.Lock()
	already := c.status.DeviceLost
	c.status.DeviceLost = true
	c.mu.Unlock()
	if already {
		return
	}
	slog.Error("capture device lost; restart required to resume")
	c.publish(Notification{
		Type:  NotifyDeviceLost,
		Time:  c.now(),
		Error: "capture device lost",
	})
}

func (c *Controller) changeState(from, to State, reason string) {
	trigger := ""
	if to == StateListening || to == StateFinalizing {
		trigger = c.machine.Trigger().String()
	}
	statusID := c.sessionID
	if to == StateIdle || to == StateSuspended {
		statusID = ""
	}
	c.mu.Lock()
	c.status.State = to.String()
	c.status.SessionID = statusID
	c.status.Trigger = trigger
	c.mu.Unlock()
	slog.Debug("state changed", "from", from.String(), "to", to.String(), "reason", reason)
	c.publish(Notification{
		Type:      NotifyStateChanged,
		Time:      c.now(),
		State:     to.String(),
		SessionID: c.sessionID,
		Trigger:   trigger,
		Reason:    reason,
	})
	if to == StateIdle || to == StateSuspended {
		c.sessionID = ""
	}
}

// publish fans a notification out without ever blocking the pipeline.
func (c *Controller) publish(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subscribers {
		select {
		case ch <- n:
		default:
			slog.Debug("notification dropped, subscriber not keeping up",
				"subscriber", id, "type", n.Type)
		}
	}
}

func (c *Controller) shutdown() {
	c.quitOnce.Do(func() { close(c.quit) })
	c.abortDispatches()
	c.mu.Lock()
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
	c.mu.Unlock()
}
