package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lodrian/ascolta/internal/capture"
	"github.com/lodrian/ascolta/internal/config"
	"github.com/lodrian/ascolta/pkg/provider/stt"
	sttmock "github.com/lodrian/ascolta/pkg/provider/stt/mock"
	wakemock "github.com/lodrian/ascolta/pkg/provider/wake/mock"
)

// controllerParams: 20 ms frames, 40 ms silence timeout (two silent
// labels), 40 ms grace (two frames), toggle hotkey mode.
func controllerParams() capture.Params {
	return capture.Params{
		FrameDuration:   20 * time.Millisecond,
		SilenceTimeout:  40 * time.Millisecond,
		GraceWindow:     40 * time.Millisecond,
		MaxSession:      10 * time.Second,
		NoSpeechTimeout: 2 * time.Second,
		AutoSend:        true,
		HotkeyMode:      config.HotkeyToggle,
	}
}

type controllerFixture struct {
	ctrl   *capture.Controller
	stt    *sttmock.Provider
	notifs <-chan capture.Notification
}

func startController(t *testing.T, cfg capture.ControllerConfig, provider *sttmock.Provider) *controllerFixture {
	t.Helper()
	if cfg.Params.FrameDuration == 0 {
		cfg.Params = controllerParams()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = capture.NewDispatcher(capture.DispatcherConfig{Transcriber: provider})
	}
	ctrl := capture.NewController(cfg)
	notifs, cancelSub := ctrl.Subscribe(64)

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancelSub()
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("controller did not stop")
		}
	})
	return &controllerFixture{ctrl: ctrl, stt: provider, notifs: notifs}
}

func (f *controllerFixture) submit(t *testing.T, evs ...capture.Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, ev := range evs {
		if err := f.ctrl.Submit(ctx, ev); err != nil {
			t.Fatalf("submit %v: %v", ev.Kind, err)
		}
	}
}

func (f *controllerFixture) next(t *testing.T) capture.Notification {
	t.Helper()
	select {
	case n, ok := <-f.notifs:
		if !ok {
			t.Fatal("notification channel closed")
		}
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	panic("unreachable")
}

func (f *controllerFixture) nextState(t *testing.T, want string) capture.Notification {
	t.Helper()
	n := f.next(t)
	if n.Type != capture.NotifyStateChanged || n.State != want {
		t.Fatalf("notification = %+v, want state_changed to %q", n, want)
	}
	return n
}

// frameWithLabel submits a frame followed by its classifier verdict.
func (f *controllerFixture) frameWithLabel(t *testing.T, seq uint64, label capture.Label, silenceMs int) {
	t.Helper()
	f.submit(t,
		capture.Event{Kind: capture.EventFrame, Frame: pcmFrame(seq, byte(seq))},
		capture.Event{Kind: capture.EventLabel, Seq: seq, Label: label, SilenceMs: silenceMs},
	)
}

func TestController_WakeSessionEndToEnd(t *testing.T) {
	t.Parallel()
	provider := &sttmock.Provider{TranscribeResult: stt.Transcript{Text: "hello world"}}
	f := startController(t, capture.ControllerConfig{}, provider)

	f.submit(t, capture.Event{Kind: capture.EventWake, Wake: capture.WakeEvent{PhraseID: "hey_ascolta"}})
	listening := f.nextState(t, "listening")
	if listening.Trigger != "wake_word" || listening.SessionID == "" {
		t.Fatalf("listening notification = %+v", listening)
	}

	f.frameWithLabel(t, 1, capture.LabelSpeech, 0)
	f.frameWithLabel(t, 2, capture.LabelSilence, 20)
	f.frameWithLabel(t, 3, capture.LabelSilence, 40)
	finalizing := f.nextState(t, "finalizing")
	if finalizing.Reason != "silence" {
		t.Errorf("finalize reason = %q, want silence", finalizing.Reason)
	}

	// two grace frames are appended, the third starts the flush
	for seq := uint64(4); seq <= 6; seq++ {
		f.submit(t, capture.Event{Kind: capture.EventFrame, Frame: pcmFrame(seq, byte(seq))})
	}

	transcription := f.next(t)
	if transcription.Type != capture.NotifyTranscription {
		t.Fatalf("notification = %+v, want transcription", transcription)
	}
	if transcription.Text != "hello world" || transcription.Error != "" {
		t.Errorf("transcription = %+v", transcription)
	}
	if transcription.SessionID != listening.SessionID {
		t.Errorf("transcription session = %q, want %q", transcription.SessionID, listening.SessionID)
	}
	f.nextState(t, "idle")

	// frames 1-5 made it into the dispatched audio, in order and gap-free
	if provider.CallCount() != 1 {
		t.Fatalf("provider called %d times, want 1", provider.CallCount())
	}
	pcm := provider.TranscribeCalls[0].Seg.PCM
	if len(pcm) != 5*640 {
		t.Fatalf("dispatched %d bytes, want %d", len(pcm), 5*640)
	}
	for i := 0; i < 5; i++ {
		if pcm[i*640] != byte(i+1) {
			t.Fatalf("frame %d out of order in dispatched audio", i+1)
		}
	}
}

func TestController_CancelDispatchesNothing(t *testing.T) {
	t.Parallel()
	provider := &sttmock.Provider{TranscribeResult: stt.Transcript{Text: "never"}}
	f := startController(t, capture.ControllerConfig{}, provider)

	f.submit(t, capture.Event{Kind: capture.EventWake})
	f.nextState(t, "listening")
	f.frameWithLabel(t, 1, capture.LabelSpeech, 0)
	f.frameWithLabel(t, 2, capture.LabelSpeech, 0)

	f.submit(t, capture.Event{Kind: capture.EventCancel})
	idle := f.nextState(t, "idle")
	if idle.Reason != "canceled" {
		t.Errorf("reason = %q, want canceled", idle.Reason)
	}
	if provider.CallCount() != 0 {
		t.Errorf("provider called %d times, want 0", provider.CallCount())
	}
}

func TestController_TranscriptionErrorNotified(t *testing.T) {
	t.Parallel()
	provider := &sttmock.Provider{TranscribeErr: errors.New("quota exhausted")}
	f := startController(t, capture.ControllerConfig{}, provider)

	f.submit(t, capture.Event{Kind: capture.EventStart})
	f.nextState(t, "listening")
	f.frameWithLabel(t, 1, capture.LabelSpeech, 0)
	f.submit(t, capture.Event{Kind: capture.EventStop})
	f.nextState(t, "finalizing")
	for seq := uint64(2); seq <= 4; seq++ {
		f.submit(t, capture.Event{Kind: capture.EventFrame, Frame: pcmFrame(seq, 0)})
	}

	n := f.next(t)
	if n.Type != capture.NotifyTranscription || n.Error == "" || n.Text != "" {
		t.Fatalf("notification = %+v, want transcription error", n)
	}
	// a failed dispatch still completes the cycle
	f.nextState(t, "idle")
}

func TestController_DeviceLostDispatchesPartial(t *testing.T) {
	t.Parallel()
	provider := &sttmock.Provider{TranscribeResult: stt.Transcript{Text: "partial"}}
	f := startController(t, capture.ControllerConfig{}, provider)

	f.submit(t, capture.Event{Kind: capture.EventWake})
	f.nextState(t, "listening")
	f.frameWithLabel(t, 1, capture.LabelSpeech, 0)
	f.frameWithLabel(t, 2, capture.LabelSpeech, 0)

	f.submit(t, capture.Event{Kind: capture.EventDeviceLost})
	lost := f.next(t)
	if lost.Type != capture.NotifyDeviceLost {
		t.Fatalf("notification = %+v, want device_lost", lost)
	}
	finalizing := f.nextState(t, "finalizing")
	if finalizing.Reason != "device_lost" {
		t.Errorf("reason = %q, want device_lost", finalizing.Reason)
	}
	n := f.next(t)
	if n.Type != capture.NotifyTranscription || n.Text != "partial" {
		t.Fatalf("notification = %+v, want partial transcription", n)
	}
	f.nextState(t, "idle")

	if !f.ctrl.Status().DeviceLost {
		t.Error("status does not report device lost")
	}
	if provider.CallCount() != 1 {
		t.Errorf("provider called %d times, want 1", provider.CallCount())
	}
}

// Canceling mid-flight aborts the dispatch; its late result is discarded
// rather than surfaced as a transcription.
func TestController_CancelAbortsInFlightDispatch(t *testing.T) {
	t.Parallel()
	provider := &sttmock.Provider{
		TranscribeResult: stt.Transcript{Text: "late"},
		Delay:            5 * time.Second,
	}
	f := startController(t, capture.ControllerConfig{}, provider)

	f.submit(t, capture.Event{Kind: capture.EventStart})
	f.nextState(t, "listening")
	f.frameWithLabel(t, 1, capture.LabelSpeech, 0)
	f.submit(t, capture.Event{Kind: capture.EventStop})
	f.nextState(t, "finalizing")
	for seq := uint64(2); seq <= 4; seq++ {
		f.submit(t, capture.Event{Kind: capture.EventFrame, Frame: pcmFrame(seq, 0)})
	}
	// the flush is now in flight and blocked in the provider
	f.submit(t, capture.Event{Kind: capture.EventCancel})
	f.nextState(t, "idle")

	// no transcription may surface; the next notification is the fresh
	// session starting
	f.submit(t, capture.Event{Kind: capture.EventWake})
	f.nextState(t, "listening")
}

// A trigger during the flush opens a fresh session; the old flush result
// still surfaces under the old session id.
func TestController_FreshSessionDuringFlush(t *testing.T) {
	t.Parallel()
	provider := &sttmock.Provider{
		TranscribeResult: stt.Transcript{Text: "first session"},
		Delay:            200 * time.Millisecond,
	}
	f := startController(t, capture.ControllerConfig{}, provider)

	f.submit(t, capture.Event{Kind: capture.EventStart})
	first := f.nextState(t, "listening")
	f.frameWithLabel(t, 1, capture.LabelSpeech, 0)
	f.submit(t, capture.Event{Kind: capture.EventStop})
	f.nextState(t, "finalizing")
	for seq := uint64(2); seq <= 4; seq++ {
		f.submit(t, capture.Event{Kind: capture.EventFrame, Frame: pcmFrame(seq, 0)})
	}

	f.submit(t, capture.Event{Kind: capture.EventWake})
	second := f.nextState(t, "listening")
	if second.SessionID == "" || second.SessionID == first.SessionID {
		t.Fatalf("second session id %q not fresh (first %q)", second.SessionID, first.SessionID)
	}

	n := f.next(t)
	if n.Type != capture.NotifyTranscription || n.SessionID != first.SessionID {
		t.Fatalf("notification = %+v, want transcription for %q", n, first.SessionID)
	}
	if n.Text != "first session" {
		t.Errorf("text = %q, want first session", n.Text)
	}
}

func TestController_FinalizeSuppressesWakeDetector(t *testing.T) {
	t.Parallel()
	clock := newWakeClock()
	detector := capture.NewWakeDetector(capture.WakeConfig{
		Session:   &wakemock.Session{DetectionResult: hit(0.9)},
		Threshold: 0.5,
		Cooldown:  2 * time.Second,
		Clock:     clock.Now,
	})
	provider := &sttmock.Provider{TranscribeResult: stt.Transcript{Text: "done"}}
	f := startController(t, capture.ControllerConfig{
		Dispatcher:   capture.NewDispatcher(capture.DispatcherConfig{Transcriber: provider}),
		Wake:         detector,
		WakeSuppress: 2 * time.Second,
	}, provider)

	f.submit(t, capture.Event{Kind: capture.EventStart})
	f.nextState(t, "listening")
	f.frameWithLabel(t, 1, capture.LabelSpeech, 0)
	f.submit(t, capture.Event{Kind: capture.EventStop})
	f.nextState(t, "finalizing")
	for seq := uint64(2); seq <= 4; seq++ {
		f.submit(t, capture.Event{Kind: capture.EventFrame, Frame: pcmFrame(seq, 0)})
	}
	f.next(t) // transcription
	f.nextState(t, "idle")

	// the detector was re-armed at dispatch time
	if _, ok := detector.Scan(context.Background(), pcmFrame(5, 0)); ok {
		t.Error("wake detector not suppressed after finalize")
	}
	clock.Set(3 * time.Second)
	if _, ok := detector.Scan(context.Background(), pcmFrame(6, 0)); !ok {
		t.Error("wake detector still suppressed after window")
	}
}

func TestController_StatusTracksPipeline(t *testing.T) {
	t.Parallel()
	provider := &sttmock.Provider{}
	f := startController(t, capture.ControllerConfig{}, provider)

	if st := f.ctrl.Status(); st.State != "idle" || st.SessionID != "" {
		t.Fatalf("initial status = %+v", st)
	}

	f.submit(t, capture.Event{Kind: capture.EventWake})
	listening := f.nextState(t, "listening")
	st := f.ctrl.Status()
	if st.State != "listening" || st.SessionID != listening.SessionID || st.Trigger != "wake_word" {
		t.Fatalf("status = %+v", st)
	}

	f.submit(t, capture.Event{Kind: capture.EventCancel})
	f.nextState(t, "idle")
	st = f.ctrl.Status()
	if st.State != "idle" || st.SessionID != "" || st.Trigger != "" {
		t.Fatalf("status after cancel = %+v", st)
	}
}

func TestController_NotifyDegraded(t *testing.T) {
	t.Parallel()
	provider := &sttmock.Provider{}
	f := startController(t, capture.ControllerConfig{}, provider)

	f.ctrl.NotifyDegraded("vad", errors.New("model load failed"))
	n := f.next(t)
	if n.Type != capture.NotifyDegraded || n.Component != "vad" || n.Error == "" {
		t.Fatalf("notification = %+v", n)
	}
	if got := f.ctrl.Status().Degraded["vad"]; got == "" {
		t.Error("status does not list the degraded component")
	}
}

func TestController_NotifyRestartRequired(t *testing.T) {
	t.Parallel()
	provider := &sttmock.Provider{}
	f := startController(t, capture.ControllerConfig{}, provider)

	f.ctrl.NotifyRestartRequired([]string{"pipeline", "server"})
	n := f.next(t)
	if n.Type != capture.NotifyRestartRequired || n.Component != "config" {
		t.Fatalf("notification = %+v", n)
	}
	if n.Reason != "pipeline,server" {
		t.Fatalf("Reason = %q, want %q", n.Reason, "pipeline,server")
	}
}

func TestController_SubmitAfterShutdown(t *testing.T) {
	t.Parallel()
	provider := &sttmock.Provider{}
	ctrl := capture.NewController(capture.ControllerConfig{
		Params:     controllerParams(),
		Dispatcher: capture.NewDispatcher(capture.DispatcherConfig{Transcriber: provider}),
	})
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
	}

	err := ctrl.Ping(context.Background())
	if !errors.Is(err, capture.ErrControllerClosed) {
		t.Errorf("err = %v, want ErrControllerClosed", err)
	}
}

func TestController_ShutdownClosesSubscribers(t *testing.T) {
	t.Parallel()
	provider := &sttmock.Provider{}
	ctrl := capture.NewController(capture.ControllerConfig{
		Params:     controllerParams(),
		Dispatcher: capture.NewDispatcher(capture.DispatcherConfig{Transcriber: provider}),
	})
	notifs, _ := ctrl.Subscribe(4)

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	stop()
	<-done

	select {
	case _, ok := <-notifs:
		if ok {
			t.Error("expected closed channel, got notification")
		}
	case <-time.After(2 * time.Second):
		t.Error("subscriber channel not closed on shutdown")
	}
}
