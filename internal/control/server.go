// Package control serves the pipeline's local HTTP surface: capture
// commands, the state snapshot, the WebSocket event stream, device
// enumeration, health probes, and Prometheus metrics.
//
// The surface is for the presentation layer and operators; it never
// touches frames or classifier internals. Commands are acknowledged with
// 202 Accepted — the state machine decides what actually happens, and the
// outcome is observable on the event stream.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lodrian/ascolta/internal/capture"
	"github.com/lodrian/ascolta/internal/health"
	"github.com/lodrian/ascolta/internal/observe"
	"github.com/lodrian/ascolta/pkg/audio"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second

	// eventStreamBuffer is the per-client notification buffer. A client
	// that stalls longer than this loses notifications, not the pipeline.
	eventStreamBuffer = 64

	// eventWriteTimeout bounds a single WebSocket write to a client.
	eventWriteTimeout = 5 * time.Second
)

// CaptureAPI is the slice of the controller the HTTP surface needs.
type CaptureAPI interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Cancel(ctx context.Context) error
	Status() capture.Status
	Subscribe(buffer int) (<-chan capture.Notification, func())
}

var _ CaptureAPI = (*capture.Controller)(nil)

// DeviceLister enumerates capture devices. pkg/audio/portaudio.Devices
// satisfies it.
type DeviceLister func() ([]audio.Device, error)

// Config wires a Server.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:8765".
	Addr string

	// Capture handles the command and status endpoints.
	Capture CaptureAPI

	// Devices backs GET /v1/devices. Nil returns an empty list.
	Devices DeviceLister

	// Health, when set, registers /healthz and /readyz.
	Health *health.Handler

	// Metrics instruments the HTTP middleware. Defaults to
	// observe.DefaultMetrics.
	Metrics *observe.Metrics

	// CertFile/KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string
}

// Server is the control surface HTTP server.
type Server struct {
	capture  CaptureAPI
	devices  DeviceLister
	httpSrv  *http.Server
	certFile string
	keyFile  string
}

// New builds the server and its route table.
func New(cfg Config) *Server {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	s := &Server{
		capture:  cfg.Capture,
		devices:  cfg.Devices,
		certFile: cfg.CertFile,
		keyFile:  cfg.KeyFile,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/capture/start", s.command("start", s.capture.Start))
	mux.HandleFunc("POST /v1/capture/stop", s.command("stop", s.capture.Stop))
	mux.HandleFunc("POST /v1/capture/cancel", s.command("cancel", s.capture.Cancel))
	mux.HandleFunc("GET /v1/capture", s.handleStatus)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/devices", s.handleDevices)
	mux.Handle("GET /metrics", promhttp.Handler())
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the fully wired handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until ctx is done, then drains with a shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return err
	}
	slog.Info("control surface listening",
		"addr", ln.Addr().String(), "tls", s.certFile != "")

	errCh := make(chan error, 1)
	go func() {
		if s.certFile != "" && s.keyFile != "" {
			errCh <- s.httpSrv.ServeTLS(ln, s.certFile, s.keyFile)
			return
		}
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("control surface shutdown", "error", err)
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- handlers ----

type commandResult struct {
	Status  string `json:"status"`
	Command string `json:"command"`
}

type errorResult struct {
	Error string `json:"error"`
}

type devicesResult struct {
	Devices []audio.Device `json:"devices"`
}

// command wraps a controller intent as a 202-on-accept handler.
func (s *Server) command(name string, submit func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := submit(r.Context()); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, capture.ErrControllerClosed) {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, errorResult{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, commandResult{Status: "accepted", Command: name})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.capture.Status())
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	if s.devices == nil {
		writeJSON(w, http.StatusOK, devicesResult{Devices: []audio.Device{}})
		return
	}
	devices, err := s.devices()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResult{Error: err.Error()})
		return
	}
	if devices == nil {
		devices = []audio.Device{}
	}
	writeJSON(w, http.StatusOK, devicesResult{Devices: devices})
}

// handleEvents streams pipeline notifications over a WebSocket. The
// subscription is lossy by design: a stalled client drops notifications
// instead of backpressuring the controller.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("event stream upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "event stream terminated")

	notifs, cancel := s.capture.Subscribe(eventStreamBuffer)
	defer cancel()

	// inbound messages are discarded; the returned context ends when the
	// client goes away
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client closed")
			return
		case n, ok := <-notifs:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "pipeline shutting down")
				return
			}
			if err := writeNotification(ctx, conn, n); err != nil {
				slog.Debug("event stream write failed", "error", err)
				return
			}
		}
	}
}

func writeNotification(ctx context.Context, conn *websocket.Conn, n capture.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
