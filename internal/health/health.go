// Package health serves the liveness and readiness probes for the capture
// daemon.
//
//   - /healthz answers 200 whenever the process can serve HTTP at all.
//   - /readyz answers 200 only while every registered [Checker] passes,
//     and 503 otherwise.
//
// Readiness covers the things the pipeline cannot capture without: the
// controller loop consuming events and the audio device still delivering
// frames. A lost device fails /readyz until the process restarts.
//
// Both endpoints reply with a JSON object carrying a top-level "status" of
// "ok" or "fail"; /readyz adds a "checks" map with one entry per checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/lodrian/ascolta/internal/capture"
)

// checkTimeout bounds a single readiness check. The per-check context is
// derived from the request, so client disconnects cancel early.
const checkTimeout = 5 * time.Second

// Checker probes one dependency by name. Check returns nil while the
// dependency is healthy; the error text of a failure is surfaced verbatim in
// the /readyz body.
type Checker struct {
	// Name keys this check in the JSON response, e.g. "controller".
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Pinger verifies an event loop is still consuming. *capture.Controller
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

var _ Pinger = (*capture.Controller)(nil)

// Controller returns a Checker that fails when the capture controller's
// event loop stops accepting events.
func Controller(p Pinger) Checker {
	return Checker{Name: "controller", Check: p.Ping}
}

// CaptureDevice returns a Checker that fails once the audio device has
// been lost. There is no runtime recovery from a lost device, so readiness
// stays down until restart.
func CaptureDevice(status func() capture.Status) Checker {
	return Checker{
		Name: "capture_device",
		Check: func(context.Context) error {
			if status().DeviceLost {
				return errors.New("capture device lost")
			}
			return nil
		},
	}
}

// result is the response body shared by both probes.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the probe routes. The checker list is fixed at
// construction, which is what makes the Handler safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a [Handler] over the given checkers. /readyz evaluates them
// sequentially in the order given.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: slices.Clone(checkers)}
}

// Healthz is the liveness probe. Reaching it at all is the signal, so it
// unconditionally answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is the readiness probe: 200 when every checker passes, 503 with
// per-check failure details otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}
	code := http.StatusOK

	for _, c := range h.checkers {
		if err := runCheck(r.Context(), c); err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			code = http.StatusServiceUnavailable
		} else {
			res.Checks[c.Name] = "ok"
		}
	}

	writeJSON(w, code, res)
}

// runCheck evaluates one checker under the per-check timeout.
func runCheck(ctx context.Context, c Checker) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return c.Check(ctx)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON marshals before writing so an encoding failure never truncates a
// response mid-body.
func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write(body)
}
