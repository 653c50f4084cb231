package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lodrian/ascolta/internal/capture"
)

// probe invokes one handler method and decodes the JSON body.
func probe(t *testing.T, fn http.HandlerFunc, path string) (*httptest.ResponseRecorder, result) {
	t.Helper()
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s body: %v", path, err)
	}
	return rec, body
}

func pass(context.Context) error { return nil }

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec, body := probe(t, New().Healthz, "/healthz")

	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	broken := Checker{Name: "capture_device", Check: func(context.Context) error {
		return errors.New("capture device lost")
	}}

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "controller", Check: pass},
				{Name: "capture_device", Check: pass},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"controller": "ok", "capture_device": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{broken, {Name: "controller", Check: pass}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{
				"capture_device": "fail: capture device lost",
				"controller":     "ok",
			},
		},
		{
			name:       "no checkers",
			checkers:   nil,
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, body := probe(t, New(tt.checkers...).Readyz, "/readyz")

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestRegister_Routes(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New(Checker{Name: "noop", Check: pass}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}

		// Routes are registered for GET only.
		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s = %d, want 405", path, rec.Code)
		}
	}
}

func TestReadyz_CanceledRequestFailsClosed(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rec.Code)
	}
}

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error { return p.err }

func TestControllerChecker(t *testing.T) {
	t.Parallel()
	c := Controller(&fakePinger{})
	if c.Name != "controller" {
		t.Errorf("name = %q, want controller", c.Name)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("healthy controller: %v", err)
	}

	c = Controller(&fakePinger{err: capture.ErrControllerClosed})
	if err := c.Check(context.Background()); err == nil {
		t.Error("expected error from a stopped controller")
	}
}

func TestCaptureDeviceChecker(t *testing.T) {
	t.Parallel()
	st := capture.Status{}
	c := CaptureDevice(func() capture.Status { return st })
	if c.Name != "capture_device" {
		t.Errorf("name = %q, want capture_device", c.Name)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("device present: %v", err)
	}

	st.DeviceLost = true
	if err := c.Check(context.Background()); err == nil {
		t.Error("expected error once the device is lost")
	}
}
