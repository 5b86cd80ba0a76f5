package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakePinger is a scripted Pinger: Ping always returns err.
type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// doReady runs GET /api/ready against a server with the given pingers and
// returns the status code and decoded body.
func doReady(t *testing.T, pingers ...Pinger) (int, readyResponse) {
	t.Helper()

	s := newTestServer()
	s.pingers = pingers

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	s.handleReady(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w.Code, resp
}

// TestHandleHealth_OK verifies that the liveness endpoint answers 200 with
// {"status":"ok"} regardless of dependency state.
func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d — body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected %q, got %q", "ok", body["status"])
	}
}

// TestHandleReady covers the readiness endpoint: 200 when every probe
// passes (or none are registered), 503 as soon as one fails, with the
// per-dependency detail reflecting each probe's outcome.
func TestHandleReady(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		pingers   []Pinger
		wantCode  int
		wantReady bool
	}{
		{
			name:      "no pingers",
			wantCode:  http.StatusOK,
			wantReady: true,
		},
		{
			name: "all healthy",
			pingers: []Pinger{
				&fakePinger{name: "embedder"},
				&fakePinger{name: "upstream"},
			},
			wantCode:  http.StatusOK,
			wantReady: true,
		},
		{
			name: "one failing",
			pingers: []Pinger{
				&fakePinger{name: "embedder"},
				&fakePinger{name: "upstream", err: errors.New("connection refused")},
			},
			wantCode:  http.StatusServiceUnavailable,
			wantReady: false,
		},
		{
			name: "all failing",
			pingers: []Pinger{
				&fakePinger{name: "embedder", err: errors.New("timeout")},
				&fakePinger{name: "upstream", err: errors.New("connection refused")},
			},
			wantCode:  http.StatusServiceUnavailable,
			wantReady: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			code, resp := doReady(t, tc.pingers...)
			if code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, code)
			}
			if resp.Ready != tc.wantReady {
				t.Errorf("ready: expected %v, got %v", tc.wantReady, resp.Ready)
			}
			if len(resp.Checks) != len(tc.pingers) {
				t.Fatalf("expected %d checks, got %d", len(tc.pingers), len(resp.Checks))
			}
			for i, p := range tc.pingers {
				fp := p.(*fakePinger)
				check := resp.Checks[i]
				if check.Name != fp.name {
					t.Errorf("check %d: expected name %q, got %q", i, fp.name, check.Name)
				}
				if check.OK != (fp.err == nil) {
					t.Errorf("check %q: expected ok=%v", check.Name, fp.err == nil)
				}
				if fp.err != nil && check.Error == "" {
					t.Errorf("check %q: expected non-empty error", check.Name)
				}
			}
		})
	}
}

// TestMultiPinger verifies the aggregate probe: healthy when all members
// are, otherwise the first failure wins, wrapped with the member's name.
func TestMultiPinger(t *testing.T) {
	t.Parallel()

	healthy := &fakePinger{name: "embedder"}
	down := &fakePinger{name: "upstream", err: errors.New("connection refused")}
	alsoDown := &fakePinger{name: "other", err: errors.New("also down")}

	if err := NewMultiPinger(healthy, healthy).Ping(context.Background()); err != nil {
		t.Errorf("all healthy: expected nil error, got %v", err)
	}
	if err := NewMultiPinger().Ping(context.Background()); err != nil {
		t.Errorf("empty: expected nil error, got %v", err)
	}

	err := NewMultiPinger(healthy, down, alsoDown).Ping(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if got, want := err.Error(), "upstream: connection refused"; got != want {
		t.Errorf("error: expected %q, got %q", want, got)
	}
}
