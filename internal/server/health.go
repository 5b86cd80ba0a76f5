package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/docqa-go/internal/logging"
)

// probeTimeout caps each dependency probe during a readiness check so
// /api/ready answers promptly even when a backend hangs.
const probeTimeout = 5 * time.Second

// Pinger reports the reachability of one dependency: nil when healthy, a
// descriptive error otherwise. Implementations must tolerate concurrent
// calls.
type Pinger interface {
	// Ping checks the dependency within the given context.
	Ping(ctx context.Context) error

	// Name is the short label shown in readiness responses
	// (e.g. "ollama", "upstream").
	Name() string
}

// MultiPinger folds several Pingers into one. The serve command uses it for
// a single startup probe across all dependencies.
type MultiPinger struct {
	pingers []Pinger
}

// NewMultiPinger constructs a MultiPinger over the given probes.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping probes in order and stops at the first failure, returning it wrapped
// with the failing probe's name. Nil when every probe succeeds.
func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

func (m *MultiPinger) Name() string { return "multi" }

// readyCheck is one dependency's entry in the readiness response.
type readyCheck struct {
	// Name is the dependency label (e.g. "ollama", "upstream").
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// Error holds the failure reason when OK is false. Empty on success.
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every dependency probe succeeded.
	Ready bool `json:"ready"`
	// Checks contains the per-dependency probe results.
	Checks []readyCheck `json:"checks"`
}

// handleReady serves GET /api/ready. Every registered Pinger is probed under
// probeTimeout; the response is 200 when all pass and 503 otherwise, with
// per-dependency detail either way. /api/health stays a pure liveness check,
// so this is the endpoint that actually reflects dependency state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true}
	for _, p := range s.pingers {
		probeCtx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Ping(probeCtx)
		cancel()

		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("ready encode error", slog.Any("error", err))
	}
}
