// Package server implements the HTTP server that exposes the document
// question-answering pipeline via a small JSON API.
// The server is started by the `docqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/store"
)

// New constructs a Server from the provided pipeline runner and config.
// fetcher and history may be nil to disable URL fetching and answer
// history respectively.
func New(run runner, fetcher documentFetcher, history store.AnswerStore, cfg *Config) (*Server, error) {
	if run == nil {
		return nil, fmt.Errorf("server: runner must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full pipeline run: document download,
		// embedding, and every answer attempt with backoff.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}

	s := &Server{
		runner:  run,
		fetcher: fetcher,
		history: history,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: DOCQA_API_KEY not set — API authentication is disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /v1/run",
		authMiddleware(cfg.APIKey,
			rl.middleware(
				s.instrument("run", http.HandlerFunc(s.handleRun)))))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleRun handles POST /v1/run: fetch (or accept) a document, answer
// every question against it, and return the answers in request order.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DocumentURL == "" && req.DocumentText == "" {
		http.Error(w, "documentUrl or documentText is required", http.StatusBadRequest)
		return
	}
	if req.DocumentURL != "" && req.DocumentText != "" {
		http.Error(w, "documentUrl and documentText are mutually exclusive", http.StatusBadRequest)
		return
	}
	if len(req.Questions) == 0 {
		http.Error(w, "questions is required", http.StatusBadRequest)
		return
	}

	text := req.DocumentText
	docLabel := "inline"
	if req.DocumentURL != "" {
		if s.fetcher == nil {
			http.Error(w, "documentUrl is not supported by this deployment", http.StatusBadRequest)
			return
		}
		docLabel = req.DocumentURL
		fetched, err := s.fetcher.Fetch(r.Context(), req.DocumentURL)
		if err != nil {
			log.Warn("document fetch failed",
				slog.String("url", req.DocumentURL),
				slog.String("error", err.Error()))
			s.metrics.runRequestsTotal.WithLabelValues("fetch_error").Inc()
			s.metrics.runDurationSeconds.WithLabelValues("fetch_error").Observe(time.Since(start).Seconds())
			http.Error(w, "could not fetch document", http.StatusBadRequest)
			return
		}
		text = fetched
	}

	s.metrics.activeRuns.Inc()
	answers, err := s.runner.Run(r.Context(), text, req.Questions)
	s.metrics.activeRuns.Dec()

	if err != nil {
		outcome := "error"
		status := http.StatusInternalServerError
		msg := "pipeline failed"
		if errors.Is(err, chunker.ErrEmptyDocument) {
			outcome = "empty_document"
			status = http.StatusUnprocessableEntity
			msg = "document contains no sentences"
		}
		log.Error("run failed", slog.String("error", err.Error()))
		s.metrics.runRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.runDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		http.Error(w, msg, status)
		return
	}

	resp := runResponse{Answers: make([]answerPayload, len(answers))}
	for i, a := range answers {
		resp.Answers[i] = answerPayload{Answer: a.Text, Degraded: a.Degraded}
		result := "ok"
		if a.Degraded {
			result = "degraded"
		}
		s.metrics.questionsTotal.WithLabelValues(result).Inc()
	}

	s.recordHistory(r.Context(), docLabel, req.Questions, answers)

	s.metrics.runRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.runDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("run encode error", slog.Any("error", err))
	}
}

// recordHistory persists the run's answers. History failures are logged
// and swallowed — persistence must never fail a request.
func (s *Server) recordHistory(ctx context.Context, document string, questions []string, answers []pipeline.Answer) {
	if s.history == nil {
		return
	}
	log := logging.FromContext(ctx)
	for i, a := range answers {
		rec := store.Record{
			Document: document,
			Question: questions[i],
			Answer:   a.Text,
			Degraded: a.Degraded,
		}
		if err := s.history.Append(ctx, rec); err != nil {
			log.Warn("history append failed", slog.String("error", err.Error()))
			return
		}
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
