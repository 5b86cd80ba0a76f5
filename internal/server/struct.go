package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on POST /v1/run.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all Prometheus metric registrations. If nil,
	// prometheus.DefaultRegisterer is used. Tests inject a fresh registry.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint. If nil,
	// prometheus.DefaultGatherer is used.
	MetricsGatherer prometheus.Gatherer
}

// runner is the interface handleRun calls to answer questions.
// *pipeline.Pipeline satisfies it; tests inject a fake.
type runner interface {
	// Run answers questions against documentText, one Answer per question
	// in input order.
	Run(ctx context.Context, documentText string, questions []string) ([]pipeline.Answer, error)
}

// documentFetcher downloads and cleans a document by URL.
// *document.Fetcher satisfies it; tests inject a fake.
type documentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Server is the HTTP server that exposes the question-answering pipeline.
type Server struct {
	// runner answers questions; set to the pipeline in production,
	// overridden by a fake in tests.
	runner runner
	// fetcher downloads documents referenced by URL. May be nil, in which
	// case only inline documentText requests are accepted.
	fetcher documentFetcher
	// history persists answered questions. May be nil (history disabled).
	history store.AnswerStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds all Prometheus metrics owned by this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// runRequest is the JSON body for POST /v1/run.
type runRequest struct {
	// DocumentURL is the location of the document to answer questions about.
	// Exactly one of DocumentURL and DocumentText must be set.
	DocumentURL string `json:"documentUrl,omitempty"`
	// DocumentText is the raw document text, for callers that already hold it.
	DocumentText string `json:"documentText,omitempty"`
	// Questions is the ordered list of questions to answer.
	Questions []string `json:"questions"`
}

// answerPayload is one element of runResponse.Answers.
type answerPayload struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Degraded is true when Answer is a fallback rather than a model answer.
	Degraded bool `json:"degraded,omitempty"`
}

// runResponse is the JSON response for POST /v1/run. Answers is parallel
// to the request's Questions.
type runResponse struct {
	Answers []answerPayload `json:"answers"`
}
