package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/pipeline"
)

// ---------------------------------------------------------------------------
// Fakes for run handler tests
// ---------------------------------------------------------------------------

// fakeRunner implements the runner interface for tests.
type fakeRunner struct {
	// answers is returned verbatim from Run.
	answers []pipeline.Answer
	// err is returned as the error value.
	err error
	// gotText and gotQuestions record the last Run call.
	gotText      string
	gotQuestions []string
}

func (f *fakeRunner) Run(_ context.Context, documentText string, questions []string) ([]pipeline.Answer, error) {
	f.gotText = documentText
	f.gotQuestions = questions
	if f.err != nil {
		return nil, f.err
	}
	return f.answers, nil
}

// fakeFetcher implements the documentFetcher interface for tests.
type fakeFetcher struct {
	text string
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (string, error) {
	return f.text, f.err
}

// newTestServer builds a minimal *Server for direct handler invocation,
// backed by a fresh metrics registry so tests stay hermetic.
func newTestServer() *Server {
	reg := prometheus.NewRegistry()
	return &Server{
		runner:  &fakeRunner{},
		cfg:     &Config{Port: 8080},
		log:     slog.Default(),
		metrics: newServerMetrics(reg),
	}
}

// newRunTestServer builds a *Server wired with the given runner and fetcher.
func newRunTestServer(run runner, fetcher documentFetcher) *Server {
	s := newTestServer()
	if run != nil {
		s.runner = run
	}
	s.fetcher = fetcher
	return s
}

// ---------------------------------------------------------------------------
// POST /v1/run — validation error paths
// ---------------------------------------------------------------------------

func TestHandleRun_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newRunTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/run",
		strings.NewReader(`not-json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleRun_MissingDocument(t *testing.T) {
	t.Parallel()

	s := newRunTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/run",
		strings.NewReader(`{"questions":["what is it?"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleRun_BothDocumentForms(t *testing.T) {
	t.Parallel()

	s := newRunTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/run",
		strings.NewReader(`{"documentUrl":"http://x","documentText":"y","questions":["q"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleRun_MissingQuestions(t *testing.T) {
	t.Parallel()

	s := newRunTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/run",
		strings.NewReader(`{"documentText":"The sky is blue."}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleRun_URLWithoutFetcher(t *testing.T) {
	t.Parallel()

	s := newRunTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/run",
		strings.NewReader(`{"documentUrl":"http://example.com/doc","questions":["q"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /v1/run — pipeline outcomes
// ---------------------------------------------------------------------------

func TestHandleRun_Success(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{answers: []pipeline.Answer{
		{Text: "It is blue."},
		{Text: "Unable to generate an answer for this question.", Degraded: true},
	}}
	s := newRunTestServer(run, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/run",
		strings.NewReader(`{"documentText":"The sky is blue. Grass is green.","questions":["sky?","grass?"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleRun(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp runResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Answers) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(resp.Answers))
	}
	if resp.Answers[0].Answer != "It is blue." || resp.Answers[0].Degraded {
		t.Errorf("answer[0]: got %+v", resp.Answers[0])
	}
	if !resp.Answers[1].Degraded {
		t.Errorf("answer[1]: expected degraded, got %+v", resp.Answers[1])
	}
	if len(run.gotQuestions) != 2 || run.gotQuestions[0] != "sky?" {
		t.Errorf("runner received questions %v", run.gotQuestions)
	}
}

func TestHandleRun_FetchedDocument(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{answers: []pipeline.Answer{{Text: "ok"}}}
	fetcher := &fakeFetcher{text: "Fetched content here."}
	s := newRunTestServer(run, fetcher)

	req := httptest.NewRequest(http.MethodPost, "/v1/run",
		strings.NewReader(`{"documentUrl":"http://example.com/doc","questions":["q"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleRun(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if run.gotText != "Fetched content here." {
		t.Errorf("runner received text %q", run.gotText)
	}
}

func TestHandleRun_FetchError(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: fmt.Errorf("connection refused")}
	s := newRunTestServer(&fakeRunner{}, fetcher)

	req := httptest.NewRequest(http.MethodPost, "/v1/run",
		strings.NewReader(`{"documentUrl":"http://example.com/doc","questions":["q"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on fetch failure, got %d", w.Code)
	}
}

func TestHandleRun_EmptyDocument(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{err: fmt.Errorf("chunk document: %w", chunker.ErrEmptyDocument)}
	s := newRunTestServer(run, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/run",
		strings.NewReader(`{"documentText":"   ","questions":["q"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleRun(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for empty document, got %d", w.Code)
	}
}

func TestHandleRun_PipelineError(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{err: errors.New("embedding backend unreachable")}
	s := newRunTestServer(run, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/run",
		strings.NewReader(`{"documentText":"The sky is blue.","questions":["q"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleRun(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
