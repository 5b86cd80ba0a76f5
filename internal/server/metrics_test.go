package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := &Server{
		runner: &fakeRunner{},
		cfg: &Config{
			MetricsRegistry: reg,
			MetricsGatherer: reg,
		},
		metrics: newServerMetrics(reg),
	}
	return s, reg
}

// gatherValue finds a metric by name in the registry and returns the value of
// the first sample matching the given label pair ("" labelName matches any).
func gatherValue(t *testing.T, reg *prometheus.Registry, name, labelName, labelValue string) (float64, bool) {
	t.Helper()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := labelName == ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == labelName && lp.GetValue() == labelValue {
					matched = true
				}
			}
			if !matched {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue(), true
			}
			if g := m.GetGauge(); g != nil {
				return g.GetValue(), true
			}
		}
	}
	return 0, false
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_RunCounterIncremented(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.runRequestsTotal.WithLabelValues("ok").Inc()

	v, ok := gatherValue(t, reg, "docqa_run_requests_total", "outcome", "ok")
	if !ok {
		t.Fatal("docqa_run_requests_total{outcome=\"ok\"} not found in gathered metrics")
	}
	if v != 1 {
		t.Errorf("want counter=1, got %v", v)
	}
}

func Test_Metrics_QuestionResultLabels(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	// Three questions answered, one of them on the fallback path.
	s.metrics.questionsTotal.WithLabelValues("ok").Add(2)
	s.metrics.questionsTotal.WithLabelValues("degraded").Inc()

	if v, ok := gatherValue(t, reg, "docqa_run_questions_total", "result", "ok"); !ok || v != 2 {
		t.Errorf("questions{result=ok}: want 2, got %v (found=%v)", v, ok)
	}
	if v, ok := gatherValue(t, reg, "docqa_run_questions_total", "result", "degraded"); !ok || v != 1 {
		t.Errorf("questions{result=degraded}: want 1, got %v (found=%v)", v, ok)
	}
}

// gatherHistogramCount returns the sample count of a histogram's series
// matching the given label pair.
func gatherHistogramCount(t *testing.T, reg *prometheus.Registry, name, labelName, labelValue string) (uint64, bool) {
	t.Helper()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == labelName && lp.GetValue() == labelValue {
					return m.GetHistogram().GetSampleCount(), true
				}
			}
		}
	}
	return 0, false
}

func Test_Metrics_FetchErrorObservesDuration(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)
	s.fetcher = &fakeFetcher{err: errors.New("connection refused")}

	req := httptest.NewRequest(http.MethodPost, "/v1/run",
		strings.NewReader(`{"documentUrl":"http://example.com/doc","questions":["q"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	// Fetch failures count AND time the request, like every other outcome.
	if v, ok := gatherValue(t, reg, "docqa_run_requests_total", "outcome", "fetch_error"); !ok || v != 1 {
		t.Errorf("requests{outcome=fetch_error}: want 1, got %v (found=%v)", v, ok)
	}
	if n, ok := gatherHistogramCount(t, reg, "docqa_run_duration_seconds", "outcome", "fetch_error"); !ok || n != 1 {
		t.Errorf("duration{outcome=fetch_error}: want 1 sample, got %d (found=%v)", n, ok)
	}
}

func Test_Metrics_ActiveRunsGauge(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.activeRuns.Inc()
	s.metrics.activeRuns.Inc()

	v, ok := gatherValue(t, reg, "docqa_run_active", "", "")
	if !ok {
		t.Fatal("docqa_run_active not found in gathered metrics")
	}
	if v != 2 {
		t.Errorf("want active=2, got %v", v)
	}
}
