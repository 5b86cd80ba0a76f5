package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/keypool"
	"github.com/54b3r/docqa-go/internal/rag"
)

// EmbedderPinger probes the embedding backend by embedding a single short
// string. It satisfies the Pinger interface and is used by GET /api/ready.
type EmbedderPinger struct {
	// embedder is the embedding backend to probe.
	embedder rag.Embedder
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder
// and backend name.
func NewEmbedderPinger(e rag.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *EmbedderPinger) Name() string { return p.name }

// Ping embeds a single token and checks a vector came back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed returned no vector")
	}
	return nil
}

// UpstreamPinger probes the answer-generation API by listing its models
// with a pooled credential. It satisfies the Pinger interface.
type UpstreamPinger struct {
	// baseURL is the OpenAI-compatible API root.
	baseURL string
	// pool supplies the credential for the probe.
	pool *keypool.Pool
	// client is the HTTP client used for probes.
	client *http.Client
}

// NewUpstreamPinger constructs an UpstreamPinger for the given API root.
func NewUpstreamPinger(baseURL string, pool *keypool.Pool) *UpstreamPinger {
	return &UpstreamPinger{
		baseURL: strings.TrimRight(baseURL, "/"),
		pool:    pool,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the dependency label used in readiness responses.
func (p *UpstreamPinger) Name() string { return "upstream" }

// Ping issues GET /models against the API root. Any 2xx response counts
// as reachable.
func (p *UpstreamPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.pool.Next())

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
