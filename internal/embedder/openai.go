// Package embedder turns text into dense vectors for retrieval. Two backends
// are supported over plain HTTP: the OpenAI embeddings API (including Azure
// OpenAI deployments) and a local Ollama server.
package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// OpenAIEmbedder calls the OpenAI (or Azure OpenAI) embeddings REST API.
// Safe for concurrent use.
type OpenAIEmbedder struct {
	// cfg holds the immutable connection settings.
	cfg OpenAIConfig
	// client is shared across calls; requests carry their own context.
	client *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com/openai".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name (e.g. "text-embedding-3-small").
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version (e.g. "2025-04-01-preview").
	// Ignored when Azure is false.
	APIVersion string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		cfg:    *cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// url returns the embeddings endpoint for the configured mode.
func (e *OpenAIEmbedder) url() string {
	if e.cfg.Azure {
		return e.cfg.BaseURL + "/deployments/" + e.cfg.Model + "/embeddings?api-version=" + e.cfg.APIVersion
	}
	return e.cfg.BaseURL + "/embeddings"
}

// authHeader returns the auth header for the configured mode. Azure uses a
// bare api-key header; OpenAI uses a Bearer token.
func (e *OpenAIEmbedder) authHeader() map[string]string {
	if e.cfg.Azure {
		return map[string]string{"api-key": e.cfg.APIKey}
	}
	return map[string]string{"Authorization": "Bearer " + e.cfg.APIKey}
}

// Embed converts a batch of texts into embeddings. The returned slice is
// parallel to the input: position i holds the vector for texts[i].
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := struct {
		Input      []string `json:"input"`
		Model      string   `json:"model"`
		Dimensions int      `json:"dimensions,omitempty"`
	}{Input: texts, Model: e.cfg.Model}
	if e.cfg.Dimensions > 0 {
		req.Dimensions = e.cfg.Dimensions
	}

	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}

	code, err := postJSON(ctx, e.client, e.url(), e.authHeader(), req, &resp)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	if !statusOK(code) {
		if resp.Error != nil {
			return nil, fmt.Errorf("openai embedder: %s", resp.Error.Message)
		}
		return nil, fmt.Errorf("openai embedder: HTTP %d", code)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// Results may arrive out of order; place each by its declared index.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embedder: index %d out of range [0, %d)", d.Index, len(texts))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
