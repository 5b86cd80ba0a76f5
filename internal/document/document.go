// Package document fetches and normalizes source documents before they
// enter the answering pipeline.
package document

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a whole document download. Large PDFs and
	// slow mirrors are common, so this is deliberately generous.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxBytes caps how much of a response body is read.
	DefaultMaxBytes = 32 << 20

	defaultUserAgent = "docqa/1.0 (document question answering)"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	strayChars    = regexp.MustCompile(`[^\w\s.,;:!?()-]`)
)

// Fetcher downloads documents over HTTP.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// FetcherConfig tunes a Fetcher. Zero values use the defaults above.
type FetcherConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

// NewFetcher constructs a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
	}
}

// Fetch downloads the document at url and returns its cleaned text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("document: creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain, text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("document: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("document: unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", fmt.Errorf("document: reading body: %w", err)
	}

	return Clean(string(body)), nil
}

// Clean normalizes raw document text: whitespace runs collapse to a
// single space, characters outside the plain punctuation set are
// dropped, and the result is trimmed.
func Clean(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = strayChars.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
