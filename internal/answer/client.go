// Package answer generates grounded answers from retrieved context using
// an OpenAI-compatible chat completions endpoint. Each attempt draws a
// fresh credential from the key pool, so retries after a rate limit land
// on a different account.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/keypool"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// DefaultBaseURL is the OpenAI-compatible endpoint used when the
	// config does not override it.
	DefaultBaseURL = "https://api.a4f.co/v1"

	// DefaultModel is the chat model used for answer generation.
	DefaultModel = "provider-2/gpt-4o-mini"

	// DefaultMaxRetries is the total attempt count per question,
	// including the first try.
	DefaultMaxRetries = 3

	// DefaultTimeout bounds a single completion attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultBackoffBase is the sleep after the first failed attempt;
	// it doubles for each subsequent failure.
	DefaultBackoffBase = time.Second

	defaultMaxAnswerTokens = 150
	defaultTemperature     = 0.3
	defaultTopP            = 0.9
)

// FallbackAnswer is returned in place of a model answer when every
// attempt for a question fails. Callers can match it to distinguish a
// degraded answer from a real one.
const FallbackAnswer = "Unable to generate an answer for this question."

// ErrExhausted is returned (wrapped) by Generate when all retry
// attempts fail with transient errors.
var ErrExhausted = errors.New("answer: all attempts exhausted")

const systemPrompt = "You are a precise assistant that answers questions " +
	"using only the provided document context. Answer in 1-2 concise " +
	"sentences grounded in the context. If the context does not contain " +
	"the answer, say so plainly."

// Config controls answer generation. Zero values fall back to the
// package defaults.
type Config struct {
	// BaseURL is the OpenAI-compatible API root.
	BaseURL string

	// Model is the chat completion model identifier.
	Model string

	// MaxRetries is the total number of attempts per question.
	MaxRetries int

	// Timeout bounds each individual attempt.
	Timeout time.Duration

	// BackoffBase is the first retry delay; it doubles per retry.
	BackoffBase time.Duration

	// MaxAnswerTokens caps the completion length.
	MaxAnswerTokens int

	// Temperature and TopP are passed through to the model.
	Temperature float32
	TopP        float32

	// MaxPromptTokens bounds the assembled prompt; retrieved chunks
	// are trimmed from the tail to fit.
	MaxPromptTokens int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.MaxAnswerTokens <= 0 {
		c.MaxAnswerTokens = defaultMaxAnswerTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = defaultTemperature
	}
	if c.TopP <= 0 {
		c.TopP = defaultTopP
	}
	if c.MaxPromptTokens <= 0 {
		c.MaxPromptTokens = budget.DefaultMaxPromptTokens
	}
	return c
}

// completionFunc performs one completion attempt with one credential.
// It exists so tests can substitute a fake without a network.
type completionFunc func(ctx context.Context, credential, prompt string) (string, error)

// Client generates answers with retry and credential rotation.
type Client struct {
	pool       *keypool.Pool
	cfg        Config
	httpClient *http.Client
	complete   completionFunc
	sleep      func(time.Duration)
}

// NewClient builds a Client over the given credential pool.
func NewClient(pool *keypool.Pool, cfg Config) (*Client, error) {
	if pool == nil {
		return nil, errors.New("answer: credential pool is required")
	}
	cfg = cfg.withDefaults()
	c := &Client{
		pool:       pool,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sleep:      time.Sleep,
	}
	c.complete = c.completeOnce
	return c, nil
}

// Generate answers question from the given retrieval results. On a
// transient failure (rate limit, server error, timeout) it backs off
// and retries with the next credential; on a permanent failure it
// returns immediately. When every attempt fails transiently it returns
// FallbackAnswer together with an error wrapping ErrExhausted, so the
// caller holds a usable degraded answer either way.
func (c *Client) Generate(ctx context.Context, question string, retrieved []rag.ScoredChunk) (string, error) {
	log := logging.FromContext(ctx)
	prompt := c.buildPrompt(question, retrieved)

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		credential := c.pool.Next()
		text, err := c.complete(ctx, credential, prompt)
		if err == nil {
			return strings.TrimSpace(text), nil
		}

		switch classify(err) {
		case attemptPermanent:
			return FallbackAnswer, fmt.Errorf("answer: completion failed: %w", err)
		default:
			lastErr = err
			delay := c.cfg.BackoffBase << attempt
			log.Warn("completion attempt failed, backing off",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()))
			c.sleep(delay)
		}
	}

	return FallbackAnswer, fmt.Errorf("answer: %w: last error: %w", ErrExhausted, lastErr)
}

// completeOnce issues one chat completion with one credential. A fresh
// API client per attempt keeps the credential out of any shared state.
func (c *Client) completeOnce(ctx context.Context, credential, prompt string) (string, error) {
	cfg := openai.DefaultConfig(credential)
	cfg.BaseURL = c.cfg.BaseURL
	cfg.HTTPClient = c.httpClient
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.cfg.MaxAnswerTokens,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// buildPrompt assembles the user message: retrieved chunks in rank
// order, trimmed to the prompt budget, followed by the question.
func (c *Client) buildPrompt(question string, ranked []rag.ScoredChunk) string {
	var b strings.Builder

	b.WriteString("Context:\n")
	if len(ranked) == 0 {
		b.WriteString("(no relevant content was found in the document)\n")
	} else {
		fixed := budget.Estimate(systemPrompt) + budget.Estimate(question) + 64
		for _, sc := range budget.FitChunks(ranked, fixed, c.cfg.MaxPromptTokens) {
			b.WriteString(sc.Chunk.Text)
			b.WriteString("\n\n")
		}
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
