// Package pipeline orchestrates the full document question-answering
// flow: chunk the document, embed the chunks once, build an in-memory
// index, then answer each question concurrently against it.
//
// Failures split into two classes. Anything in the shared build phase
// (chunking, batch embedding, index construction) fails the whole run,
// since no question can be answered without an index. Per-question
// failures degrade only that question's answer and never abort the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// DefaultTopK is the number of chunks retrieved per question.
	DefaultTopK = 3

	// DefaultMaxConcurrent bounds in-flight question workers.
	DefaultMaxConcurrent = 4
)

// Answerer generates one answer from a question and its retrieved
// context. *answer.Client satisfies it.
type Answerer interface {
	Generate(ctx context.Context, question string, retrieved []rag.ScoredChunk) (string, error)
}

// Config tunes a Pipeline. Zero values use the package defaults.
type Config struct {
	// MaxTokensPerChunk caps approximate chunk size.
	MaxTokensPerChunk int

	// OverlapSentences is the sentence overlap between chunks.
	// Negative selects the default; zero disables overlap.
	OverlapSentences int

	// TopK is the retrieval depth per question.
	TopK int

	// MaxConcurrent bounds simultaneous question workers.
	MaxConcurrent int
}

func (c Config) withDefaults() Config {
	if c.MaxTokensPerChunk <= 0 {
		c.MaxTokensPerChunk = chunker.DefaultMaxTokens
	}
	if c.OverlapSentences < 0 {
		c.OverlapSentences = chunker.DefaultOverlapSentences
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	return c
}

// Answer is the result for one question.
type Answer struct {
	// Text is the generated answer, or the fallback text when the
	// question could not be answered.
	Text string

	// Degraded reports that Text is a fallback rather than a model
	// answer grounded in retrieval.
	Degraded bool
}

// Pipeline runs document question answering end to end.
type Pipeline struct {
	embedder rag.Embedder
	answerer Answerer
	cfg      Config
}

// New builds a Pipeline from its two injected dependencies.
func New(embedder rag.Embedder, answerer Answerer, cfg Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, errors.New("pipeline: embedder is required")
	}
	if answerer == nil {
		return nil, errors.New("pipeline: answerer is required")
	}
	return &Pipeline{
		embedder: embedder,
		answerer: answerer,
		cfg:      cfg.withDefaults(),
	}, nil
}

// Run answers questions against documentText. The returned slice is
// parallel to questions: answers[i] belongs to questions[i] regardless
// of completion order. An empty question list returns an empty slice
// after the document is validated, chunked, and indexed.
func (p *Pipeline) Run(ctx context.Context, documentText string, questions []string) ([]Answer, error) {
	log := logging.FromContext(ctx)
	start := time.Now()

	chunks, err := chunker.Split(documentText, p.cfg.MaxTokensPerChunk, p.cfg.OverlapSentences)
	if err != nil {
		return nil, fmt.Errorf("pipeline: chunk document: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("pipeline: embed chunks: %w", err)
	}

	index, err := rag.BuildIndex(chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build index: %w", err)
	}
	retriever, err := rag.NewIndexRetriever(p.embedder, index, p.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build retriever: %w", err)
	}

	log.Info("index built",
		slog.Int("chunks", index.Len()),
		slog.Int("questions", len(questions)),
		slog.Duration("elapsed", time.Since(start)))

	answers := make([]Answer, len(questions))
	sem := make(chan struct{}, p.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for i, q := range questions {
		wg.Add(1)
		go func(slot int, question string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			answers[slot] = p.answerOne(ctx, retriever, question)
		}(i, q)
	}
	wg.Wait()

	return answers, nil
}

// answerOne resolves a single question, absorbing its failures into a
// degraded answer.
func (p *Pipeline) answerOne(ctx context.Context, retriever rag.Retriever, question string) Answer {
	log := logging.FromContext(ctx)

	retrieved, err := retriever.Retrieve(ctx, question, p.cfg.TopK)
	if err != nil {
		log.Warn("retrieval failed", slog.String("error", err.Error()))
		return Answer{Text: answer.FallbackAnswer, Degraded: true}
	}

	text, err := p.answerer.Generate(ctx, question, retrieved)
	if err != nil {
		log.Warn("generation failed", slog.String("error", err.Error()))
		if errors.Is(err, answer.ErrExhausted) && text != "" {
			return Answer{Text: text, Degraded: true}
		}
		return Answer{Text: answer.FallbackAnswer, Degraded: true}
	}

	return Answer{Text: text}
}
