// Package rag defines the core retrieval types for the document Q&A
// pipeline: document chunks, the request-scoped in-memory vector index,
// and the embedding and retrieval interfaces. Concrete embedders live in
// internal/embedder and satisfy these interfaces so the pipeline never
// depends on a specific backend.
package rag

import (
	"context"
)

// Chunk is a bounded contiguous slice of the cleaned document text used as
// a retrieval unit. Chunks are immutable once created and ordered by their
// position in the source document.
type Chunk struct {
	// ID is the ordinal index of the chunk within its document (0-based,
	// contiguous). It doubles as the deterministic tie-break key when two
	// chunks score equally against a query.
	ID int

	// Text is the chunk content.
	Text string

	// Tokens is the estimated token count of Text. Always at or below the
	// chunker's configured maximum.
	Tokens int

	// Start and End are byte offsets into the cleaned document text that
	// this chunk spans (Start inclusive, End exclusive).
	Start int
	End   int
}

// ScoredChunk is a chunk paired with its similarity score for one query.
type ScoredChunk struct {
	// Chunk is the retrieved chunk.
	Chunk Chunk

	// Score is the inner product between the normalized query and chunk
	// vectors — equal to cosine similarity, in [-1, 1].
	Score float32
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the pipeline to fetch the
// most relevant chunks for a question. It combines embedding and vector
// search. Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant chunks for the given query,
	// descending by score with ties broken by ascending chunk id.
	Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error)
}
