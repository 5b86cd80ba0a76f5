package rag

import (
	"context"
	"errors"
	"fmt"
)

// DefaultTopK is the number of chunks retrieved per query when the caller
// does not specify a count.
const DefaultTopK = 5

// IndexRetriever retrieves chunks from an in-memory Index by embedding the
// query with the same embedder that produced the index vectors.
type IndexRetriever struct {
	embedder Embedder
	index    *Index
	topK     int
}

// NewIndexRetriever wires an embedder to a built index. topK sets the
// default result count for Retrieve; values ≤ 0 fall back to DefaultTopK.
func NewIndexRetriever(embedder Embedder, index *Index, topK int) (*IndexRetriever, error) {
	if embedder == nil {
		return nil, errors.New("rag: embedder is required")
	}
	if index == nil {
		return nil, errors.New("rag: index is required")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &IndexRetriever{
		embedder: embedder,
		index:    index,
		topK:     topK,
	}, nil
}

// Retrieve embeds the query and returns the topK most similar chunks.
// A topK of 0 uses the retriever's default.
func (r *IndexRetriever) Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = r.topK
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for one query", len(vecs))
	}

	return r.index.Search(Normalize(vecs[0]), topK), nil
}
