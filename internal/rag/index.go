package rag

import (
	"fmt"
	"math"
	"sort"
)

// Index holds the chunk vectors for exactly one document and answers
// nearest-neighbor queries over them. It is built once, read-only
// thereafter, and discarded at the end of the request — nothing is
// persisted across requests.
//
// At single-document scale (chunk counts in the low hundreds) an exhaustive
// inner-product scan is both exact and fast; no approximate structure is
// justified.
type Index struct {
	// chunks is the ordered chunk list, parallel to vectors.
	chunks []Chunk

	// vectors holds one L2-normalized embedding per chunk.
	vectors [][]float32
}

// BuildIndex constructs an Index from parallel chunk and vector slices.
// vectors[i] is the embedding for chunks[i]. All vectors must share one
// dimension; each is L2-normalized on a private copy so that the inner
// product against a normalized query equals cosine similarity.
//
// The build is all-or-nothing: any mismatch fails the whole index rather
// than producing a partial one.
func BuildIndex(chunks []Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("rag: chunk/vector length mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	dim := 0
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("rag: vector %d is empty", i)
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return nil, fmt.Errorf("rag: vector %d has dimension %d, want %d", i, len(v), dim)
		}
		normalized[i] = Normalize(v)
	}

	return &Index{
		chunks:  chunks,
		vectors: normalized,
	}, nil
}

// Len returns the number of chunks held by the index.
func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Search returns the top-k chunks by inner product against query, descending
// by score with ties broken by ascending chunk id. k is clamped to the chunk
// count; a zero-chunk index, k ≤ 0, or a query whose dimension differs from
// the stored vectors all yield an empty result rather than an error.
// The query must be L2-normalized for scores to be cosine similarity.
func (ix *Index) Search(query []float32, k int) []ScoredChunk {
	if k <= 0 || len(ix.chunks) == 0 {
		return nil
	}
	// A query of the wrong dimension cannot score against the stored
	// vectors; treat it like an empty index instead of reading past a
	// vector's end.
	if len(query) != len(ix.vectors[0]) {
		return nil
	}
	if k > len(ix.chunks) {
		k = len(ix.chunks)
	}

	scored := make([]ScoredChunk, len(ix.chunks))
	for i := range ix.vectors {
		scored[i] = ScoredChunk{
			Chunk: ix.chunks[i],
			Score: dot(ix.vectors[i], query),
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})

	return scored[:k]
}

// Normalize returns an L2-normalized copy of v. A zero vector is returned
// unchanged (as a copy) — normalizing it would divide by zero, and a zero
// vector scores zero against everything anyway.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := float32(1 / math.Sqrt(sum))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

// dot computes the inner product of two equal-length vectors.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
