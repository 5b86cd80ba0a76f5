package budget

import (
	"strings"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

func TestEstimate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := Estimate(tc.in); got != tc.want {
			t.Errorf("Estimate(%d chars): want %d, got %d", len(tc.in), tc.want, got)
		}
	}
}

func rankedChunks(sizes ...int) []rag.ScoredChunk {
	out := make([]rag.ScoredChunk, len(sizes))
	for i, n := range sizes {
		out[i] = rag.ScoredChunk{Chunk: rag.Chunk{ID: i, Text: strings.Repeat("x", n)}}
	}
	return out
}

func TestFitChunks_AllFit(t *testing.T) {
	t.Parallel()

	ranked := rankedChunks(40, 40, 40) // 10 tokens each
	got := FitChunks(ranked, 10, 100)
	if len(got) != 3 {
		t.Errorf("want all 3 chunks kept, got %d", len(got))
	}
}

func TestFitChunks_DropsTail(t *testing.T) {
	t.Parallel()

	ranked := rankedChunks(40, 40, 40) // 10 tokens each
	got := FitChunks(ranked, 5, 27)    // remaining 22 fits two chunks
	if len(got) != 2 {
		t.Fatalf("want 2 chunks kept, got %d", len(got))
	}
	if got[0].Chunk.ID != 0 || got[1].Chunk.ID != 1 {
		t.Errorf("kept wrong chunks: %d, %d", got[0].Chunk.ID, got[1].Chunk.ID)
	}
}

func TestFitChunks_TopChunkAlwaysKept(t *testing.T) {
	t.Parallel()

	ranked := rankedChunks(4000) // 1000 tokens
	got := FitChunks(ranked, 0, 10)
	if len(got) != 1 {
		t.Errorf("top chunk must survive an undersized budget, got %d chunks", len(got))
	}
}

func TestFitChunks_Empty(t *testing.T) {
	t.Parallel()

	if got := FitChunks(nil, 0, 100); len(got) != 0 {
		t.Errorf("want empty result, got %d", len(got))
	}
}
