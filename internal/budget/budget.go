// Package budget provides rough token accounting for prompt assembly.
// Counts use the common chars/4 heuristic — close enough to keep prompts
// under model context limits without shipping a tokenizer.
package budget

import (
	"github.com/54b3r/docqa-go/internal/rag"
)

const charsPerToken = 4

// DefaultMaxPromptTokens bounds the total prompt size handed to the
// answer model, leaving headroom for the completion.
const DefaultMaxPromptTokens = 6000

// Estimate returns the approximate token count of s.
func Estimate(s string) int {
	if len(s) == 0 {
		return 0
	}
	n := len(s) / charsPerToken
	if n == 0 {
		n = 1
	}
	return n
}

// FitChunks trims ranked retrieval results to fit a prompt budget.
// fixedTokens is the cost of everything else in the prompt (instructions,
// question, scaffolding); maxTokens is the total budget. Chunks are kept
// in rank order and dropped from the tail — the lowest-ranked go first.
// At least the top chunk is kept even if it alone exceeds the budget, so
// the model always sees some context.
func FitChunks(ranked []rag.ScoredChunk, fixedTokens, maxTokens int) []rag.ScoredChunk {
	if len(ranked) == 0 {
		return ranked
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxPromptTokens
	}

	remaining := maxTokens - fixedTokens
	kept := ranked[:1]
	used := Estimate(ranked[0].Chunk.Text)
	for _, sc := range ranked[1:] {
		cost := Estimate(sc.Chunk.Text)
		if used+cost > remaining {
			break
		}
		kept = append(kept, sc)
		used += cost
	}
	return kept
}
