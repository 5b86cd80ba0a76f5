// Package chunker splits document text into sentence-aligned chunks
// suitable for embedding. Chunks are bounded by an approximate token
// count and overlap by whole sentences so that facts straddling a chunk
// boundary remain retrievable from at least one chunk.
package chunker

import (
	"errors"
	"regexp"
	"strings"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// DefaultMaxTokens caps the approximate token count per chunk.
	DefaultMaxTokens = 400

	// DefaultOverlapSentences is the number of trailing sentences each
	// chunk shares with the next.
	DefaultOverlapSentences = 2
)

// ErrEmptyDocument is returned when the input contains no sentences
// after whitespace trimming.
var ErrEmptyDocument = errors.New("chunker: document contains no sentences")

// sentencePattern matches one sentence: a run of non-terminator
// characters followed by a terminator.
var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]`)

type sentence struct {
	text  string
	start int
	end   int
}

// Split divides text into overlapping chunks of at most maxTokens
// approximate tokens each. Sentences are never split: a chunk always
// starts and ends on a sentence boundary, and a single sentence that
// alone exceeds maxTokens becomes its own chunk. Consecutive chunks
// share the final overlapSentences sentences of the earlier chunk.
//
// Non-positive maxTokens or a negative overlapSentences fall back to the
// package defaults. Chunk IDs are assigned in document order starting
// at zero.
func Split(text string, maxTokens, overlapSentences int) ([]rag.Chunk, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlapSentences < 0 {
		overlapSentences = DefaultOverlapSentences
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, ErrEmptyDocument
	}

	var chunks []rag.Chunk
	i := 0
	for i < len(sentences) {
		// Grow the chunk one sentence at a time while it fits. The
		// first sentence is always taken, so an oversized lone
		// sentence still produces a chunk and the loop advances.
		j := i + 1
		length := len(sentences[i].text)
		for j < len(sentences) {
			candidate := length + 1 + len(sentences[j].text)
			if estimateLen(candidate) > maxTokens {
				break
			}
			length = candidate
			j++
		}

		parts := make([]string, 0, j-i)
		for _, s := range sentences[i:j] {
			parts = append(parts, s.text)
		}
		text := strings.Join(parts, " ")
		chunks = append(chunks, rag.Chunk{
			ID:     len(chunks),
			Text:   text,
			Tokens: budget.Estimate(text),
			Start:  sentences[i].start,
			End:    sentences[j-1].end,
		})

		if j >= len(sentences) {
			break
		}
		next := j - overlapSentences
		if next <= i {
			next = i + 1
		}
		i = next
	}

	return chunks, nil
}

// estimateLen mirrors budget.Estimate for a known byte length, so the
// accumulation loop can size candidates without joining strings.
func estimateLen(n int) int {
	if n == 0 {
		return 0
	}
	if t := n / 4; t > 0 {
		return t
	}
	return 1
}

// splitSentences finds sentence boundaries in text, recording byte
// offsets into the original input. Trailing text after the last
// terminator counts as a final sentence.
func splitSentences(text string) []sentence {
	var out []sentence
	last := 0
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		s := strings.TrimSpace(text[loc[0]:loc[1]])
		if s != "" {
			out = append(out, sentence{text: s, start: loc[0], end: loc[1]})
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		out = append(out, sentence{text: rest, start: last, end: len(text)})
	}
	return out
}
