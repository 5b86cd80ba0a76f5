package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/keypool"
	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/rag"
)

// buildPipeline wires the question-answering pipeline from environment
// configuration: key pool, answer client, and tuning knobs. It is shared
// by the ask and serve commands.
func buildPipeline(embedder rag.Embedder) (*pipeline.Pipeline, *keypool.Pool, error) {
	pool, err := keypool.FromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("loading API keys: %w", err)
	}

	client, err := answer.NewClient(pool, answer.Config{
		BaseURL:         os.Getenv("A4F_BASE_URL"),
		Model:           os.Getenv("A4F_MODEL"),
		MaxAnswerTokens: getEnvInt("ANSWER_MAX_TOKENS", 0),
		Temperature:     getEnvFloat32("ANSWER_TEMPERATURE", 0),
		Timeout:         getEnvDuration("ANSWER_TIMEOUT", 0),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building answer client: %w", err)
	}

	p, err := pipeline.New(embedder, client, pipeline.Config{
		MaxTokensPerChunk: getEnvInt("CHUNK_MAX_TOKENS", 0),
		OverlapSentences:  getEnvInt("CHUNK_OVERLAP_SENTENCES", -1),
		TopK:              getEnvInt("RETRIEVAL_TOP_K", 0),
		MaxConcurrent:     getEnvInt("QUESTION_CONCURRENCY", 0),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building pipeline: %w", err)
	}
	return p, pool, nil
}

// resolveBind picks the serve bind address. An explicitly set flag wins;
// otherwise DOCQA_HOST / DOCQA_PORT apply (config.Load populates them from
// the YAML server section), and the flag defaults are the final fallback.
func resolveBind(flagHost string, flagPort int, hostSet, portSet bool) (string, int) {
	host, port := flagHost, flagPort
	if !hostSet {
		if v := os.Getenv("DOCQA_HOST"); v != "" {
			host = v
		}
	}
	if !portSet {
		port = getEnvInt("DOCQA_PORT", port)
	}
	return host, port
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the float value of the named environment variable,
// or fallback if unset or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

// getEnvDuration returns the duration value of the named environment
// variable, or fallback if unset or not parseable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
