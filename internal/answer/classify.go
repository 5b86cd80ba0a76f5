package answer

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// attemptStatus describes how one completion attempt ended.
type attemptStatus int

const (
	attemptTransient attemptStatus = iota
	attemptPermanent
)

// classify decides whether an attempt error is worth retrying.
// Rate limits, server errors, timeouts, and network faults are
// transient; other client errors and caller cancellation are permanent.
// Unknown errors default to transient so a flaky network does not burn
// a question.
func classify(err error) attemptStatus {
	if errors.Is(err, context.Canceled) {
		return attemptPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return attemptTransient
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}

	return attemptTransient
}

func classifyStatus(code int) attemptStatus {
	switch {
	case code == http.StatusTooManyRequests:
		return attemptTransient
	case code >= 500:
		return attemptTransient
	case code >= 400:
		return attemptPermanent
	default:
		return attemptTransient
	}
}
