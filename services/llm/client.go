package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// ImageInput is one image attached to a vision request.
type ImageInput struct {
	Data []byte
	MIME string
}

// Schema describes the JSON document a structured completion must
// produce. Raw is a JSON Schema; providers translate it into their
// native structured-output mechanism (forced tool use on Anthropic,
// strict json_schema response format on OpenAI).
type Schema struct {
	Name        string
	Description string
	Raw         json.RawMessage
}

// Client is the provider-neutral interface the agents talk to.
// Implementations retry transient provider failures internally; errors
// returned from these methods are not retried by callers.
type Client interface {
	Complete(ctx context.Context, system, prompt string, params GenerationParams) (string, error)
	CompleteStructured(ctx context.Context, system, prompt string, schema Schema, params GenerationParams) (string, error)
	CompleteVisionStructured(ctx context.Context, system, prompt string, images []ImageInput, schema Schema, params GenerationParams) (string, error)
}

// statusError is an HTTP-level provider failure.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.status, e.body)
}

// retryable reports whether the failure is worth another attempt:
// rate limits and server-side errors.
func (e *statusError) retryable() bool {
	return e.status == 429 || e.status >= 500
}

const maxTransportAttempts = 3

// withRetry runs fn up to maxTransportAttempts times, backing off
// exponentially on retryable provider errors. Context errors and
// non-retryable failures return immediately.
func withRetry(ctx context.Context, fn func() (string, error)) (string, error) {
	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 1; attempt <= maxTransportAttempts; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err

		var se *statusError
		if !errors.As(err, &se) || !se.retryable() {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", lastErr
}
