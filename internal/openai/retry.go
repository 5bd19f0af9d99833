package openai

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultMaxRetries bounds retries for rate-limited calls.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the first backoff delay; it doubles per attempt.
	DefaultBaseDelay = 1 * time.Second
)

// retryPolicy is a reusable bounded-backoff policy: an operation is retried
// only while its error passes the retryable predicate, with delays of
// baseDelay, 2*baseDelay, 4*baseDelay, ...
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	retryable  func(error) bool
}

func newRateLimitRetryPolicy() retryPolicy {
	return retryPolicy{
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		retryable:  IsRateLimited,
	}
}

func (p retryPolicy) do(ctx context.Context, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if attempt >= p.maxRetries || p.retryable == nil || !p.retryable(err) {
			return err
		}

		delay := p.baseDelay << uint(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// IsRateLimited reports whether err is an upstream rate-limit response.
// Auth failures and malformed requests are never retryable.
func IsRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
