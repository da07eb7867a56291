package polygon

import (
	"errors"
	"fmt"
)

// Sentinel kinds for fetch errors.
var (
	// ErrProvider marks a non-retryable HTTP error status from the provider.
	ErrProvider = errors.New("provider error")
	// ErrRateLimited is returned when a configured retry cap is exhausted.
	ErrRateLimited = errors.New("rate limit retries exhausted")
	// ErrTransport marks a network failure; it degrades a fetch to partial.
	ErrTransport = errors.New("transport error")
	// ErrDecode marks an unreadable page; it degrades a fetch to partial.
	ErrDecode = errors.New("decode error")
)

// ProviderError describes a fatal HTTP response.
type ProviderError struct {
	StatusCode int
	Status     string
	URL        string // apiKey redacted
	Body       string // leading bytes of the response body
}

func (e *ProviderError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("polygon %s: %s: %s", e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("polygon %s: %s", e.URL, e.Status)
}

func (e *ProviderError) Unwrap() error { return ErrProvider }
