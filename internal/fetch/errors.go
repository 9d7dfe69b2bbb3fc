package fetch

import (
	"errors"
	"fmt"
)

// ErrExhaustedRetries is returned when every allowed attempt for a URL has
// failed. It always wraps the last underlying error.
var ErrExhaustedRetries = errors.New("retries exhausted")

// TransportError wraps a connection or timeout failure. Always retryable up
// to the attempt cap.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response that the classifier considered an
// ordinary HTTP failure rather than a block.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error fetching %s: status %d", e.URL, e.StatusCode)
}

// BlockedError is an anti-bot block or rate-limit response. Retried only
// when the underlying status code is retryable.
type BlockedError struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked fetching %s (status %d): %s", e.URL, e.StatusCode, e.Reason)
}

// CaptchaError is a CAPTCHA challenge. Never retried; surfacing it usually
// means operator intervention is required.
type CaptchaError struct {
	URL    string
	Reason string
}

func (e *CaptchaError) Error() string {
	return fmt.Sprintf("captcha challenge fetching %s: %s", e.URL, e.Reason)
}
