package backoff

import (
	"math"
	"math/rand"
	"time"
)

// retryableStatus lists status codes that are always worth retrying:
// timeouts, rate limiting, and transient server errors.
var retryableStatus = map[int]struct{}{
	408: {},
	429: {},
	500: {},
	502: {},
	503: {},
	504: {},
}

// Policy computes retry delays with exponential backoff and decides whether
// a failed attempt should be retried at all.
type Policy struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64

	// rand is overridable in tests; returns a value in [0, 1).
	rand func() float64
}

func NewPolicy(maxRetries int, baseDelay, maxDelay time.Duration) *Policy {
	return &Policy{
		MaxRetries:      maxRetries,
		BaseDelay:       baseDelay,
		MaxDelay:        maxDelay,
		ExponentialBase: 2.0,
		rand:            rand.Float64,
	}
}

// DelayFor returns the sleep duration before retrying the given attempt
// (0-indexed): baseDelay * expBase^attempt with ±25% jitter, capped at
// MaxDelay.
func (p *Policy) DelayFor(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt))

	// jitter in [-25%, +25%]
	jitter := delay * 0.25 * (p.rand()*2 - 1)
	delay += jitter

	if max := float64(p.MaxDelay); delay > max {
		delay = max
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// ShouldRetry reports whether the given attempt (0-indexed) may be retried.
// statusCode is 0 for transport-level failures with no HTTP response; those
// always retry until the cap. Server errors and 429 retry; other client
// errors do not.
func (p *Policy) ShouldRetry(attempt, statusCode int) bool {
	if attempt >= p.MaxRetries {
		return false
	}

	if _, ok := retryableStatus[statusCode]; ok {
		return true
	}

	if statusCode >= 400 && statusCode < 500 {
		return false
	}

	return true
}
