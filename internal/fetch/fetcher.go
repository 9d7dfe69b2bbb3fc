package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/backoff"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/blockdetect"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/identity"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/ratelimit"
)

// PageResult is a successfully fetched page, consumed immediately by the
// caller's extraction step.
type PageResult struct {
	Body       string
	FinalURL   string
	StatusCode int
}

// Stats counts what happened across a Fetcher's lifetime. A copy is
// returned to callers; nothing here is global.
type Stats struct {
	Requests  int
	Successes int
	Failures  int
	Blocks    int
	Captchas  int
}

// Fetcher composes the rate limiter, identity rotator, block classifier and
// backoff policy around a Transport. It owns all retry behavior; callers
// must treat a returned error as terminal for that URL.
type Fetcher struct {
	transport  Transport
	limiter    ratelimit.RateLimiter
	rotator    *identity.Rotator
	classifier *blockdetect.Classifier
	policy     *backoff.Policy
	logger     *slog.Logger

	stats Stats

	// overridable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewFetcher(
	transport Transport,
	limiter ratelimit.RateLimiter,
	rotator *identity.Rotator,
	classifier *blockdetect.Classifier,
	policy *backoff.Policy,
) *Fetcher {
	return &Fetcher{
		transport:  transport,
		limiter:    limiter,
		rotator:    rotator,
		classifier: classifier,
		policy:     policy,
		logger:     slog.Default().With("component", "fetcher"),
		sleep:      sleepCtx,
	}
}

// Stats returns a snapshot of the fetcher's counters.
func (f *Fetcher) Stats() Stats {
	return f.stats
}

// Fetch retrieves one URL, retrying per the backoff policy up to its
// attempt cap. CAPTCHA challenges and non-retryable statuses end the loop
// immediately; the error returned is terminal for this URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*PageResult, error) {
	for attempt := 0; attempt <= f.policy.MaxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		id, err := f.rotator.Next()
		if err != nil {
			// No usable identity left; retrying cannot help.
			f.stats.Failures++
			return nil, err
		}

		f.stats.Requests++
		f.logger.Debug("fetching", "url", url, "attempt", attempt, "user_agent", id.UserAgent)

		resp, err := f.transport.Do(ctx, url, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if err := f.handleFailure(ctx, attempt, 0, id, &TransportError{URL: url, Err: err}); err != nil {
				return nil, err
			}
			continue
		}

		result := f.classifier.Classify(resp.StatusCode, resp.Body, resp.FinalURL)
		switch result.Kind {
		case blockdetect.KindCaptcha:
			f.stats.Captchas++
			f.stats.Failures++
			f.recordFailure(id)
			return nil, &CaptchaError{URL: url, Reason: result.Reason}

		case blockdetect.KindBlocked, blockdetect.KindRateLimited:
			f.stats.Blocks++
			blocked := &BlockedError{URL: url, StatusCode: resp.StatusCode, Reason: result.Reason}
			if err := f.handleFailure(ctx, attempt, resp.StatusCode, id, blocked); err != nil {
				return nil, err
			}
			continue

		default:
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				f.stats.Successes++
				f.limiter.RecordSuccess()
				if id.Proxy != nil {
					f.rotator.MarkSuccess(*id.Proxy)
				}
				return &PageResult{
					Body:       resp.Body,
					FinalURL:   resp.FinalURL,
					StatusCode: resp.StatusCode,
				}, nil
			}

			httpErr := &HTTPError{URL: url, StatusCode: resp.StatusCode}
			if err := f.handleFailure(ctx, attempt, resp.StatusCode, id, httpErr); err != nil {
				return nil, err
			}
			continue
		}
	}

	// The loop bound and handleFailure together make this unreachable.
	return nil, ErrExhaustedRetries
}

// handleFailure records one failed attempt. It returns nil when the policy
// allows another try (after sleeping the backoff delay), or the terminal
// error for this URL otherwise.
func (f *Fetcher) handleFailure(ctx context.Context, attempt, statusCode int, id identity.Identity, cause error) error {
	f.recordFailure(id)

	if !f.policy.ShouldRetry(attempt, statusCode) {
		f.stats.Failures++
		if attempt >= f.policy.MaxRetries {
			f.logger.Error("all attempts failed", "status", statusCode, "error", cause)
			return fmt.Errorf("%w: %w", ErrExhaustedRetries, cause)
		}
		f.logger.Error("non-retryable failure", "status", statusCode, "error", cause)
		return cause
	}

	delay := f.policy.DelayFor(attempt)
	f.logger.Warn("attempt failed, retrying",
		"attempt", attempt,
		"status", statusCode,
		"delay", delay,
		"error", cause,
	)

	if err := f.sleep(ctx, delay); err != nil {
		return err
	}
	return nil
}

func (f *Fetcher) recordFailure(id identity.Identity) {
	f.limiter.RecordError()
	if id.Proxy != nil {
		f.rotator.MarkFailed(*id.Proxy)
	}
}

// IsTerminalBlock reports whether the error came from a CAPTCHA challenge,
// the one condition retrying never fixes.
func IsTerminalBlock(err error) bool {
	var captcha *CaptchaError
	return errors.As(err, &captcha)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
