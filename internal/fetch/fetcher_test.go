package fetch

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/backoff"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/blockdetect"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/identity"
)

// scriptedTransport replays a fixed sequence of responses/errors.
type scriptedTransport struct {
	steps []scriptStep
	calls int
}

type scriptStep struct {
	resp *Response
	err  error
}

func (s *scriptedTransport) Do(_ context.Context, rawURL string, _ identity.Identity) (*Response, error) {
	if s.calls >= len(s.steps) {
		panic("scripted transport called more times than scripted")
	}
	step := s.steps[s.calls]
	s.calls++
	if step.resp != nil && step.resp.FinalURL == "" {
		step.resp.FinalURL = rawURL
	}
	return step.resp, step.err
}

// noopLimiter satisfies ratelimit.RateLimiter without sleeping.
type noopLimiter struct {
	waits     int
	successes int
	errors    int
}

func (l *noopLimiter) Wait(context.Context) error { l.waits++; return nil }
func (l *noopLimiter) RecordSuccess()             { l.successes++ }
func (l *noopLimiter) RecordError()               { l.errors++ }

func TestFetchSucceedsAfterRetries(t *testing.T) {
	transport := &scriptedTransport{steps: []scriptStep{
		{resp: &Response{StatusCode: 503, Body: "try later"}},
		{resp: &Response{StatusCode: 503, Body: "try later"}},
		{resp: &Response{StatusCode: 200, Body: "<html>page</html>"}},
	}}

	rotator, err := identity.NewRotator(identity.WithMode(identity.ModeRoundRobin))
	require.NoError(t, err)
	limiter := &noopLimiter{}
	policy := backoff.NewPolicy(3, time.Millisecond, time.Second)
	f := NewFetcher(transport, limiter, rotator, blockdetect.NewClassifier(), policy)

	var slept []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	page, err := f.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, "<html>page</html>", page.Body)
	assert.Equal(t, 200, page.StatusCode)

	assert.Equal(t, 3, transport.calls, "exactly 3 attempts")
	assert.Len(t, slept, 2, "backoff sleeps between attempts only")

	stats := f.Stats()
	assert.Equal(t, 3, stats.Requests)
	assert.Equal(t, 1, stats.Successes)
	assert.Equal(t, 2, stats.Blocks)
	assert.Equal(t, 0, stats.Failures)
	assert.Equal(t, 1, limiter.successes)
	assert.Equal(t, 2, limiter.errors)
}

func TestFetchTransportErrorsExhaustRetries(t *testing.T) {
	dialErr := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	transport := &scriptedTransport{steps: []scriptStep{
		{err: dialErr},
		{err: dialErr},
		{err: dialErr},
	}}

	rotator, err := identity.NewRotator()
	require.NoError(t, err)
	policy := backoff.NewPolicy(2, time.Millisecond, time.Second)
	f := NewFetcher(transport, &noopLimiter{}, rotator, blockdetect.NewClassifier(), policy)
	f.sleep = func(context.Context, time.Duration) error { return nil }

	_, err = f.Fetch(context.Background(), "https://example.com/")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhaustedRetries)

	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, 3, transport.calls)

	stats := f.Stats()
	assert.Equal(t, 3, stats.Requests)
	assert.Equal(t, 1, stats.Failures)
}

func TestFetchForbiddenIsTerminal(t *testing.T) {
	transport := &scriptedTransport{steps: []scriptStep{
		{resp: &Response{StatusCode: 403, Body: "no"}},
	}}

	rotator, err := identity.NewRotator()
	require.NoError(t, err)
	policy := backoff.NewPolicy(3, time.Millisecond, time.Second)
	f := NewFetcher(transport, &noopLimiter{}, rotator, blockdetect.NewClassifier(), policy)

	_, err = f.Fetch(context.Background(), "https://example.com/")
	require.Error(t, err)

	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, 403, blocked.StatusCode)
	assert.Equal(t, 1, transport.calls, "403 must not be retried")

	stats := f.Stats()
	assert.Equal(t, 1, stats.Blocks)
	assert.Equal(t, 1, stats.Failures)
}

func TestFetchCaptchaIsTerminal(t *testing.T) {
	transport := &scriptedTransport{steps: []scriptStep{
		{resp: &Response{StatusCode: 200, Body: `<div class="g-recaptcha" data-sitekey="x"></div>`}},
	}}

	rotator, err := identity.NewRotator()
	require.NoError(t, err)
	policy := backoff.NewPolicy(3, time.Millisecond, time.Second)
	f := NewFetcher(transport, &noopLimiter{}, rotator, blockdetect.NewClassifier(), policy)

	_, err = f.Fetch(context.Background(), "https://example.com/")
	require.Error(t, err)

	var captcha *CaptchaError
	assert.ErrorAs(t, err, &captcha)
	assert.True(t, IsTerminalBlock(err))
	assert.Equal(t, 1, transport.calls, "captcha must not be retried")

	stats := f.Stats()
	assert.Equal(t, 1, stats.Captchas)
	assert.Equal(t, 1, stats.Failures)
}

func TestFetchNotFoundIsTerminal(t *testing.T) {
	transport := &scriptedTransport{steps: []scriptStep{
		{resp: &Response{StatusCode: 404, Body: "nothing here"}},
	}}

	rotator, err := identity.NewRotator()
	require.NoError(t, err)
	policy := backoff.NewPolicy(3, time.Millisecond, time.Second)
	f := NewFetcher(transport, &noopLimiter{}, rotator, blockdetect.NewClassifier(), policy)

	_, err = f.Fetch(context.Background(), "https://example.com/missing")
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 404, httpErr.StatusCode)
	assert.Equal(t, 1, transport.calls)
}

func TestFetchMarksProxyHealth(t *testing.T) {
	proxies := []identity.ProxyEndpoint{{Host: "p1", Port: 8080}}
	transport := &scriptedTransport{steps: []scriptStep{
		{resp: &Response{StatusCode: 200, Body: "<html>fine</html>"}},
	}}

	rotator, err := identity.NewRotator(identity.WithProxies(proxies))
	require.NoError(t, err)
	policy := backoff.NewPolicy(1, time.Millisecond, time.Second)
	f := NewFetcher(transport, &noopLimiter{}, rotator, blockdetect.NewClassifier(), policy)

	_, err = f.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)

	stats := rotator.ProxyStats()
	assert.Equal(t, [2]int{1, 0}, stats["p1:8080"])
}

func TestFetchNoProxyAvailable(t *testing.T) {
	proxies := []identity.ProxyEndpoint{{Host: "p1", Port: 8080}}
	transport := &scriptedTransport{}

	rotator, err := identity.NewRotator(identity.WithProxies(proxies))
	require.NoError(t, err)
	rotator.MarkFailed(proxies[0])

	policy := backoff.NewPolicy(3, time.Millisecond, time.Second)
	f := NewFetcher(transport, &noopLimiter{}, rotator, blockdetect.NewClassifier(), policy)

	_, err = f.Fetch(context.Background(), "https://example.com/")
	assert.ErrorIs(t, err, identity.ErrNoProxyAvailable)
	assert.Equal(t, 0, transport.calls, "no transport call without an identity")
}

func TestFetchCancelledDuringBackoff(t *testing.T) {
	transport := &scriptedTransport{steps: []scriptStep{
		{resp: &Response{StatusCode: 503, Body: ""}},
	}}

	rotator, err := identity.NewRotator()
	require.NoError(t, err)
	policy := backoff.NewPolicy(3, time.Millisecond, time.Second)
	f := NewFetcher(transport, &noopLimiter{}, rotator, blockdetect.NewClassifier(), policy)

	ctx, cancel := context.WithCancel(context.Background())
	f.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err = f.Fetch(ctx, "https://example.com/")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, transport.calls)
}
