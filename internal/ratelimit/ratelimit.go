package ratelimit

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// window is the rolling interval the request cap applies to.
const window = time.Minute

type RateLimiter interface {
	Wait(ctx context.Context) error
	RecordSuccess()
	RecordError()
}

// WindowRateLimiter enforces a cap of requestsPerMinute requests inside any
// trailing 60-second window, then adds a randomized delay in
// [minDelay, maxDelay] scaled up while consecutive errors accumulate.
type WindowRateLimiter struct {
	minDelay          time.Duration
	maxDelay          time.Duration
	requestsPerMinute int

	mu                sync.Mutex
	requestTimes      []time.Time
	consecutiveErrors int

	logger *slog.Logger

	// overridable in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWindowRateLimiter(minDelay, maxDelay time.Duration, requestsPerMinute int) *WindowRateLimiter {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &WindowRateLimiter{
		minDelay:          minDelay,
		maxDelay:          maxDelay,
		requestsPerMinute: requestsPerMinute,
		logger:            slog.Default().With("component", "ratelimit"),
		now:               time.Now,
		sleep:             sleepCtx,
	}
}

// Wait blocks until issuing one more request keeps the rolling window under
// the cap, then applies the jittered inter-request delay. The request is
// recorded before Wait returns.
func (r *WindowRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.prune(now)

	if len(r.requestTimes) >= r.requestsPerMinute {
		waitTime := window - now.Sub(r.requestTimes[0])
		if waitTime > 0 {
			r.logger.Info("rate limit reached, waiting", "wait", waitTime)
			if err := r.sleep(ctx, waitTime); err != nil {
				return err
			}
		}
		r.prune(r.now())
	}

	delay := r.jitteredDelay()
	if delay > 0 {
		r.logger.Debug("delaying before next request", "delay", delay)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	r.requestTimes = append(r.requestTimes, r.now())
	return nil
}

// RecordSuccess resets the consecutive error counter.
func (r *WindowRateLimiter) RecordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutiveErrors = 0
}

// RecordError increments the consecutive error counter, which scales the
// inter-request delay until the next success.
func (r *WindowRateLimiter) RecordError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutiveErrors++
	r.logger.Warn("consecutive errors", "count", r.consecutiveErrors)
}

// prune drops request timestamps older than the rolling window.
func (r *WindowRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(r.requestTimes) && !r.requestTimes[i].After(cutoff) {
		i++
	}
	r.requestTimes = r.requestTimes[i:]
}

func (r *WindowRateLimiter) jitteredDelay() time.Duration {
	base := r.minDelay
	if r.maxDelay > r.minDelay {
		base += time.Duration(rand.Int63n(int64(r.maxDelay - r.minDelay)))
	}

	multiplier := 1 + 0.5*float64(r.consecutiveErrors)
	return time.Duration(float64(base) * multiplier)
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
