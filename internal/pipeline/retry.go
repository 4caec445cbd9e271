package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/everyplants/batchmaker/pkg/fulfill"
)

// RetryPolicy bounds the retry wrapper around external calls. The HTTP
// client already waits out one Retry-After internally; this layer covers
// transient server errors on top of that.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

var defaultRetryPolicy = RetryPolicy{Attempts: 2, Backoff: time.Second}

// withRetry runs fn up to policy.Attempts times, backing off between
// attempts. Errors that retrying cannot fix are surfaced immediately.
func withRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Backoff * time.Duration(attempt)):
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}

// callFulfill runs one fulfillment platform call under the retry policy and
// records the request counter and duration for it.
func (p *Pipeline) callFulfill(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := withRetry(ctx, p.retry, fn)
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordFulfillRequest(operation, status, time.Since(start).Seconds())
	return err
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, fulfill.ErrNotFound),
		errors.Is(err, fulfill.ErrPicklistNotShippable),
		errors.Is(err, fulfill.ErrNoShippingMethod):
		return false
	}
	var apiErr *fulfill.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		// Client errors repeat deterministically. 429 is the exception but
		// the HTTP layer already retried it once.
		return false
	}
	return true
}
