package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/pkg/types"
)

const (
	// RetryBaseInterval is the first backoff interval.
	RetryBaseInterval = 2 * time.Second
	// RetryMaxAttempts bounds total attempts, the first call included.
	RetryMaxAttempts = 6
)

// RateLimitError carries a server-requested wait. The retry wrapper
// sleeps at least RetryAfter before the next attempt.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsTransient reports whether an error is worth retrying: rate limits
// and server-side failures are, everything else is not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "500", "502", "503", "529",
		"rate limit", "overloaded", "too many requests",
		"internal server error", "service unavailable",
		"connection reset", "timeout",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// retrying wraps a Provider, retrying Stream establishment on
// transient errors with full-jitter exponential backoff.
type retrying struct {
	Provider
}

// WithRetry adds the retry policy to a provider.
func WithRetry(p Provider) Provider {
	return &retrying{Provider: p}
}

func (r *retrying) Stream(ctx context.Context, req *Request) (<-chan Delta, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryBaseInterval
	b.RandomizationFactor = 1 // full jitter
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()

	var lastErr error
	for attempt := 1; attempt <= RetryMaxAttempts; attempt++ {
		ch, err := r.Provider.Stream(ctx, req)
		if err == nil {
			return ch, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == RetryMaxAttempts {
			return nil, err
		}

		wait := b.NextBackOff()
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > wait {
			wait = rl.RetryAfter
		}
		logging.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("wait", wait).
			Str("provider", r.Provider.ID()).
			Msg("provider stream failed, retrying")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// ErrorFinish renders a stream-level failure as the message error the
// engine records.
func ErrorFinish(providerID string, err error) *types.MessageError {
	name := "unknown"
	if IsTransient(err) {
		name = "provider_transient"
	}
	return &types.MessageError{Name: name, Message: err.Error(), ProviderID: providerID}
}
