package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errors.New("429 Too Many Requests")))
	assert.True(t, IsTransient(errors.New("503 service unavailable")))
	assert.True(t, IsTransient(errors.New("model overloaded, try later")))
	assert.True(t, IsTransient(&RateLimitError{RetryAfter: time.Second}))
	assert.False(t, IsTransient(errors.New("401 unauthorized")))
	assert.False(t, IsTransient(errors.New("invalid request: missing model")))
	assert.False(t, IsTransient(nil))
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	m := NewMock()
	m.FailFirst(1, errors.New("429 too many requests"))

	// One failure means one backoff sleep (at most two base intervals
	// with jitter), which stays inside the test budget.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ch, err := WithRetry(m).Stream(ctx, &Request{Model: "echo"})
	require.NoError(t, err)
	assert.NotEmpty(t, collect(t, ch))
	assert.Len(t, m.Requests, 2)
}

func TestRetryGivesUpOnFatalError(t *testing.T) {
	m := NewMock()
	m.FailFirst(1, errors.New("401 unauthorized"))

	_, err := WithRetry(m).Stream(context.Background(), &Request{Model: "echo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Len(t, m.Requests, 1, "fatal errors must not be retried")
}

func TestRetryHonorsCancellation(t *testing.T) {
	m := NewMock()
	m.FailFirst(RetryMaxAttempts, errors.New("503 service unavailable"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := WithRetry(m).Stream(ctx, &Request{Model: "echo"})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation should collapse the backoff wait")
	}
}

func TestErrorFinishClassifies(t *testing.T) {
	e := ErrorFinish("anthropic", errors.New("429 rate limited"))
	assert.Equal(t, "provider_transient", e.Name)
	assert.Equal(t, "anthropic", e.ProviderID)

	e = ErrorFinish("openai", errors.New("bad request"))
	assert.Equal(t, "unknown", e.Name)
}
