package rpcclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsTooManyRequests(t *testing.T) {
	assert.True(t, isTooManyRequests(errors.New("status code: 429")))
	assert.True(t, isTooManyRequests(errors.New("Too Many Requests (429)")))
	assert.False(t, isTooManyRequests(errors.New("connection refused")))
	assert.False(t, isTooManyRequests(nil))
}

func TestRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "5")
	assert.Equal(t, 5*time.Second, retryAfter(resp))

	resp2 := &http.Response{Header: http.Header{}}
	assert.Equal(t, time.Duration(0), retryAfter(resp2))

	resp3 := &http.Response{Header: http.Header{}}
	resp3.Header.Set("Retry-After", "not-a-number")
	assert.Equal(t, time.Duration(0), retryAfter(resp3))
}

type recordingObserver struct {
	calls []time.Duration
}

func (r *recordingObserver) ObserveRateLimit(d time.Duration) {
	r.calls = append(r.calls, d)
}

func TestCheckRetry_ObservesRateLimit(t *testing.T) {
	obs := &recordingObserver{}
	check := checkRetry(obs)

	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set("Retry-After", "2")

	retry, err := check(context.Background(), resp, nil)
	assert.NoError(t, err)
	_ = retry
	assert.Len(t, obs.calls, 1)
	assert.Equal(t, 2*time.Second, obs.calls[0])
}

func TestCheckRetry_ContextCanceledStopsRetrying(t *testing.T) {
	obs := &recordingObserver{}
	check := checkRetry(obs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	retry, err := check(ctx, nil, nil)
	assert.False(t, retry)
	assert.Error(t, err)
}

func TestCheckRetry_NonRateLimitedResponseDoesNotObserve(t *testing.T) {
	obs := &recordingObserver{}
	check := checkRetry(obs)

	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}
	_, _ = check(context.Background(), resp, nil)
	assert.Empty(t, obs.calls)
}
