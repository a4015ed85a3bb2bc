package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	swtypes "swapwatch/pkg/types"
)

func TestHTTPNotifier_Notify_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL)
	err := n.Notify(context.Background(), swtypes.AlertPayload{Symbol: "FOO"})
	require.NoError(t, err)
}

func TestHTTPNotifier_Notify_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL)
	err := n.Notify(context.Background(), swtypes.AlertPayload{})
	assert.Error(t, err)
}

func TestHTTPNotifier_Notify_Unreachable(t *testing.T) {
	n := NewHTTPNotifier("http://127.0.0.1:1")
	err := n.Notify(context.Background(), swtypes.AlertPayload{})
	assert.Error(t, err)
}

func TestRetryInterval(t *testing.T) {
	assert.Equal(t, 5*time.Minute, RetryInterval())
}

type fakeNotifier struct {
	calls  []swtypes.AlertPayload
	failN  int
	called int
}

func (f *fakeNotifier) Notify(ctx context.Context, payload swtypes.AlertPayload) error {
	f.called++
	f.calls = append(f.calls, payload)
	if f.called <= f.failN {
		return assertErr
	}
	return nil
}

var assertErr = &notifyError{"simulated failure"}

type notifyError struct{ msg string }

func (e *notifyError) Error() string { return e.msg }

func TestFakeNotifier_SatisfiesInterface(t *testing.T) {
	var n Notifier = &fakeNotifier{}
	err := n.Notify(context.Background(), swtypes.AlertPayload{})
	assert.NoError(t, err)
}

type fakeMetrics struct {
	outcomes []string
}

func (f *fakeMetrics) ObserveAlert(outcome string) { f.outcomes = append(f.outcomes, outcome) }

func TestPool_SetMetrics(t *testing.T) {
	p := NewPool(1, &fakeNotifier{}, nil, nil, nil)
	fm := &fakeMetrics{}
	p.SetMetrics(fm)
	assert.Same(t, fm, p.metrics)
}
