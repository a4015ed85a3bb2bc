// Package dispatch implements the Dispatch component: a fixed-size
// worker pool that POSTs alert payloads (already built by the engine before
// submission) to the notifier, and
// falls back to a persistent retry queue and dead-letter table on failure.
// Submission to the pool blocks when saturated — it never drops a swap
// event on the floor.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/JekaMas/workerpool"

	"swapwatch/internal/db"
	"swapwatch/pkg/cache"
	"swapwatch/pkg/cooldown"
	swtypes "swapwatch/pkg/types"
)

const (
	notifierTimeout = 10 * time.Second
	retryInterval   = 5 * time.Minute
	maxRetryAttempt = 3
)

// Notifier is the one outbound call a worker makes for each job's
// payload. Kept as an interface so tests substitute an in-memory fake
// instead of a live HTTP endpoint.
type Notifier interface {
	Notify(ctx context.Context, payload swtypes.AlertPayload) error
}

// HTTPNotifier POSTs the alert payload as JSON to a configured endpoint
// through its single *http.Client; every worker that calls Notify on the
// same notifier shares that client.
type HTTPNotifier struct {
	client   *http.Client
	endpoint string
}

// NewHTTPNotifier builds a notifier with its own client. cmd/swapwatch
// builds one notifier and hands it to the pool, so all workers share this
// client and its connection pool.
func NewHTTPNotifier(endpoint string) *HTTPNotifier {
	return &HTTPNotifier{
		client:   &http.Client{Timeout: notifierTimeout},
		endpoint: endpoint,
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, payload swtypes.AlertPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dispatch: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dispatch: build notifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch: notifier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dispatch: notifier status %d", resp.StatusCode)
	}
	return nil
}

// Metrics is the minimal interface Pool needs from the observability layer,
// avoiding a direct dependency on the concrete Registry type.
type Metrics interface {
	ObserveAlert(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveAlert(string) {}

// Pool wraps a fixed-size worker pool. Each submitted job carries its own
// cooldown token so the worker can release it on any failure path after a
// successful claim. Tokens that fall through to the retry queue are also
// tracked in-memory so a periodic sweep can drive RetryOnce without the
// caller re-discovering which tokens are pending.
type Pool struct {
	wp       *workerpool.WorkerPool
	notifier Notifier
	cooldown *cooldown.Manager
	store    *cache.PersistentStore
	ledger   *db.AlertRepository
	metrics  Metrics

	mu      sync.Mutex
	pending map[string]int // token -> next retry attempt number
}

// NewPool builds a pool with the given worker count.
func NewPool(workers int, notifier Notifier, cd *cooldown.Manager, store *cache.PersistentStore, ledger *db.AlertRepository) *Pool {
	return &Pool{
		wp:       workerpool.New(workers),
		notifier: notifier,
		cooldown: cd,
		store:    store,
		ledger:   ledger,
		metrics:  noopMetrics{},
		pending:  make(map[string]int),
	}
}

// SetMetrics attaches the observability registry; called once at startup.
func (p *Pool) SetMetrics(m Metrics) { p.metrics = m }

// Job is everything a worker needs: the already-claimed cooldown token and
// the already-built payload to send.
type Job struct {
	Token   string
	Payload swtypes.AlertPayload
}

// Submit blocks until a worker slot is free, guaranteeing backpressure
// instead of ever dropping an admitted event.
func (p *Pool) Submit(ctx context.Context, job Job) {
	p.wp.Submit(func() {
		p.run(ctx, job)
	})
}

// StopWait drains in-flight jobs; the caller is responsible for bounding
// this with its own shutdown deadline.
func (p *Pool) StopWait() {
	p.wp.StopWait()
}

func (p *Pool) run(ctx context.Context, job Job) {
	nctx, cancel := context.WithTimeout(ctx, notifierTimeout)
	defer cancel()

	err := p.notifier.Notify(nctx, job.Payload)
	if err == nil {
		p.metrics.ObserveAlert("success")
		if logErr := p.ledger.RecordSuccess(ctx, job.Payload); logErr != nil {
			_ = logErr // alert already delivered; a logging failure must not roll back the send
		}
		return
	}

	p.metrics.ObserveAlert("failure")
	if enqErr := p.enqueueRetry(ctx, job); enqErr != nil {
		_ = enqErr // best-effort; the token's cooldown is released below regardless
	} else {
		p.mu.Lock()
		p.pending[job.Token] = 1
		p.mu.Unlock()
	}
	if relErr := p.cooldown.Release(ctx, job.Token); relErr != nil {
		_ = relErr
	}
}

func (p *Pool) enqueueRetry(ctx context.Context, job Job) error {
	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("dispatch: marshal retry payload: %w", err)
	}
	return p.store.EnqueueRetry(ctx, job.Token, string(payloadJSON))
}

// RetryOnce attempts redelivery of one pending retry. resolved reports
// whether the token is done (delivered, or moved to the dead-letter table)
// so RetryDue knows whether to keep tracking it. After maxRetryAttempt
// failures it moves the payload to the dead-letter table and clears the
// retry key.
func (p *Pool) RetryOnce(ctx context.Context, token string, attempt int) (resolved bool, err error) {
	payloadJSON, ok, err := p.store.ReadRetry(ctx, token)
	if err != nil {
		return false, fmt.Errorf("dispatch: read retry for %s: %w", token, err)
	}
	if !ok {
		return true, nil
	}

	var payload swtypes.AlertPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return false, fmt.Errorf("dispatch: unmarshal retry payload for %s: %w", token, err)
	}

	nctx, cancel := context.WithTimeout(ctx, notifierTimeout)
	defer cancel()

	if notifyErr := p.notifier.Notify(nctx, payload); notifyErr == nil {
		p.metrics.ObserveAlert("success")
		if err := p.store.ClearRetry(ctx, token); err != nil {
			return false, fmt.Errorf("dispatch: clear retry for %s: %w", token, err)
		}
		if err := p.cooldown.Release(ctx, token); err != nil {
			return false, fmt.Errorf("dispatch: release cooldown after retry success %s: %w", token, err)
		}
		return true, p.ledger.RecordSuccess(ctx, payload)
	}

	if attempt >= maxRetryAttempt {
		p.metrics.ObserveAlert("failure")
		if err := p.ledger.RecordDeadLetter(ctx, payload, attempt); err != nil {
			return false, fmt.Errorf("dispatch: record dead letter for %s: %w", token, err)
		}
		if err := p.store.ClearRetry(ctx, token); err != nil {
			return false, fmt.Errorf("dispatch: clear retry for %s: %w", token, err)
		}
		return true, p.cooldown.Release(ctx, token)
	}
	return false, nil
}

// RetryDue attempts every pending retry once, called by a ticker on
// RetryInterval() from the process entrypoint. Resolved tokens (delivered
// or dead-lettered) are dropped from tracking; everything else stays
// pending for the next tick with its attempt count bumped.
func (p *Pool) RetryDue(ctx context.Context) {
	p.mu.Lock()
	due := make(map[string]int, len(p.pending))
	for token, attempt := range p.pending {
		due[token] = attempt
	}
	p.mu.Unlock()

	for token, attempt := range due {
		resolved, err := p.RetryOnce(ctx, token, attempt)
		if err != nil {
			continue // leave it pending; try again next interval
		}
		p.mu.Lock()
		if resolved {
			delete(p.pending, token)
		} else {
			p.pending[token] = attempt + 1
		}
		p.mu.Unlock()
	}
}

// RetryInterval is the fixed 5-minute cadence retries are re-attempted at.
func RetryInterval() time.Duration { return retryInterval }
