package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sebastianm/agentbus/internal/bus/event"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body, prefixed
// with "sha256=", when the webhook has a secret.
const SignatureHeader = "X-Event-Bus-Signature"

const maxConcurrentDeliveries = 50

// errHookDisabled aborts a delivery whose webhook was deleted or disabled
// between enqueue and attempt.
var errHookDisabled = errors.New("webhook removed or disabled")

// DispatcherOptions tune delivery behavior. Zero values fall back to the
// defaults: 10 s request timeout, 3 total attempts, 1 s initial backoff.
type DispatcherOptions struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
}

// Dispatcher delivers events to matching webhooks asynchronously. Delivery
// is at-least-once per process lifetime: there is no durable outbox, and
// in-flight deliveries are abandoned on shutdown.
type Dispatcher struct {
	log         *slog.Logger
	store       Store
	router      *Router
	client      *http.Client
	maxAttempts int
	baseDelay   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sem    chan struct{}
}

// NewDispatcher creates a Dispatcher. Close must be called on shutdown.
func NewDispatcher(log *slog.Logger, store Store, opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		log:         log,
		store:       store,
		router:      NewRouter(store),
		client:      &http.Client{Timeout: opts.Timeout},
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		ctx:         ctx,
		cancel:      cancel,
		sem:         make(chan struct{}, maxConcurrentDeliveries),
	}
}

// Dispatch routes the event and schedules a delivery task per matching
// webhook. It never blocks the publisher. Deliveries to the same webhook are
// not ordered across events; consumers reorder by event id.
func (d *Dispatcher) Dispatch(e event.Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		hooks, err := d.router.Matching(d.ctx, e)
		if err != nil {
			d.log.Error("routing event to webhooks", "event_id", e.ID, "error", err)
			return
		}

		for _, w := range hooks {
			d.wg.Add(1)
			go func(hookID int64) {
				defer d.wg.Done()

				select {
				case d.sem <- struct{}{}:
					defer func() { <-d.sem }()
				case <-d.ctx.Done():
					return
				}

				if err := d.deliver(d.ctx, hookID, e); err != nil {
					if errors.Is(err, errHookDisabled) {
						d.log.Debug("delivery aborted", "webhook_id", hookID, "event_id", e.ID)
						return
					}
					d.log.Warn("webhook delivery failed",
						"webhook_id", hookID, "event_id", e.ID, "error", err)
				}
			}(w.ID)
		}
	}()
}

// Close abandons in-flight deliveries and waits for their goroutines to
// notice the cancellation.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

// deliver POSTs the event to the webhook, retrying transient failures with
// exponential backoff until maxAttempts total attempts are spent. The
// webhook row is re-read before every attempt so disabling it aborts the
// task.
func (d *Dispatcher) deliver(ctx context.Context, hookID int64, e event.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("serialising event %d: %w", e.ID, err)
	}

	backoff := retry.WithMaxRetries(uint64(d.maxAttempts-1), retry.NewExponential(d.baseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		w, ok, err := d.store.GetWebhook(ctx, hookID)
		if err != nil {
			return fmt.Errorf("re-reading webhook %d: %w", hookID, err)
		}
		if !ok || !w.Active {
			return errHookDisabled
		}

		if err := d.post(ctx, w, body); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (d *Dispatcher) post(ctx context.Context, w Webhook, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+signBody(w.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", w.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("posting to %s: status %d", w.URL, resp.StatusCode)
	}
	return nil
}

// signBody returns the lowercase hex HMAC-SHA256 of body under secret.
func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
