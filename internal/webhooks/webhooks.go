// Package webhooks delivers order lifecycle events to user-registered URLs.
//
// Delivery is best effort and asynchronous. Each payload is HMAC-signed
// with the subscription secret; transient failures are retried with
// backoff, and a per-URL circuit breaker stops hammering endpoints that
// are down.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ptzlabs/marketplace/internal/circuitbreaker"
	"github.com/ptzlabs/marketplace/internal/logging"
	"github.com/ptzlabs/marketplace/internal/retry"
)

// Event is the payload shipped to a subscriber.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Subscription is one registered delivery target.
type Subscription struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	URL         string     `json:"url"`
	Secret      string     `json:"-"`
	Events      []string   `json:"events"` // empty means all
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

func (s *Subscription) wants(eventType string) bool {
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Store persists subscriptions.
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// Dispatcher fans events out to matching subscriptions. It satisfies the
// notify sink shape, so it plugs straight into the event dispatcher next
// to the log and websocket sinks.
type Dispatcher struct {
	store   Store
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store Store) *Dispatcher {
	return &Dispatcher{
		store:   store,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.New(5, 2*time.Minute),
	}
}

// Notify delivers one event to every active matching subscription of the
// user. Sends run in the background; Notify itself never blocks on HTTP.
func (d *Dispatcher) Notify(ctx context.Context, userID, event string, payload any) error {
	subs, err := d.store.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	e := &Event{
		ID:        newEventID(),
		Type:      event,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}

	for _, sub := range subs {
		if !sub.Active || !sub.wants(event) {
			continue
		}
		go d.send(context.WithoutCancel(ctx), sub, e)
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, event *Event) {
	if !d.breaker.Allow(sub.URL) {
		d.recordError(ctx, sub, "circuit open")
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.recordError(ctx, sub, "marshal event")
		return
	}

	err = retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		return d.post(ctx, sub, event, payload)
	})
	if err != nil {
		d.breaker.RecordFailure(sub.URL)
		d.recordError(ctx, sub, err.Error())
		deliveriesTotal.WithLabelValues("error").Inc()
		return
	}

	d.breaker.RecordSuccess(sub.URL)
	d.recordSuccess(ctx, sub)
	deliveriesTotal.WithLabelValues("ok").Inc()
}

func (d *Dispatcher) post(ctx context.Context, sub *Subscription, event *Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Marketplace-Event", event.Type)
	req.Header.Set("X-Marketplace-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))
	if sub.Secret != "" {
		req.Header.Set("X-Marketplace-Signature", sign(payload, sub.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	// Client errors will not get better on retry.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}

func sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) recordSuccess(ctx context.Context, sub *Subscription) {
	now := time.Now().UTC()
	sub.LastSuccess = &now
	sub.LastError = ""
	if err := d.store.Update(ctx, sub); err != nil {
		logging.L(ctx).Warn("webhook bookkeeping update failed", "subscription", sub.ID, "error", err)
	}
}

func (d *Dispatcher) recordError(ctx context.Context, sub *Subscription, msg string) {
	sub.LastError = msg
	if err := d.store.Update(ctx, sub); err != nil {
		logging.L(ctx).Warn("webhook bookkeeping update failed", "subscription", sub.ID, "error", err)
	}
	logging.L(ctx).Warn("webhook delivery failed",
		"subscription", sub.ID, "url", sub.URL, "error", msg)
}
