// Package webhook forwards committed ledger events to external HTTP
// endpoints, signed with HMAC-SHA256.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wardops/wardops/internal/platform/websocket"
)

// ErrQueueFull is returned by Publish when the delivery queue is saturated.
var ErrQueueFull = errors.New("webhook queue full")

// Endpoint is one subscriber. Events holds patterns such as "bed.admitted",
// "bed.*", "*.recorded" or "*".
type Endpoint struct {
	URL    string
	Secret string
	Events []string
}

// DeliveryAttempt is the outcome of posting one event to one endpoint.
type DeliveryAttempt struct {
	ID         string        `json:"id"`
	URL        string        `json:"url"`
	EventType  string        `json:"event_type"`
	ResourceID string        `json:"resource_id,omitempty"`
	StatusCode int           `json:"status_code"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"duration_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

// SignPayload computes an HMAC-SHA256 signature of the payload using the given secret,
// returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the HMAC-SHA256
// of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// eventMatches returns true if the event type matches a subscription pattern.
func eventMatches(pattern, eventType string) bool {
	switch {
	case pattern == "*" || pattern == eventType:
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(eventType, pattern[1:])
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}

func (ep Endpoint) wants(eventType string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, p := range ep.Events {
		if eventMatches(p, eventType) {
			return true
		}
	}
	return false
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(d *Dispatcher) { d.http.SetRetryCount(n) }
}

// WithQueueSize sets how many events may wait for delivery.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queue = make(chan websocket.Event, n) }
}

// WithLogger sets the logger used by the delivery worker.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

const historySize = 100

// Dispatcher queues events from the services and delivers them from a
// single background worker, so request latency never includes a webhook
// round trip.
type Dispatcher struct {
	endpoints []Endpoint
	http      *resty.Client
	queue     chan websocket.Event
	logger    zerolog.Logger

	mu      sync.Mutex
	history []DeliveryAttempt
}

func NewDispatcher(endpoints []Endpoint, timeout time.Duration, opts ...Option) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		endpoints: endpoints,
		http: resty.New().
			SetTimeout(timeout).
			SetRetryCount(3).
			SetRetryWaitTime(time.Second).
			SetRetryMaxWaitTime(30*time.Second).
			SetHeader("Content-Type", "application/json").
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() >= http.StatusInternalServerError
			}),
		queue:  make(chan websocket.Event, 256),
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Publish enqueues evt without blocking.
func (d *Dispatcher) Publish(_ context.Context, evt websocket.Event) error {
	select {
	case d.queue <- evt:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-d.queue:
			d.Deliver(ctx, evt)
		}
	}
}

// Deliver posts evt to every endpoint subscribed to its type.
func (d *Dispatcher) Deliver(ctx context.Context, evt websocket.Event) []DeliveryAttempt {
	var out []DeliveryAttempt
	for _, ep := range d.endpoints {
		if !ep.wants(evt.Type) {
			continue
		}
		a := d.deliverTo(ctx, ep, evt)
		d.record(a)
		out = append(out, a)
	}
	return out
}

func (d *Dispatcher) deliverTo(ctx context.Context, ep Endpoint, evt websocket.Event) DeliveryAttempt {
	now := time.Now()
	attempt := DeliveryAttempt{
		ID:         uuid.NewString(),
		URL:        ep.URL,
		EventType:  evt.Type,
		ResourceID: evt.ResourceID,
		CreatedAt:  now.UTC(),
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		attempt.Error = err.Error()
		return attempt
	}

	req := d.http.R().
		SetContext(ctx).
		SetHeader("X-Wardops-Event", evt.Type).
		SetHeader("X-Wardops-Delivery", attempt.ID).
		SetHeader("X-Wardops-Timestamp", now.UTC().Format(time.RFC3339)).
		SetBody(payload)
	if ep.Secret != "" {
		req.SetHeader("X-Wardops-Signature", "sha256="+SignPayload(payload, ep.Secret))
	}

	resp, err := req.Post(ep.URL)
	attempt.Duration = time.Since(now)
	if resp != nil && resp.Request != nil {
		attempt.Attempts = resp.Request.Attempt
	}
	if err != nil {
		attempt.Error = err.Error()
		d.logger.Warn().Err(err).Str("url", ep.URL).Str("event", evt.Type).Msg("webhook delivery failed")
		return attempt
	}

	attempt.StatusCode = resp.StatusCode()
	attempt.Success = resp.IsSuccess()
	if !attempt.Success {
		attempt.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode())
		d.logger.Warn().Int("status", resp.StatusCode()).Str("url", ep.URL).Str("event", evt.Type).Msg("webhook rejected")
	}
	return attempt
}

func (d *Dispatcher) record(a DeliveryAttempt) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, a)
	if len(d.history) > historySize {
		d.history = d.history[len(d.history)-historySize:]
	}
}

// Recent returns the latest delivery attempts, newest first.
func (d *Dispatcher) Recent() []DeliveryAttempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeliveryAttempt, len(d.history))
	for i, a := range d.history {
		out[len(d.history)-1-i] = a
	}
	return out
}

// ParseEndpoints builds endpoints from a comma-separated URL list sharing
// one secret and one comma-separated event filter.
func ParseEndpoints(urls, secret, events string) ([]Endpoint, error) {
	var filters []string
	for _, e := range strings.Split(events, ",") {
		if e = strings.TrimSpace(e); e != "" {
			filters = append(filters, e)
		}
	}
	var out []Endpoint
	for _, u := range strings.Split(urls, ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return nil, fmt.Errorf("webhook url %q must use http or https", u)
		}
		out = append(out, Endpoint{URL: u, Secret: secret, Events: filters})
	}
	return out, nil
}

// Handler exposes the delivery log.
type Handler struct {
	d *Dispatcher
}

func NewHandler(d *Dispatcher) *Handler {
	return &Handler{d: d}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/webhooks/deliveries", h.Deliveries)
}

func (h *Handler) Deliveries(c echo.Context) error {
	return c.JSON(http.StatusOK, h.d.Recent())
}
