// Package webhook delivers sync outcome notifications to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/autosync-project/autosync/pkg/logging"
)

// EventType represents the kind of sync outcome that can trigger webhooks.
type EventType string

const (
	EventSyncSucceeded EventType = "sync.succeeded"
	EventSyncFailed    EventType = "sync.failed"
	EventAll           EventType = "*"
)

// Headers set on every delivery.
const (
	HeaderEvent     = "X-Autosync-Event"
	HeaderSignature = "X-Autosync-Signature"
)

// DefaultTimeout bounds one delivery attempt when a hook sets no timeout.
const DefaultTimeout = 10 * time.Second

// DefaultDrainTimeout bounds how long Close spends on queued deliveries.
const DefaultDrainTimeout = 5 * time.Second

// Event is the JSON payload posted to webhooks.
type Event struct {
	Event      EventType `json:"event"`
	Timestamp  string    `json:"timestamp"`
	Project    string    `json:"project"`
	Src        string    `json:"src,omitempty"`
	Dst        string    `json:"dst,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// HookConfig represents a single webhook endpoint.
type HookConfig struct {
	URL     string
	Secret  string
	Events  []EventType
	Timeout time.Duration
}

// Config represents the webhook client configuration.
type Config struct {
	Hooks      []HookConfig
	MaxRetries int
	RetryDelay time.Duration
	QueueSize  int
	// DrainTimeout caps Close as a whole. Requests still running when it
	// expires are cancelled and the rest of the queue is dropped.
	DrainTimeout time.Duration
}

// DefaultConfig returns the default webhook configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		RetryDelay:   5 * time.Second,
		QueueSize:    100,
		DrainTimeout: DefaultDrainTimeout,
	}
}

// Client sends webhook notifications from a background worker.
type Client struct {
	config *Config
	http   *http.Client
	logger *logging.Logger
	now    func() time.Time

	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	// abortCtx parents every request and ends the drain.
	abortCtx context.Context
	abort    context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

type job struct {
	event Event
	hook  HookConfig
}

// NewClient creates a webhook client and starts its worker.
func NewClient(cfg *Config, logger *logging.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	abortCtx, abort := context.WithCancel(context.Background())
	c := &Client{
		config:   cfg,
		http:     &http.Client{},
		logger:   logger.Named("webhook"),
		now:      time.Now,
		queue:    make(chan *job, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		abortCtx: abortCtx,
		abort:    abort,
	}

	c.wg.Add(1)
	go c.worker()
	return c
}

// worker processes queued notifications until Close.
func (c *Client) worker() {
	defer c.wg.Done()

	for {
		// Close takes priority over further queued work.
		select {
		case <-c.ctx.Done():
			c.drain()
			return
		default:
		}

		select {
		case <-c.ctx.Done():
			c.drain()
			return
		case j := <-c.queue:
			c.send(j)
		}
	}
}

// drain delivers what is left in the queue, one attempt each, until the
// queue is empty or the drain deadline passes.
func (c *Client) drain() {
	dropped := 0
	for {
		select {
		case j := <-c.queue:
			if c.abortCtx.Err() != nil {
				dropped++
				continue
			}
			c.send(j)
		default:
			if dropped > 0 {
				c.logger.Warn(fmt.Sprintf("Webhook drain deadline reached, dropped %d queued event(s)", dropped))
			}
			return
		}
	}
}

// Notify queues event for every matching hook without blocking. Events are
// dropped when the queue is full or the client is closed.
func (c *Client) Notify(event Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	event = c.stamp(event)
	for _, hook := range c.matching(event.Event) {
		select {
		case c.queue <- &job{event: event, hook: hook}:
		default:
			c.logger.Warn(fmt.Sprintf("Webhook queue full, dropping event: %s", event.Event), map[string]any{
				"project": event.Project,
			})
		}
	}
}

func (c *Client) stamp(event Event) Event {
	if event.Timestamp == "" {
		event.Timestamp = c.now().UTC().Format(time.RFC3339)
	}
	return event
}

func (c *Client) matching(event EventType) []HookConfig {
	var hooks []HookConfig
	for _, hook := range c.config.Hooks {
		if matchesEvent(hook, event) {
			hooks = append(hooks, hook)
		}
	}
	return hooks
}

func (c *Client) send(j *job) {
	if err := c.sendSync(j); err != nil {
		c.logger.ErrorErr("Webhook delivery failed", err, map[string]any{
			"url":   j.hook.URL,
			"event": string(j.event.Event),
		})
	}
}

// sendSync posts one payload with retries.
func (c *Client) sendSync(j *job) error {
	payload, err := json.Marshal(j.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return lastErr
			case <-time.After(c.config.RetryDelay):
			}
		}

		lastErr = c.post(j, payload)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *Client) post(j *job, payload []byte) error {
	timeout := j.hook.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(c.abortCtx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.hook.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "autosync-webhook/1.0")
	req.Header.Set(HeaderEvent, string(j.event.Event))
	if j.hook.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(payload, j.hook.Secret))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
}

// Sign returns the HMAC-SHA256 signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// matchesEvent checks if a hook is configured for the given event. A hook
// with no events receives failures only.
func matchesEvent(hook HookConfig, event EventType) bool {
	if len(hook.Events) == 0 {
		return event == EventSyncFailed
	}
	for _, e := range hook.Events {
		if e == event || e == EventAll {
			return true
		}
	}
	return false
}

// Close stops accepting events, delivers what is already queued with a
// single attempt each, and waits for the worker. It returns within roughly
// DrainTimeout however slow the endpoints are.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	deadline := time.AfterFunc(c.config.DrainTimeout, c.abort)
	c.wg.Wait()
	deadline.Stop()
	c.abort()
	return nil
}
