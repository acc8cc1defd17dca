package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a call when the caller's context carries no deadline.
// The host protocol itself has no timeout, so an abandoned call would
// otherwise pend forever.
const DefaultTimeout = 30 * time.Second

// ErrClosed is returned for calls made after Close.
var ErrClosed = errors.New("bridge: client closed")

// HostError is a rejection reported by the host itself, as opposed to a
// transport or timeout failure on our side.
type HostError struct {
	Op      string
	Message string
}

func (e *HostError) Error() string {
	return fmt.Sprintf("bridge: host rejected %s: %s", e.Op, e.Message)
}

// Transport posts a request toward the host process. Send returns once the
// request is handed off; the response arrives later via HandleResponse.
type Transport interface {
	Send(req Request) error
}

// ClientBinder is implemented by transports that deliver host responses
// themselves and therefore need the client handle. NewClient calls Bind
// before the first Send.
type ClientBinder interface {
	Bind(*Client)
}

// Client multiplexes concurrent calls over one host transport.
//
// Every call registers a pending entry keyed by a fresh callback id, posts
// the request, and waits for the correlated response, the context, or the
// timeout, whichever comes first. Responses for unknown callback ids (late
// answers to calls that already timed out) are dropped without error, since
// the underlying host request is never suppressed.
type Client struct {
	transport Transport
	timeout   time.Duration
	log       *zap.Logger

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout overrides the default per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithLogger attaches a logger for dropped-response and lifecycle events.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient returns a Client posting over transport.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		timeout:   DefaultTimeout,
		log:       zap.NewNop(),
		pending:   make(map[string]chan Response),
	}
	for _, opt := range opts {
		opt(c)
	}
	if binder, ok := transport.(ClientBinder); ok {
		binder.Bind(c)
	}
	return c
}

// Call posts op with payload and waits for the correlated response. A nil
// payload sends no payload. The returned raw message is the host's ok
// payload, which may itself be null.
func (c *Client) Call(ctx context.Context, op string, payload any) (json.RawMessage, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("bridge: marshal %s payload: %w", op, err)
		}
		raw = data
	}

	callbackID := newCallbackID()
	ch := make(chan Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[callbackID] = ch
	c.mu.Unlock()

	defer c.forget(callbackID)

	if err := c.transport.Send(Request{Op: op, Payload: raw, CallbackID: callbackID}); err != nil {
		return nil, fmt.Errorf("bridge: send %s: %w", op, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Status != StatusOK {
			msg := resp.Message
			if msg == "" {
				msg = "unknown bridge error"
			}
			return nil, &HostError{Op: op, Message: msg}
		}
		return resp.Payload, nil
	case <-timer.C:
		return nil, fmt.Errorf("bridge: %s timed out after %s", op, c.timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("bridge: %s: %w", op, ctx.Err())
	}
}

// HandleResponse delivers a host response to its pending call. Responses
// whose callback id is unknown are logged and dropped.
func (c *Client) HandleResponse(resp Response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.CallbackID]
	if ok {
		delete(c.pending, resp.CallbackID)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Debug("dropping response for unknown callback",
			zap.String("callback_id", resp.CallbackID),
			zap.String("status", string(resp.Status)))
		return
	}
	ch <- resp
}

// Close rejects all pending calls and refuses new ones.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- Response{CallbackID: id, Status: StatusError, Message: "client closed"}
	}
}

func (c *Client) forget(callbackID string) {
	c.mu.Lock()
	delete(c.pending, callbackID)
	c.mu.Unlock()
}

// newCallbackID builds a collision-resistant correlation id from the current
// timestamp plus randomness, so ids stay unique across concurrent calls and
// across client restarts within the same millisecond.
func newCallbackID() string {
	return fmt.Sprintf("storage-%d-%s", time.Now().UnixMilli(), uuid.NewString())
}
