// Package client implements the caller side of the request/reply channel.
//
// Two variants are provided with identical retry and timeout semantics: the
// blocking Client, whose Dispatch occupies the calling goroutine until a
// reply or final timeout, and AsyncClient, which queues calls behind a Done
// channel. Both drive the same lazy-pirate exchange engine: one outstanding
// request per connection, per-attempt timeout, reconnect-and-resend on
// expiry.
package client

import (
	"log/slog"
	"sync"
	"time"

	"playlink/message"
)

const (
	DefaultTimeout = 2 * time.Second
	DefaultRetries = 3
)

// ErrorHandler is invoked when a dispatch returns an unhandled application
// error. It receives the request envelope and the error reply.
type ErrorHandler func(request, reply *message.Envelope)

type options struct {
	timeout      time.Duration
	retries      int
	errorHandler ErrorHandler
}

// Option adjusts timeout, retry, or error-handling behavior. Options passed
// to New become the client defaults; options passed to Dispatch or Go apply
// to that call only.
type Option func(*options)

// WithTimeout sets the per-attempt reply timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetries sets the retry budget. A call sends at most retries+1 times.
func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithErrorHandler sets the handler for unhandled application errors.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) { o.errorHandler = h }
}

// Client is the blocking request/reply client. It owns exactly one
// connection; concurrent Dispatch calls queue behind an internal mutex so
// the lock-step invariant (one outstanding request per connection) holds no
// matter how many goroutines share the instance.
type Client struct {
	mu           sync.Mutex
	conn         conn
	timeout      time.Duration
	retries      int
	errorHandler ErrorHandler
}

// New creates a client for the worker at address. The connection is opened
// lazily on the first Dispatch unless Connect is called first.
func New(address string, opts ...Option) *Client {
	o := options{timeout: DefaultTimeout, retries: DefaultRetries}
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		conn:         conn{address: address},
		timeout:      o.timeout,
		retries:      o.retries,
		errorHandler: o.errorHandler,
	}
}

// Connect opens the connection now instead of on first Dispatch.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.ensure()
}

// Disconnect closes the connection. The client stays usable; the next
// Dispatch reconnects.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.close()
}

// Close is Disconnect under the name callers of io.Closer-shaped APIs
// expect.
func (c *Client) Close() error {
	c.Disconnect()
	return nil
}

// SetErrorHandler registers the client-level handler for unhandled
// application errors. A handler passed at a call site takes precedence.
func (c *Client) SetErrorHandler(h ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandler = h
}

// Dispatch invokes the named remote operation and returns its payload.
//
// A nil payload sends Empty. On timeout the call is retried with a fresh
// connection up to the retry budget, then fails with a TimeoutError. An
// unhandled application error reply does not produce a Go error: it flows
// through the error-handler chain (call site, then client, then default) and
// the raw error payload is returned so the caller can inspect it.
func (c *Client) Dispatch(topic string, payload message.Payload, opts ...Option) (message.Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o := options{timeout: c.timeout, retries: c.retries}
	for _, opt := range opts {
		opt(&o)
	}
	if payload == nil {
		payload = &message.Empty{}
	}
	req := &message.Envelope{Topic: topic, MsgID: newMsgID(), Payload: payload}
	reply, err := c.conn.exchange(req, o.timeout, o.retries)
	if err != nil {
		return nil, err
	}
	if message.IsApplicationError(reply.Payload) {
		runErrorHandler(o.errorHandler, c.errorHandler, req, reply)
	}
	return reply.Payload, nil
}

// runErrorHandler walks the handler chain: call-site handler, then the
// client-level handler, then the default (log and move on).
func runErrorHandler(callSite, clientLevel ErrorHandler, req, reply *message.Envelope) {
	h := callSite
	if h == nil {
		h = clientLevel
	}
	if h == nil {
		h = defaultErrorHandler
	}
	h(req, reply)
}

func defaultErrorHandler(req, reply *message.Envelope) {
	appErr, _ := reply.Payload.(*message.UnhandledApplicationError)
	slog.Error("unhandled application error from worker",
		"topic", req.Topic, "msg_id", req.MsgID, "err", appErr.Exception)
}
