package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"playlink/message"
)

// ErrClosed is returned by calls issued after Close.
var ErrClosed = errors.New("playlink: client is closed")

// Call represents an in-flight asynchronous dispatch.
type Call struct {
	Topic   string
	Request message.Payload
	Reply   message.Payload // set on completion if Err is nil
	Err     error
	Done    chan *Call // receives *Call when the call completes

	opts []Option
}

func (call *Call) complete() {
	select {
	case call.Done <- call:
	default:
		// The done channel was under-buffered by the caller; dropping the
		// notification here beats blocking the dispatch goroutine.
		slog.Debug("discarding Call reply due to insufficient Done channel capacity",
			"topic", call.Topic)
	}
}

// AsyncClient is the cooperatively-suspending request/reply client. Calls
// are queued to a single dispatch goroutine which owns the connection, so
// the lock-step invariant is enforced structurally: overlapping Go calls are
// serialized, never interleaved on the wire.
//
// Retry and timeout semantics are identical to Client; both drive the same
// exchange engine.
type AsyncClient struct {
	mu           sync.Mutex
	queue        chan *Call
	closed       bool
	defaults     options
	errorHandler ErrorHandler
}

// NewAsync creates an asynchronous client for the worker at address and
// starts its dispatch goroutine. The connection itself is opened lazily by
// the first call.
func NewAsync(address string, opts ...Option) *AsyncClient {
	o := options{timeout: DefaultTimeout, retries: DefaultRetries}
	for _, opt := range opts {
		opt(&o)
	}
	c := &AsyncClient{
		queue:        make(chan *Call, 16),
		defaults:     o,
		errorHandler: o.errorHandler,
	}
	go c.loop(conn{address: address})
	return c
}

// loop is the single dispatch goroutine. It owns the connection for the
// client's whole lifetime; nothing else touches it.
func (c *AsyncClient) loop(cn conn) {
	defer cn.close()
	for call := range c.queue {
		c.run(&cn, call)
	}
}

func (c *AsyncClient) run(cn *conn, call *Call) {
	c.mu.Lock()
	o := options{timeout: c.defaults.timeout, retries: c.defaults.retries}
	clientHandler := c.errorHandler
	c.mu.Unlock()
	for _, opt := range call.opts {
		opt(&o)
	}

	payload := call.Request
	if payload == nil {
		payload = &message.Empty{}
	}
	req := &message.Envelope{Topic: call.Topic, MsgID: newMsgID(), Payload: payload}
	reply, err := cn.exchange(req, o.timeout, o.retries)
	if err != nil {
		call.Err = err
		call.complete()
		return
	}
	if message.IsApplicationError(reply.Payload) {
		runErrorHandler(o.errorHandler, clientHandler, req, reply)
	}
	call.Reply = reply.Payload
	call.complete()
}

// Go invokes the named remote operation asynchronously and returns its Call.
// If done is nil a buffered channel is allocated; if non-nil it must be
// buffered or Go panics, matching the net/rpc contract.
func (c *AsyncClient) Go(topic string, payload message.Payload, done chan *Call, opts ...Option) *Call {
	if done == nil {
		done = make(chan *Call, 1)
	} else if cap(done) == 0 {
		panic("playlink: done channel is unbuffered")
	}
	call := &Call{Topic: topic, Request: payload, Done: done, opts: opts}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		call.Err = ErrClosed
		call.complete()
		return call
	}
	c.queue <- call
	c.mu.Unlock()
	return call
}

// Dispatch invokes the named remote operation and suspends until its reply,
// final timeout, or ctx expiry. There is no mid-flight cancellation: when
// ctx expires first the call keeps running on the dispatch goroutine and its
// late result is discarded.
func (c *AsyncClient) Dispatch(ctx context.Context, topic string, payload message.Payload, opts ...Option) (message.Payload, error) {
	call := c.Go(topic, payload, make(chan *Call, 1), opts...)
	select {
	case <-call.Done:
		return call.Reply, call.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetErrorHandler registers the client-level handler for unhandled
// application errors.
func (c *AsyncClient) SetErrorHandler(h ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandler = h
}

// Close stops the dispatch goroutine once queued calls have drained.
// Subsequent calls fail with ErrClosed.
func (c *AsyncClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
}
