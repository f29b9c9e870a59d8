// Package server implements the worker-side request dispatcher: a
// name→handler table served over lock-step connections, with a middleware
// chain and graceful shutdown.
//
// Request processing pipeline, per connection:
//
//	Accept conn → handleConn
//	  → read one frame → codec.Decode → Middleware Chain → handler
//	  → codec.Encode → write reply → read the next frame
//
// Each connection is handled strictly sequentially: one request is received,
// dispatched, and replied to before the next is read. This is the lock-step
// contract the client's retry logic relies on. Parallelism comes from
// serving each connection in its own goroutine, never from interleaving
// requests on one connection.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"playlink/codec"
	"playlink/message"
	"playlink/middleware"
	"playlink/protocol"
)

// Handler is a registered remote operation. It receives the decoded request
// payload (Empty for calls carrying no data) and returns a reply payload; a
// nil reply is sent as Empty. A returned error becomes an
// UnhandledApplicationError reply.
type Handler func(ctx context.Context, payload message.Payload) (message.Payload, error)

// Server dispatches requests to registered handlers.
type Server struct {
	handlers    map[string]Handler
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // built once at Serve
	wg          sync.WaitGroup         // in-flight requests, for graceful shutdown
	shutdown    atomic.Bool

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a server with an empty handler table.
func NewServer() *Server {
	return &Server{handlers: make(map[string]Handler)}
}

// RegisterRPC associates a topic with a handler. The table is built before
// Serve and must not be mutated while serving.
func (s *Server) RegisterRPC(topic string, h Handler) {
	s.handlers[topic] = h
}

// Use registers a middleware. Middlewares run in registration order around
// every dispatch.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Serve listens on the given address and enters the accept loop, one
// goroutine per connection. It returns nil after Shutdown.
func (s *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	// Build the middleware chain once, not per request.
	s.handler = middleware.Chain(s.middlewares...)(s.dispatch)

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Shutdown closes the listener; distinguish that from a real
			// accept failure.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Addr returns the listener address, useful when serving on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleConn serves one lock-step connection: receive → dispatch → reply,
// fully, before reading the next request.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	ctx := context.Background()
	for {
		kind, body, err := protocol.Decode(conn)
		if err != nil {
			return // connection closed or protocol violation
		}
		if kind == protocol.FrameHeartbeat {
			continue
		}
		if kind != protocol.FrameRequest {
			slog.Warn("unexpected frame on request connection", "kind", kind.String())
			continue
		}

		env, err := codec.Decode(body)
		if err != nil {
			// The outer envelope itself is unreadable; there is no msg_id to
			// correlate a reply with, so the connection is unusable.
			slog.Warn("dropping connection with malformed envelope", "err", err)
			return
		}

		s.wg.Add(1)
		reply := s.handler(ctx, env)
		s.wg.Done()

		if err := s.writeReply(conn, reply); err != nil {
			slog.Warn("failed to write reply", "topic", env.Topic, "err", err)
			return
		}
	}
}

func (s *Server) writeReply(conn net.Conn, reply *message.Envelope) error {
	out, err := codec.Encode(reply)
	if err != nil {
		// A handler returned a payload that cannot be encoded. The request
		// still gets exactly one reply.
		slog.Error("failed to encode reply payload", "topic", reply.Topic, "err", err)
		out, err = codec.Encode(reply.Reply(&message.UnhandledApplicationError{
			Exception: fmt.Sprintf("reply encoding failed: %v", err),
		}))
		if err != nil {
			return err
		}
	}
	return protocol.Encode(conn, protocol.FrameReply, out)
}

// dispatch is the core handler wrapped by the middleware chain. Whatever a
// handler does (missing, failing, panicking), the serve loop survives and
// the caller gets exactly one reply carrying the request's topic and msg_id.
func (s *Server) dispatch(ctx context.Context, req *message.Envelope) (reply *message.Envelope) {
	// A payload that already failed deserialization is logged and echoed
	// straight back; no handler sees it.
	if de, ok := req.Payload.(*message.DeserializationError); ok {
		slog.Error("deserialization error", "topic", de.Topic, "payload_type", de.TypeTag,
			"msg_id", de.MsgID, "err", de.Message)
		return req.Reply(de)
	}

	h, ok := s.handlers[req.Topic]
	if !ok {
		// A missing topic is an application error, not a transport fault.
		return req.Reply(&message.UnhandledApplicationError{
			Exception: fmt.Sprintf("no handler registered for topic %q", req.Topic),
		})
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panicked", "topic", req.Topic, "panic", r,
				"stack", string(debug.Stack()))
			reply = req.Reply(&message.UnhandledApplicationError{
				Exception: fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	result, err := h(ctx, req.Payload)
	if err != nil {
		return req.Reply(&message.UnhandledApplicationError{Exception: err.Error()})
	}
	return req.Reply(result)
}

// Shutdown stops accepting connections and waits up to timeout for in-flight
// requests to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	// Set the flag before closing the listener so Serve recognizes the
	// accept error as intentional.
	s.shutdown.Store(true)
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: timeout waiting for in-flight requests")
	}
}
