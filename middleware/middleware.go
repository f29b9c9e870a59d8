// Package middleware provides composable wrappers around the server's
// dispatch of request envelopes.
package middleware

import (
	"context"

	"playlink/message"
)

// HandlerFunc processes one request envelope and returns the reply envelope.
type HandlerFunc func(ctx context.Context, req *message.Envelope) *message.Envelope

// Middleware wraps a HandlerFunc with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one. Chain(A, B, C)(h) runs A outermost:
// A.before → B.before → C.before → h → C.after → B.after → A.after.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
