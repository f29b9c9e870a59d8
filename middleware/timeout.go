package middleware

import (
	"context"
	"time"

	"playlink/message"
)

// Timeout bounds handler execution. The handler keeps running in its
// goroutine after expiry, but the caller gets an application-error reply
// instead of holding the serve loop past the deadline.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Envelope, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case reply := <-done:
				return reply
			case <-ctx.Done():
				return req.Reply(&message.UnhandledApplicationError{
					Exception: "handler timed out",
				})
			}
		}
	}
}
