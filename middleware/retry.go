package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"playlink/message"
)

// Retry re-runs a handler whose reply is a retryable application error,
// with exponential backoff. Retryable means the music-server session hiccup
// class: timeouts and refused connections reported by the session layer.
func Retry(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			reply := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				appErr, ok := reply.Payload.(*message.UnhandledApplicationError)
				if !ok {
					return reply
				}
				if !retryable(appErr.Exception) {
					return reply
				}
				slog.Info("retrying handler", "topic", req.Topic, "attempt", i+1,
					"err", appErr.Exception)
				time.Sleep(baseDelay * time.Duration(1<<i))
				reply = next(ctx, req)
			}
			return reply
		}
	}
}

func retryable(errText string) bool {
	return strings.Contains(errText, "timeout") ||
		strings.Contains(errText, "connection refused")
}
