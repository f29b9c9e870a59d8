package middleware

import (
	"context"
	"log/slog"
	"time"

	"playlink/message"
)

// Logging logs every dispatched request with its topic, correlation id, and
// handling duration. Application-error replies are logged at error level.
func Logging() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			start := time.Now()
			reply := next(ctx, req)
			duration := time.Since(start)
			if appErr, ok := reply.Payload.(*message.UnhandledApplicationError); ok {
				slog.Error("rpc failed", "topic", req.Topic, "msg_id", req.MsgID,
					"duration", duration, "err", appErr.Exception)
			} else {
				slog.Debug("rpc handled", "topic", req.Topic, "msg_id", req.MsgID,
					"duration", duration)
			}
			return reply
		}
	}
}
