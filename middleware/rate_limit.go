package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"playlink/message"
)

// RateLimit rejects requests beyond r per second (token bucket with the
// given burst). Rejected requests get an application-error reply; the
// transport is unaffected.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			if !limiter.Allow() {
				return req.Reply(&message.UnhandledApplicationError{
					Exception: "rate limit exceeded",
				})
			}
			return next(ctx, req)
		}
	}
}
