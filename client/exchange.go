package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"playlink/codec"
	"playlink/message"
	"playlink/protocol"
)

// ErrTimeout reports that a dispatch exhausted its retry budget without
// receiving a reply. Match with errors.Is.
var ErrTimeout = errors.New("playlink: timed out waiting for reply")

// TimeoutError carries the topic and attempt count of a failed dispatch.
type TimeoutError struct {
	Topic    string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("playlink: no reply to %q after %d attempts", e.Topic, e.Attempts)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// conn owns a single lock-step connection to the worker. It is not safe for
// concurrent use; the sync Client serializes access with a mutex and the
// async client confines it to one goroutine.
type conn struct {
	address string
	c       net.Conn
}

// dial opens a connection to a "host:port" TCP endpoint or a local socket
// path. Paths are recognized by a "unix:" prefix or a path separator.
func dial(address string) (net.Conn, error) {
	if rest, ok := strings.CutPrefix(address, "unix:"); ok {
		return net.Dial("unix", rest)
	}
	if strings.ContainsRune(address, '/') {
		return net.Dial("unix", address)
	}
	return net.Dial("tcp", address)
}

func (cn *conn) ensure() error {
	if cn.c != nil {
		return nil
	}
	c, err := dial(cn.address)
	if err != nil {
		return err
	}
	cn.c = c
	return nil
}

func (cn *conn) close() {
	if cn.c != nil {
		cn.c.Close()
		cn.c = nil
	}
}

// exchange implements the lazy-pirate loop: send the request, wait up to
// timeout for the correlated reply, and on expiry discard the connection,
// dial a fresh one, and resend the same envelope. A connection left waiting
// past its deadline is poisoned state and is never reused.
//
// The envelope is sent at most retries+1 times; when the budget is spent the
// connection is closed and a TimeoutError returned.
func (cn *conn) exchange(env *message.Envelope, timeout time.Duration, retries int) (*message.Envelope, error) {
	data, err := codec.Encode(env)
	if err != nil {
		return nil, err
	}

	attempts := retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := cn.attempt(data, timeout)
		if err == nil {
			reply, decErr := codec.Decode(body)
			if decErr == nil {
				return reply, nil
			}
			err = decErr
		}
		cn.close()
		if attempt < attempts {
			slog.Info("no reply from worker, reconnecting",
				"topic", env.Topic, "attempts_left", attempts-attempt, "err", err)
		}
	}
	slog.Info("no reply from worker, retries exhausted, giving up", "topic", env.Topic)
	return nil, &TimeoutError{Topic: env.Topic, Attempts: attempts}
}

// attempt performs one send-and-wait cycle and returns the raw reply body.
func (cn *conn) attempt(data []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	if err := cn.ensure(); err != nil {
		// Worker unreachable. Hold this attempt's time slot anyway so the
		// caller's worst-case latency stays bounded by timeout*(retries+1)
		// instead of burning the whole budget in microseconds.
		time.Sleep(time.Until(deadline))
		return nil, err
	}
	if err := cn.c.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if err := protocol.Encode(cn.c, protocol.FrameRequest, data); err != nil {
		return nil, err
	}
	for {
		kind, body, err := protocol.Decode(cn.c)
		if err != nil {
			return nil, err
		}
		if kind == protocol.FrameReply {
			return body, nil
		}
		// Stray heartbeat or event frame on a request/reply connection:
		// ignore and keep waiting for the reply.
	}
}

// newMsgID generates a fresh correlation id: a v4 uuid without dashes.
func newMsgID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
