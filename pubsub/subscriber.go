package pubsub

import (
	"log/slog"
	"net"
	"reflect"
	"strings"
	"sync"
	"time"

	"playlink/codec"
	"playlink/message"
	"playlink/protocol"
)

const (
	// DefaultPollTimeout is how long one read waits before the connection is
	// considered stalled and re-established.
	DefaultPollTimeout = 2 * time.Second
	// DefaultReconnectAttempts is the consecutive-stall budget before the
	// listener gives up.
	DefaultReconnectAttempts = 5
)

// Callback receives each decoded event envelope, invoked synchronously on
// the listener goroutine.
type Callback func(env *message.Envelope)

// Subscriber maintains a background listener on the worker's event channel.
//
// The listener polls with a bounded timeout; every stall tears the
// connection down and dials a fresh one, so a publisher restart within the
// reconnect budget is recovered without caller intervention. After the
// budget is spent on consecutive stalls the listener gives up silently,
// logging only.
type Subscriber struct {
	PollTimeout       time.Duration
	ReconnectAttempts int

	mu       sync.Mutex
	address  string
	callback uintptr // identity of the registered callback
	stop     chan struct{}
	done     chan struct{}
}

// NewSubscriber creates a subscriber with default poll and reconnect
// settings. No listener runs until Subscribe.
func NewSubscriber() *Subscriber {
	return &Subscriber{
		PollTimeout:       DefaultPollTimeout,
		ReconnectAttempts: DefaultReconnectAttempts,
	}
}

// Subscribe starts the background listener delivering events from address to
// cb. Calling it again with the same callback (same function identity) and
// address is a no-op; a different callback or address tears down the
// previous listener first.
func (s *Subscriber) Subscribe(address string, cb Callback) {
	id := reflect.ValueOf(cb).Pointer()

	s.mu.Lock()
	if s.stop != nil && s.address == address && s.callback == id {
		s.mu.Unlock()
		return
	}
	if s.stop != nil {
		s.stopLocked()
	}
	s.address = address
	s.callback = id
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go s.listen(address, cb, stop, done)
}

// Unsubscribe stops the background listener, if any, and waits for it to
// exit.
func (s *Subscriber) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Subscriber) stopLocked() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
	s.done = nil
}

func (s *Subscriber) listen(address string, cb Callback, stop, done chan struct{}) {
	defer close(done)

	var conn net.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	stalls := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		if conn == nil {
			c, err := dialEvents(address)
			if err != nil {
				stalls++
				if stalls > s.ReconnectAttempts {
					slog.Info("event listener giving up", "address", address, "err", err)
					return
				}
				// Wait out the poll interval before the next dial so a dead
				// publisher is not hammered.
				select {
				case <-stop:
					return
				case <-time.After(s.PollTimeout):
				}
				continue
			}
			conn = c
		}

		conn.SetReadDeadline(time.Now().Add(s.PollTimeout))
		kind, body, err := protocol.Decode(conn)
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			// Stalled or broken: replace the connection, up to the
			// consecutive-attempt budget.
			conn.Close()
			conn = nil
			stalls++
			if stalls > s.ReconnectAttempts {
				slog.Info("event listener giving up", "address", address, "err", err)
				return
			}
			continue
		}
		stalls = 0

		if kind != protocol.FrameEvent {
			continue
		}
		env, err := codec.Decode(body)
		if err != nil {
			slog.Warn("discarding malformed event", "err", err)
			continue
		}
		cb(env)
	}
}

// dialEvents mirrors the request channel's addressing: "host:port" for TCP,
// a "unix:" prefix or path for a local socket.
func dialEvents(address string) (net.Conn, error) {
	if rest, ok := strings.CutPrefix(address, "unix:"); ok {
		return net.Dial("unix", rest)
	}
	if strings.ContainsRune(address, '/') {
		return net.Dial("unix", address)
	}
	return net.Dial("tcp", address)
}
