// Package pubsub implements the one-way, best-effort event channel from the
// worker process to the skill process.
//
// The publisher accepts subscriber connections and broadcasts every event to
// all of them; there is no acknowledgment and no replay for late joiners.
// The subscriber runs a background loop that polls with a bounded timeout
// and re-dials on stall, which rides out a worker restart without the owning
// process having to notice.
package pubsub

import (
	"bytes"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"playlink/codec"
	"playlink/message"
	"playlink/protocol"
)

// writeTimeout bounds how long a slow subscriber can stall a broadcast
// before being dropped.
const writeTimeout = time.Second

// Publisher broadcasts event envelopes to all connected subscribers.
type Publisher struct {
	mu       sync.Mutex
	listener net.Listener
	subs     map[net.Conn]struct{}
	closed   bool
}

// NewPublisher creates a publisher with no subscribers.
func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[net.Conn]struct{})}
}

// Listen binds the publisher to an address and starts accepting subscriber
// connections in the background.
func (p *Publisher) Listen(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.listener = listener
	p.mu.Unlock()
	go p.acceptLoop(listener)
	return nil
}

// Addr returns the listener address, useful when listening on port 0.
func (p *Publisher) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

func (p *Publisher) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return // listener closed
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			conn.Close()
			return
		}
		p.subs[conn] = struct{}{}
		count := len(p.subs)
		p.mu.Unlock()
		slog.Debug("subscriber connected", "remote", conn.RemoteAddr(), "subscribers", count)
	}
}

// Publish broadcasts an event payload to every current subscriber. Delivery
// is best-effort: a subscriber that cannot be written to within the write
// timeout is dropped, and nobody waits for acknowledgment.
func (p *Publisher) Publish(topic string, payload message.Payload) error {
	env := &message.Envelope{
		Topic:   topic,
		MsgID:   newEventID(),
		Payload: payload,
	}
	data, err := codec.Encode(env)
	if err != nil {
		return err
	}
	var frame bytes.Buffer
	if err := protocol.Encode(&frame, protocol.FrameEvent, data); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for conn := range p.subs {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write(frame.Bytes()); err != nil {
			slog.Debug("dropping subscriber", "remote", conn.RemoteAddr(), "err", err)
			conn.Close()
			delete(p.subs, conn)
		}
	}
	return nil
}

// Close stops accepting subscribers and disconnects the current ones.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.listener != nil {
		p.listener.Close()
	}
	for conn := range p.subs {
		conn.Close()
		delete(p.subs, conn)
	}
}

func newEventID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
