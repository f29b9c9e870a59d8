package client_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playlink/client"
	"playlink/codec"
	"playlink/message"
	"playlink/protocol"
	"playlink/server"
)

type echoRequest struct {
	Message string `cbor:"message"`
}

func (*echoRequest) PayloadType() string { return "echoRequest" }

type echoReply struct {
	Echo string `cbor:"echo"`
}

func (*echoReply) PayloadType() string { return "echoReply" }

var registerOnce sync.Once

func registerTestPayloads() {
	registerOnce.Do(func() {
		message.Register(func() message.Payload { return &echoRequest{} })
		message.Register(func() message.Payload { return &echoReply{} })
	})
}

func echoHandler(_ context.Context, p message.Payload) (message.Payload, error) {
	req := p.(*echoRequest)
	return &echoReply{Echo: req.Message}, nil
}

// startServer serves the given handlers on an ephemeral port and returns the
// address.
func startServer(t *testing.T, handlers map[string]server.Handler) string {
	t.Helper()
	registerTestPayloads()

	srv := server.NewServer()
	for topic, h := range handlers {
		srv.RegisterRPC(topic, h)
	}
	go srv.Serve("tcp", "127.0.0.1:0")
	t.Cleanup(func() { srv.Shutdown(time.Second) })

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not start listening")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv.Addr().String()
}

func TestDispatchEcho(t *testing.T) {
	addr := startServer(t, map[string]server.Handler{"echo": echoHandler})

	c := client.New(addr)
	defer c.Disconnect()

	reply, err := c.Dispatch("echo", &echoRequest{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, &echoReply{Echo: "hello"}, reply)
}

func TestDispatchNilPayloadSendsEmpty(t *testing.T) {
	addr := startServer(t, map[string]server.Handler{
		"ping": func(_ context.Context, p message.Payload) (message.Payload, error) {
			if !message.IsEmpty(p) {
				t.Errorf("expected Empty request, got %T", p)
			}
			return nil, nil
		},
	})

	c := client.New(addr)
	defer c.Disconnect()

	reply, err := c.Dispatch("ping", nil)
	require.NoError(t, err)
	assert.True(t, message.IsEmpty(reply))
}

func TestDispatchRetriesThenTimesOut(t *testing.T) {
	registerTestPayloads()

	// A worker that accepts connections and reads requests but never
	// replies, counting every fresh connection the retry loop dials.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var accepted atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)
			go func(c net.Conn) {
				defer c.Close()
				for {
					if _, _, err := protocol.Decode(c); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	c := client.New(ln.Addr().String(),
		client.WithTimeout(100*time.Millisecond),
		client.WithRetries(2))
	defer c.Disconnect()

	start := time.Now()
	_, err = c.Dispatch("never", &echoRequest{Message: "x"})
	elapsed := time.Since(start)

	var te *client.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.True(t, errors.Is(err, client.ErrTimeout))
	assert.Equal(t, "never", te.Topic)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, int32(3), accepted.Load(), "each attempt must dial a fresh connection")
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
}

func TestDispatchSucceedsOnRetry(t *testing.T) {
	registerTestPayloads()

	// First connection swallows the request; the retry's fresh connection
	// gets a real answer.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var conns atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			reply := conns.Add(1) > 1
			go func(c net.Conn, reply bool) {
				defer c.Close()
				for {
					_, body, err := protocol.Decode(c)
					if err != nil {
						return
					}
					if !reply {
						continue
					}
					env, err := codec.Decode(body)
					if err != nil {
						return
					}
					req := env.Payload.(*echoRequest)
					out, err := codec.Encode(env.Reply(&echoReply{Echo: req.Message}))
					if err != nil {
						return
					}
					if err := protocol.Encode(c, protocol.FrameReply, out); err != nil {
						return
					}
				}
			}(conn, reply)
		}
	}()

	c := client.New(ln.Addr().String(),
		client.WithTimeout(100*time.Millisecond),
		client.WithRetries(3))
	defer c.Disconnect()

	reply, err := c.Dispatch("echo", &echoRequest{Message: "second time lucky"})
	require.NoError(t, err)
	assert.Equal(t, &echoReply{Echo: "second time lucky"}, reply)
	assert.Equal(t, int32(2), conns.Load())
}

func TestErrorHandlerPrecedence(t *testing.T) {
	addr := startServer(t, map[string]server.Handler{
		"fail": func(_ context.Context, _ message.Payload) (message.Payload, error) {
			return nil, errors.New("boom")
		},
	})

	var callSite, clientLevel atomic.Int32
	c := client.New(addr, client.WithErrorHandler(func(_, _ *message.Envelope) {
		clientLevel.Add(1)
	}))
	defer c.Disconnect()

	// A call-site handler shadows the client-level one.
	reply, err := c.Dispatch("fail", nil, client.WithErrorHandler(func(req, rep *message.Envelope) {
		callSite.Add(1)
		assert.Equal(t, req.MsgID, rep.MsgID)
	}))
	require.NoError(t, err)
	appErr, ok := reply.(*message.UnhandledApplicationError)
	require.True(t, ok, "expected an application error payload, got %T", reply)
	assert.Equal(t, "boom", appErr.Exception)
	assert.Equal(t, int32(1), callSite.Load())
	assert.Equal(t, int32(0), clientLevel.Load())

	// Without a call-site handler the client-level one runs.
	_, err = c.Dispatch("fail", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), clientLevel.Load())
}

func TestConcurrentDispatchesAreSerialized(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	addr := startServer(t, map[string]server.Handler{
		"slow": func(_ context.Context, p message.Payload) (message.Payload, error) {
			n := inFlight.Add(1)
			if m := maxInFlight.Load(); n > m {
				maxInFlight.Store(n)
			}
			time.Sleep(30 * time.Millisecond)
			inFlight.Add(-1)
			req := p.(*echoRequest)
			return &echoReply{Echo: req.Message}, nil
		},
	})

	c := client.New(addr)
	defer c.Disconnect()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := c.Dispatch("slow", &echoRequest{Message: "m"})
			assert.NoError(t, err)
			assert.Equal(t, &echoReply{Echo: "m"}, reply)
		}()
	}
	wg.Wait()

	// One connection, one outstanding request: the shared client must never
	// interleave requests on the wire.
	assert.Equal(t, int32(1), maxInFlight.Load())
}
