package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playlink/client"
	"playlink/message"
	"playlink/server"
)

func TestAsyncDispatchEcho(t *testing.T) {
	addr := startServer(t, map[string]server.Handler{"echo": echoHandler})

	c := client.NewAsync(addr)
	defer c.Close()

	reply, err := c.Dispatch(context.Background(), "echo", &echoRequest{Message: "async"})
	require.NoError(t, err)
	assert.Equal(t, &echoReply{Echo: "async"}, reply)
}

func TestAsyncGoCompletesInQueueOrder(t *testing.T) {
	addr := startServer(t, map[string]server.Handler{"echo": echoHandler})

	c := client.NewAsync(addr)
	defer c.Close()

	done := make(chan *client.Call, 2)
	c.Go("echo", &echoRequest{Message: "first"}, done)
	c.Go("echo", &echoRequest{Message: "second"}, done)

	first := <-done
	second := <-done
	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, &echoReply{Echo: "first"}, first.Reply)
	assert.Equal(t, &echoReply{Echo: "second"}, second.Reply)
}

func TestAsyncGoNilDone(t *testing.T) {
	addr := startServer(t, map[string]server.Handler{"echo": echoHandler})

	c := client.NewAsync(addr)
	defer c.Close()

	call := c.Go("echo", &echoRequest{Message: "x"}, nil)
	<-call.Done
	require.NoError(t, call.Err)
	assert.Equal(t, &echoReply{Echo: "x"}, call.Reply)
}

func TestAsyncGoUnbufferedDonePanics(t *testing.T) {
	addr := startServer(t, map[string]server.Handler{"echo": echoHandler})

	c := client.NewAsync(addr)
	defer c.Close()

	assert.Panics(t, func() {
		c.Go("echo", &echoRequest{Message: "x"}, make(chan *client.Call))
	})
}

func TestAsyncGoAfterClose(t *testing.T) {
	registerTestPayloads()

	c := client.NewAsync("127.0.0.1:1")
	c.Close()

	call := c.Go("echo", &echoRequest{Message: "x"}, nil)
	<-call.Done
	assert.ErrorIs(t, call.Err, client.ErrClosed)
}

func TestAsyncDispatchContextExpiry(t *testing.T) {
	addr := startServer(t, map[string]server.Handler{
		"slow": func(_ context.Context, p message.Payload) (message.Payload, error) {
			time.Sleep(300 * time.Millisecond)
			return nil, nil
		},
	})

	c := client.NewAsync(addr)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Dispatch(ctx, "slow", nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestAsyncErrorHandler(t *testing.T) {
	addr := startServer(t, map[string]server.Handler{
		"fail": func(_ context.Context, _ message.Payload) (message.Payload, error) {
			return nil, errors.New("nope")
		},
	})

	c := client.NewAsync(addr)
	defer c.Close()

	handled := make(chan string, 1)
	c.SetErrorHandler(func(req, reply *message.Envelope) {
		appErr := reply.Payload.(*message.UnhandledApplicationError)
		handled <- appErr.Exception
	})

	reply, err := c.Dispatch(context.Background(), "fail", nil)
	require.NoError(t, err)
	assert.True(t, message.IsApplicationError(reply))

	select {
	case exc := <-handled:
		assert.Equal(t, "nope", exc)
	case <-time.After(time.Second):
		t.Fatal("error handler was not invoked")
	}
}
