package pubsub_test

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playlink/message"
	"playlink/pubsub"
)

type zoneEvent struct {
	ZoneID string `cbor:"zone_id"`
	State  string `cbor:"state"`
}

func (*zoneEvent) PayloadType() string { return "zoneEvent" }

var registerOnce sync.Once

func registerTestPayloads() {
	registerOnce.Do(func() {
		message.Register(func() message.Payload { return &zoneEvent{} })
	})
}

// newSubscriber shortens the poll timeout for quick reconnects, but keeps it
// longer than any idle stretch in these tests so a quiet channel is not
// mistaken for a stall.
func newSubscriber() *pubsub.Subscriber {
	s := pubsub.NewSubscriber()
	s.PollTimeout = 300 * time.Millisecond
	return s
}

// publishUntil republishes the event until the condition holds. Subscribers
// connect asynchronously, so the first events may land before anyone listens.
func publishUntil(t *testing.T, pub *pubsub.Publisher, ev *zoneEvent, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("event was not delivered")
		}
		require.NoError(t, pub.Publish("state_changed", ev))
		time.Sleep(20 * time.Millisecond)
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	registerTestPayloads()
	sock := filepath.Join(t.TempDir(), "events.sock")

	pub := pubsub.NewPublisher()
	require.NoError(t, pub.Listen("unix", sock))
	defer pub.Close()

	var got1, got2 atomic.Int32
	sub1, sub2 := newSubscriber(), newSubscriber()
	sub1.Subscribe(sock, func(env *message.Envelope) {
		if ev, ok := env.Payload.(*zoneEvent); ok && ev.ZoneID == "z1" {
			got1.Add(1)
		}
	})
	defer sub1.Unsubscribe()
	sub2.Subscribe(sock, func(env *message.Envelope) {
		if _, ok := env.Payload.(*zoneEvent); ok {
			got2.Add(1)
		}
	})
	defer sub2.Unsubscribe()

	publishUntil(t, pub, &zoneEvent{ZoneID: "z1", State: "playing"}, func() bool {
		return got1.Load() > 0 && got2.Load() > 0
	})
}

func TestSubscriberRecoversFromPublisherRestart(t *testing.T) {
	registerTestPayloads()
	sock := filepath.Join(t.TempDir(), "events.sock")

	pub := pubsub.NewPublisher()
	require.NoError(t, pub.Listen("unix", sock))

	var got atomic.Int32
	sub := newSubscriber()
	sub.Subscribe(sock, func(env *message.Envelope) {
		got.Add(1)
	})
	defer sub.Unsubscribe()

	publishUntil(t, pub, &zoneEvent{ZoneID: "z1"}, func() bool { return got.Load() > 0 })

	// Publisher restarts on the same address; the subscriber's poll loop
	// must re-dial and pick events back up without intervention.
	pub.Close()
	pub = pubsub.NewPublisher()
	require.NoError(t, pub.Listen("unix", sock))
	defer pub.Close()

	before := got.Load()
	publishUntil(t, pub, &zoneEvent{ZoneID: "z2"}, func() bool { return got.Load() > before })
}

func TestSubscribeSameCallbackIsIdempotent(t *testing.T) {
	registerTestPayloads()
	sock := filepath.Join(t.TempDir(), "events.sock")

	pub := pubsub.NewPublisher()
	require.NoError(t, pub.Listen("unix", sock))
	defer pub.Close()

	var got atomic.Int32
	cb := func(env *message.Envelope) { got.Add(1) }

	sub := newSubscriber()
	sub.Subscribe(sock, cb)
	sub.Subscribe(sock, cb) // no-op, must not spawn a second listener
	defer sub.Unsubscribe()

	publishUntil(t, pub, &zoneEvent{ZoneID: "z1"}, func() bool { return got.Load() > 0 })

	// Let in-flight events settle, then publish exactly once: a duplicated
	// listener would deliver it twice.
	time.Sleep(200 * time.Millisecond)
	base := got.Load()
	require.NoError(t, pub.Publish("state_changed", &zoneEvent{ZoneID: "z2"}))
	require.Eventually(t, func() bool { return got.Load() > base }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, base+1, got.Load())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	registerTestPayloads()
	sock := filepath.Join(t.TempDir(), "events.sock")

	pub := pubsub.NewPublisher()
	require.NoError(t, pub.Listen("unix", sock))
	defer pub.Close()

	var got atomic.Int32
	sub := newSubscriber()
	sub.Subscribe(sock, func(env *message.Envelope) { got.Add(1) })

	publishUntil(t, pub, &zoneEvent{ZoneID: "z1"}, func() bool { return got.Load() > 0 })

	sub.Unsubscribe()
	count := got.Load()
	for i := 0; i < 5; i++ {
		require.NoError(t, pub.Publish("state_changed", &zoneEvent{ZoneID: "z2"}))
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, count, got.Load())
}
