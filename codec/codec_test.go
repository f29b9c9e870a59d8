package codec

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playlink/message"
)

type trackQuery struct {
	Query      string  `cbor:"query"`
	SessionKey *string `cbor:"session_key,omitempty"`
}

func (*trackQuery) PayloadType() string { return "trackQuery" }

var registerOnce sync.Once

func registerTestPayloads() {
	registerOnce.Do(func() {
		message.Register(func() message.Payload { return &trackQuery{} })
	})
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	registerTestPayloads()
	session := "s1"

	cases := []struct {
		name    string
		payload message.Payload
	}{
		{"optional absent", &trackQuery{Query: "blue train"}},
		{"optional present", &trackQuery{Query: "blue train", SessionKey: &session}},
		{"empty marker", &message.Empty{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := &message.Envelope{Topic: "search", MsgID: "m-1", Payload: tc.payload}

			data, err := Encode(env)
			require.NoError(t, err)
			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, env, got)
		})
	}
}

func TestEncodeNilPayloadSendsEmpty(t *testing.T) {
	data, err := Encode(&message.Envelope{Topic: "ping", MsgID: "m-2"})
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, message.IsEmpty(got.Payload))
	assert.Equal(t, "ping", got.Topic)
	assert.Equal(t, "m-2", got.MsgID)
}

func TestDecodeUnknownTypeTag(t *testing.T) {
	body, err := encMode.Marshal(map[string]any{})
	require.NoError(t, err)
	data, err := encMode.Marshal(wireEnvelope{
		Type:    "NotRegistered",
		Topic:   "search",
		MsgID:   "m-3",
		Payload: body,
	})
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)

	de, ok := got.Payload.(*message.DeserializationError)
	require.True(t, ok, "expected a DeserializationError payload, got %T", got.Payload)
	assert.Equal(t, "NotRegistered", de.TypeTag)
	assert.Contains(t, de.Message, "unknown payload type")
	// Correlation survives so the caller can still match the reply.
	assert.Equal(t, "search", got.Topic)
	assert.Equal(t, "m-3", got.MsgID)
	assert.Equal(t, "search", de.Topic)
	assert.Equal(t, "m-3", de.MsgID)
}

func TestDecodeSchemaViolation(t *testing.T) {
	registerTestPayloads()

	// A field the registered type does not declare is a schema violation,
	// not data to be dropped.
	body, err := encMode.Marshal(map[string]any{"query": "blue train", "surprise": 1})
	require.NoError(t, err)
	data, err := encMode.Marshal(wireEnvelope{
		Type:    "trackQuery",
		Topic:   "search",
		MsgID:   "m-4",
		Payload: body,
	})
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)

	de, ok := got.Payload.(*message.DeserializationError)
	require.True(t, ok, "expected a DeserializationError payload, got %T", got.Payload)
	assert.Contains(t, de.Message, "failed to deserialize")
	assert.NotEmpty(t, de.Exception)
	assert.Equal(t, "m-4", got.MsgID)
}

func TestDecodeMalformedEnvelope(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00, 0x13})
	assert.Error(t, err)
}
