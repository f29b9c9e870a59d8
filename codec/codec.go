// Package codec implements the wire codec for envelopes.
//
// An envelope is serialized in two passes: the payload is CBOR-encoded on
// its own first, then wrapped into the outer envelope record together with
// its type tag, topic, and msg_id, and the outer record is CBOR-encoded in
// turn. Decoding reverses the two passes, resolving the type tag through the
// payload registry.
//
// Decode failures of the inner payload are not errors: the decode path runs
// on a serving loop with no caller to catch anything, so an unknown tag or a
// schema mismatch degrades to a DeserializationError payload that still
// carries the original topic and msg_id.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"playlink/message"
)

// wireEnvelope is the outer record as it appears on the wire.
type wireEnvelope struct {
	Type    string `cbor:"type"`
	Topic   string `cbor:"topic"`
	MsgID   string `cbor:"msg_id"`
	Payload []byte `cbor:"payload"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	// Unknown fields in a payload are a schema violation, not data to be
	// silently dropped.
	decMode, err = cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode serializes an envelope to bytes.
func Encode(env *message.Envelope) ([]byte, error) {
	if env.Payload == nil {
		env = env.Reply(nil)
	}
	body, err := encMode.Marshal(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("codec: encode payload %s: %w", env.Payload.PayloadType(), err)
	}
	data, err := encMode.Marshal(wireEnvelope{
		Type:    env.Payload.PayloadType(),
		Topic:   env.Topic,
		MsgID:   env.MsgID,
		Payload: body,
	})
	if err != nil {
		return nil, fmt.Errorf("codec: encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses bytes into an envelope.
//
// A malformed outer envelope is a transport fault and returns an error. An
// unknown payload tag or a payload that fails schema validation returns a
// valid envelope whose payload is a DeserializationError, with a nil error.
func Decode(data []byte) (*message.Envelope, error) {
	var w wireEnvelope
	if err := decMode.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("codec: decode envelope: %w", err)
	}

	payload, ok := message.Lookup(w.Type)
	if !ok {
		return deserializationError(&w, fmt.Sprintf("unknown payload type: %s", w.Type), nil), nil
	}
	if err := decMode.Unmarshal(w.Payload, payload); err != nil {
		return deserializationError(&w, fmt.Sprintf("payload type failed to deserialize: %s", w.Type), err), nil
	}
	return &message.Envelope{Topic: w.Topic, MsgID: w.MsgID, Payload: payload}, nil
}

func deserializationError(w *wireEnvelope, msg string, cause error) *message.Envelope {
	exception := ""
	if cause != nil {
		exception = cause.Error()
	}
	return &message.Envelope{
		Topic: w.Topic,
		MsgID: w.MsgID,
		Payload: &message.DeserializationError{
			Exception: exception,
			Message:   msg,
			TypeTag:   w.Type,
			Topic:     w.Topic,
			MsgID:     w.MsgID,
		},
	}
}
