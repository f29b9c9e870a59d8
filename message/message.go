// Package message defines the typed payloads exchanged between the skill
// process and the worker process, and the Envelope that wraps a payload with
// routing and correlation metadata.
//
// Every payload names its own wire tag via PayloadType. The tag is what
// travels in the envelope's `type` field, and it is the key into the payload
// registry on the receiving side.
package message

// Payload is a typed data record carried inside an Envelope.
//
// Implementations are plain structs with CBOR field tags. The value returned
// by PayloadType must be unique process-wide and identical on both ends of
// the wire.
type Payload interface {
	PayloadType() string
}

// Envelope wraps a payload with the name of the remote operation (or event)
// it pertains to and the correlation id used to match a reply to its request.
//
// The wire-level `type` field is not stored here; it is derived from the
// payload itself when encoding.
type Envelope struct {
	Topic   string
	MsgID   string
	Payload Payload
}

// Reply builds a reply envelope sharing this request's topic and msg_id.
// A nil payload is substituted with Empty.
func (e *Envelope) Reply(p Payload) *Envelope {
	if p == nil {
		p = &Empty{}
	}
	return &Envelope{Topic: e.Topic, MsgID: e.MsgID, Payload: p}
}

// Empty is the marker payload for calls and replies carrying no data.
type Empty struct{}

func (*Empty) PayloadType() string { return "Empty" }

// UnhandledApplicationError wraps a handler-side failure that the
// application did not handle itself. It is always distinguishable from a
// successful result by its type tag.
type UnhandledApplicationError struct {
	Exception string `cbor:"exception"`
}

func (*UnhandledApplicationError) PayloadType() string { return "UnhandledApplicationError" }

func (e *UnhandledApplicationError) Error() string { return e.Exception }

// DeserializationError is produced when an incoming envelope's type tag is
// unknown or its payload bytes fail to decode. It carries the offending tag,
// topic, and correlation id so the caller can still match it to its pending
// request.
type DeserializationError struct {
	Exception string `cbor:"exception"`
	Message   string `cbor:"message"`
	TypeTag   string `cbor:"payload_type"`
	Topic     string `cbor:"topic"`
	MsgID     string `cbor:"msg_id"`
}

func (*DeserializationError) PayloadType() string { return "DeserializationError" }

func (e *DeserializationError) Error() string { return e.Message }

// IsEmpty reports whether p is the Empty marker payload.
func IsEmpty(p Payload) bool {
	_, ok := p.(*Empty)
	return ok
}

// IsDeserializationError reports whether p is a DeserializationError.
func IsDeserializationError(p Payload) bool {
	_, ok := p.(*DeserializationError)
	return ok
}

// IsApplicationError reports whether p is an UnhandledApplicationError.
func IsApplicationError(p Payload) bool {
	_, ok := p.(*UnhandledApplicationError)
	return ok
}
