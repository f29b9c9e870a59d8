package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDuplicatePanics(t *testing.T) {
	// Empty is registered by init; a second registration of the same tag
	// must fail loudly.
	assert.Panics(t, func() {
		Register(func() Payload { return &Empty{} })
	})
}

func TestLookupReturnsFreshValues(t *testing.T) {
	p1, ok := Lookup("UnhandledApplicationError")
	require.True(t, ok)
	p2, ok := Lookup("UnhandledApplicationError")
	require.True(t, ok)

	e1 := p1.(*UnhandledApplicationError)
	e2 := p2.(*UnhandledApplicationError)
	e1.Exception = "mutated"
	assert.Empty(t, e2.Exception, "Lookup must not share payload values")
}

func TestLookupUnknownTag(t *testing.T) {
	_, ok := Lookup("NoSuchPayload")
	assert.False(t, ok)
}

func TestRegisteredTypesIncludesBuiltins(t *testing.T) {
	tags := RegisteredTypes()
	assert.Contains(t, tags, "Empty")
	assert.Contains(t, tags, "UnhandledApplicationError")
	assert.Contains(t, tags, "DeserializationError")
	assert.IsIncreasing(t, tags)
}

func TestReplyCarriesCorrelation(t *testing.T) {
	req := &Envelope{Topic: "mute", MsgID: "abc123", Payload: &Empty{}}

	reply := req.Reply(&UnhandledApplicationError{Exception: "boom"})
	assert.Equal(t, "mute", reply.Topic)
	assert.Equal(t, "abc123", reply.MsgID)
	assert.True(t, IsApplicationError(reply.Payload))

	empty := req.Reply(nil)
	assert.True(t, IsEmpty(empty.Payload))
}
