package message

import (
	"fmt"
	"sort"
	"sync"
)

// The payload registry is an explicit table from type tag to payload
// factory. It is populated by deliberate Register calls during process
// initialization, before any socket is opened, and read-only afterwards.
// Concurrent reads need no locking once registration is done; the mutex only
// guards the registration phase itself.
var (
	regMu    sync.RWMutex
	registry = make(map[string]func() Payload)
)

func init() {
	Register(func() Payload { return &Empty{} })
	Register(func() Payload { return &UnhandledApplicationError{} })
	Register(func() Payload { return &DeserializationError{} })
}

// Register adds a payload type to the registry. The factory must return a
// fresh zero value; its PayloadType is used as the wire tag.
//
// Registering the same tag twice is a programmer error and panics, so a
// wiring mistake surfaces at startup rather than as silent decode failures.
func Register(factory func() Payload) {
	tag := factory().PayloadType()
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := registry[tag]; dup {
		panic(fmt.Sprintf("message: payload type %q registered twice", tag))
	}
	registry[tag] = factory
}

// Lookup returns a fresh payload value for the given tag, or false if the
// tag is unknown.
func Lookup(tag string) (Payload, bool) {
	regMu.RLock()
	factory, ok := registry[tag]
	regMu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(), true
}

// RegisteredTypes returns the sorted list of known payload tags. Used by
// tests and diagnostics.
func RegisteredTypes() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
