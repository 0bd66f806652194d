package registry

import "github.com/wippyai/neuropil-go/engine"

// EventType identifies a registry lifecycle event.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventUnregistered
)

func (t EventType) String() string {
	if t == EventRegistered {
		return "registered"
	}
	return "unregistered"
}

// Event represents a registry lifecycle event.
type Event struct {
	Handle engine.Handle
	Type   EventType
}

// Observer receives notifications about registry lifecycle events.
type Observer interface {
	OnRegistryEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnRegistryEvent calls f(e).
func (f ObserverFunc) OnRegistryEvent(e Event) { f(e) }
