// Package registry maps engine context handles back to the Go values that
// own them.
//
// Engine trampolines only receive a raw engine.Handle. The registry is how
// a trampoline recovers "self":
//
//	reg := registry.New[Node]()
//	reg.Register(h, node)
//
//	// inside a trampoline, on an engine thread
//	node, err := reg.Resolve(h)
//
// Entries hold weak pointers. The registry never keeps a value alive, and a
// value that has been collected resolves as unknown.
//
// # Observers
//
// Register observers to track handle lifecycle events:
//
//	unsubscribe := reg.Subscribe(registry.ObserverFunc(func(e registry.Event) {
//	    switch e.Type {
//	    case registry.EventRegistered:
//	        log.Printf("context %d registered", e.Handle)
//	    case registry.EventUnregistered:
//	        log.Printf("context %d gone", e.Handle)
//	    }
//	}))
//	defer unsubscribe()
package registry
