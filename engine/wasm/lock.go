package wasm

import (
	"sync"

	"github.com/wippyai/neuropil-go/internal/goid"
)

// guestLock serializes entry into the guest. The goroutine holding it may
// lock it again, which is how a host callback calls back into the engine
// while the guest export that invoked it is still on the stack. Every
// other goroutine waits until the outermost call returns.
type guestLock struct {
	mu    sync.Mutex
	owner uint64 // guarded by state
	depth int    // guarded by state
	state sync.Mutex
}

func (l *guestLock) Lock() {
	id := goid.Current()
	l.state.Lock()
	if l.owner == id {
		l.depth++
		l.state.Unlock()
		return
	}
	l.state.Unlock()

	l.mu.Lock()
	l.state.Lock()
	l.owner, l.depth = id, 1
	l.state.Unlock()
}

func (l *guestLock) Unlock() {
	l.state.Lock()
	l.depth--
	if l.depth > 0 {
		l.state.Unlock()
		return
	}
	l.owner = 0
	l.state.Unlock()
	l.mu.Unlock()
}
