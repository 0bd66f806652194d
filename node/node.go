package node

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/errors"
	"github.com/wippyai/neuropil-go/registry"
	"github.com/wippyai/neuropil-go/status"
)

// nodes maps live context handles to their Node for the trampolines.
var nodes = registry.New[Node]()

// Node wraps one engine context.
type Node struct {
	eng      engine.Engine
	life     *lifecycle
	log      *zap.Logger
	onError  func(error)
	subjects map[string][]Handler
	userdata any
	cleanup  runtime.Cleanup
	stats    counters
	settings engine.Settings
	seats    [seatCount]seat
	mu       sync.RWMutex
	raise    bool
}

// lifecycle is the part of a Node the finalizer may touch. It must never
// point back at the Node, or the Node could not be collected.
type lifecycle struct {
	eng       engine.Engine
	log       *zap.Logger
	handle    engine.Handle
	destroyed atomic.Bool
}

// teardown destroys the engine context and drops the registry entry. Only
// the first caller reaches the engine; fired reports whether that was us.
func (l *lifecycle) teardown(graceful bool) (code status.Code, fired bool) {
	if !l.destroyed.CompareAndSwap(false, true) {
		return status.OK, false
	}
	code = l.eng.Destroy(l.handle, graceful)
	nodes.Unregister(l.handle)
	return code, true
}

func finalize(l *lifecycle) {
	if code, fired := l.teardown(false); fired {
		l.log.Debug("context finalized",
			zap.Uint64("handle", uint64(l.handle)),
			zap.Stringer("status", code))
	}
}

// New creates an engine context on eng and wraps it in a Node.
func New(eng engine.Engine, opts ...Option) (*Node, error) {
	if eng == nil {
		return nil, errors.InvalidInput(errors.PhaseCreate, "engine is nil")
	}

	o := options{raise: true}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	defaults, code := eng.DefaultSettings()
	if code != status.OK {
		return nil, errors.Initialization("default settings", errors.Engine(errors.PhaseCreate, "default settings", int(code), eng.StatusText(code)))
	}
	settings := mergeSettings(defaults, o.settings)

	h, code := eng.NewContext(settings)
	if code != status.OK || !h.Valid() {
		if code == status.OK {
			code = status.UnknownError
		}
		return nil, errors.Initialization("new context", errors.Engine(errors.PhaseCreate, "new context", int(code), eng.StatusText(code)))
	}

	n := &Node{
		eng:      eng,
		log:      log.With(zap.Uint64("handle", uint64(h))),
		onError:  o.onError,
		subjects: make(map[string][]Handler),
		userdata: o.userdata,
		settings: settings,
		raise:    o.raise,
		life: &lifecycle{
			eng:    eng,
			log:    log,
			handle: h,
		},
	}
	for i := range n.seats {
		n.seats[i].policy = AllowAll
	}

	if err := nodes.Register(h, n); err != nil {
		n.life.destroyed.Store(true)
		eng.Destroy(h, false)
		return nil, err
	}
	n.cleanup = runtime.AddCleanup(n, finalize, n.life)

	n.log.Debug("context created",
		zap.Uint32("threads", settings.Threads),
		zap.Bool("raise_on_error", n.raise))
	return n, nil
}

// Shutdown destroys the engine context. Later calls are no-ops returning Ok.
// A graceful shutdown lets the engine leave the network cleanly.
func (n *Node) Shutdown(graceful bool) (status.Code, error) {
	code, fired := n.life.teardown(graceful)
	if !fired {
		return status.OK, nil
	}
	n.cleanup.Stop()
	n.log.Debug("context destroyed", zap.Bool("graceful", graceful), zap.Stringer("status", code))
	return n.check(code, errors.PhaseDestroy, "shutdown")
}

// Destroyed reports whether the engine context is gone.
func (n *Node) Destroyed() bool {
	return n.life.destroyed.Load()
}

// Handle returns the engine context handle.
func (n *Node) Handle() engine.Handle {
	return n.life.handle
}

// Settings returns the settings the context was created with.
func (n *Node) Settings() engine.Settings {
	return n.settings
}

// RaiseOnError reports whether engine failures are returned as errors.
func (n *Node) RaiseOnError() bool {
	return n.raise
}

func (n *Node) SetUserdata(v any) {
	n.mu.Lock()
	n.userdata = v
	n.mu.Unlock()
}

func (n *Node) Userdata() any {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.userdata
}

// Lookup returns the live Node that owns h.
func Lookup(h engine.Handle) (*Node, error) {
	return nodes.Resolve(h)
}

// Live returns the number of registered nodes.
func Live() int {
	return nodes.Len()
}

// Observe subscribes o to node registration events.
func Observe(o registry.Observer) (unsubscribe func()) {
	return nodes.Subscribe(o)
}

// outcome translates code using the engine's own message table.
func (n *Node) outcome(code status.Code) status.Outcome {
	out := status.Translate(code)
	if !out.OK() {
		if text := n.eng.StatusText(code); text != "" {
			out.Message = text
		}
	}
	return out
}

func (n *Node) check(code status.Code, phase errors.Phase, op string) (status.Code, error) {
	if code == status.OK {
		return code, nil
	}
	out := n.outcome(code)
	n.log.Debug("engine call failed",
		zap.String("op", op),
		zap.Int("status", int(code)),
		zap.String("text", out.Message))
	if !n.raise {
		return code, nil
	}
	return code, out.Err(phase, op)
}

// settle is check for calls that may race with Shutdown. A failure seen
// after the context is gone reports the destruction, not the engine's
// complaint about a dead handle.
func (n *Node) settle(code status.Code, phase errors.Phase, op string) (status.Code, error) {
	if code != status.OK && n.Destroyed() {
		return n.destroyedErr(phase, op)
	}
	return n.check(code, phase, op)
}

func (n *Node) destroyedErr(phase errors.Phase, op string) (status.Code, error) {
	if !n.raise {
		return status.InvalidOperation, nil
	}
	return status.InvalidOperation, errors.Destroyed(phase, op)
}

func (n *Node) report(err error) {
	if n.onError != nil {
		n.onError(err)
	}
}
