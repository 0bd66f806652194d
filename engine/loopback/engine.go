package loopback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/internal/goid"
	"github.com/wippyai/neuropil-go/status"
)

// handles is shared by every Engine so handles never collide in a process.
var handles atomic.Uint64

// Engine is an in-process engine. It implements engine.Engine.
type Engine struct {
	contexts  map[engine.Handle]*nodeCtx
	listeners map[string]*nodeCtx
	faults    map[Op]status.Code
	destroyed map[engine.Handle]int
	log       *zap.Logger
	idle      *sync.Cond
	mu        sync.Mutex
}

var _ engine.Engine = (*Engine)(nil)

type nodeCtx struct {
	identity engine.Token
	receive  map[string]engine.ReceiveFunc
	mx       map[string]engine.MxProperties
	peers    map[engine.Handle]*nodeCtx
	inflight map[uint64]int // callbacks running, by goroutine
	wake     chan struct{}
	authn    engine.AAAFunc
	authz    engine.AAAFunc
	acct     engine.AAAFunc
	address  string
	joins    []string
	inbox    []*engine.Message
	settings engine.Settings
	handle   engine.Handle
	status   engine.ContextStatus
}

// New creates a loopback engine with an empty network.
func New() *Engine {
	e := &Engine{
		contexts:  make(map[engine.Handle]*nodeCtx),
		listeners: make(map[string]*nodeCtx),
		faults:    make(map[Op]status.Code),
		destroyed: make(map[engine.Handle]int),
		log:       engine.Logger().Named("loopback"),
	}
	e.idle = sync.NewCond(&e.mu)
	return e
}

// Fail makes every later call of op return code. OK clears the fault.
func (e *Engine) Fail(op Op, code status.Code) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if code == status.OK {
		delete(e.faults, op)
		return
	}
	e.faults[op] = code
}

// DestroyCalls returns how many times Destroy was called for h.
func (e *Engine) DestroyCalls(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed[h]
}

// Contexts returns the number of live contexts.
func (e *Engine) Contexts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.contexts)
}

// fault must be called with e.mu held.
func (e *Engine) fault(op Op) status.Code {
	return e.faults[op]
}

// lookup must be called with e.mu held.
func (e *Engine) lookup(h engine.Handle) (*nodeCtx, status.Code) {
	c, ok := e.contexts[h]
	if !ok {
		return nil, status.InvalidArgument
	}
	return c, status.OK
}

func (e *Engine) DefaultSettings() (engine.Settings, status.Code) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if code := e.fault(OpDefaultSettings); code != status.OK {
		return engine.Settings{}, code
	}
	return engine.DefaultSettings(), status.OK
}

func (e *Engine) NewContext(s engine.Settings) (engine.Handle, status.Code) {
	if s.Threads == 0 {
		return 0, status.InvalidArgument
	}

	identity, err := generateIdentity(time.Now().Add(defaultIdentityTTL), nil)
	if err != nil {
		e.log.Error("generate node identity", zap.Error(err))
		return 0, status.Startup
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if code := e.fault(OpNewContext); code != status.OK {
		return 0, code
	}

	h := engine.Handle(handles.Add(1))
	e.contexts[h] = &nodeCtx{
		handle:   h,
		settings: s,
		identity: identity,
		receive:  make(map[string]engine.ReceiveFunc),
		mx:       make(map[string]engine.MxProperties),
		peers:    make(map[engine.Handle]*nodeCtx),
		inflight: make(map[uint64]int),
		wake:     make(chan struct{}, 1),
		status:   engine.StatusUninitialized,
	}
	e.log.Debug("context created", zap.Uint64("handle", uint64(h)))
	return h, status.OK
}

// Destroy waits for callbacks of h running on other goroutines, so no
// callback for h starts or runs after it returns.
func (e *Engine) Destroy(h engine.Handle, graceful bool) status.Code {
	self := goid.Current()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.destroyed[h]++
	if code := e.fault(OpDestroy); code != status.OK {
		return code
	}

	c, code := e.lookup(h)
	if code != status.OK {
		return code
	}

	if graceful {
		for ph, peer := range c.peers {
			delete(peer.peers, h)
			delete(c.peers, ph)
		}
	}
	if c.address != "" {
		delete(e.listeners, c.address)
	}
	c.status = engine.StatusShutdown
	delete(e.contexts, h)
	for c.busyElsewhere(self) {
		e.idle.Wait()
	}

	e.log.Debug("context destroyed",
		zap.Uint64("handle", uint64(h)),
		zap.Bool("graceful", graceful))
	return status.OK
}

func (e *Engine) Listen(h engine.Handle, protocol, host string, port uint16) status.Code {
	addr, ok := address(protocol, host, port)
	if !ok {
		return status.InvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if code := e.fault(OpListen); code != status.OK {
		return code
	}
	c, code := e.lookup(h)
	if code != status.OK {
		return code
	}
	if c.address != "" {
		return status.InvalidOperation
	}
	if _, taken := e.listeners[addr]; taken {
		return status.NetworkError
	}

	c.address = addr
	c.status = engine.StatusRunning
	e.listeners[addr] = c
	e.log.Debug("listening", zap.Uint64("handle", uint64(h)), zap.String("address", addr))
	return status.OK
}

func (e *Engine) Join(h engine.Handle, connect string) status.Code {
	addr, ok := parseConnect(connect)
	if !ok {
		return status.InvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if code := e.fault(OpJoin); code != status.OK {
		return code
	}
	c, code := e.lookup(h)
	if code != status.OK {
		return code
	}
	c.joins = append(c.joins, addr)
	c.signal()
	return status.OK
}

func (e *Engine) Run(ctx context.Context, h engine.Handle, interval time.Duration) status.Code {
	deadline := time.Now().Add(interval)

	for {
		e.mu.Lock()
		if code := e.fault(OpRun); code != status.OK {
			e.mu.Unlock()
			return code
		}
		c, code := e.lookup(h)
		if code != status.OK {
			e.mu.Unlock()
			return code
		}
		if c.status == engine.StatusUninitialized {
			c.status = engine.StatusRunning
		}
		joins := c.joins
		c.joins = nil
		inbox := c.inbox
		c.inbox = nil
		wake := c.wake
		e.mu.Unlock()

		for _, addr := range joins {
			e.handshake(h, addr)
		}
		for _, msg := range inbox {
			e.deliver(h, msg)
		}

		if len(joins) > 0 || len(inbox) > 0 {
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return status.OK
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return status.OK
		case <-timer.C:
			return status.OK
		case <-wake:
			timer.Stop()
		}
	}
}

func (e *Engine) Send(h engine.Handle, subject string, data []byte) status.Code {
	if subject == "" {
		return status.InvalidArgument
	}

	e.mu.Lock()
	if code := e.fault(OpSend); code != status.OK {
		e.mu.Unlock()
		return code
	}
	c, code := e.lookup(h)
	if code != status.OK {
		e.mu.Unlock()
		return code
	}

	type receiver struct {
		ctx   *nodeCtx
		token engine.Token
	}
	receivers := make([]receiver, 0, len(c.peers)+1)
	if _, ok := c.receive[subject]; ok {
		receivers = append(receivers, receiver{c, c.identity})
	}
	for _, peer := range c.peers {
		if _, ok := peer.receive[subject]; ok {
			receivers = append(receivers, receiver{peer, peer.identity})
		}
	}
	authz, acct := c.authz, c.acct
	from := fingerprint(c.identity.PublicKey)
	e.mu.Unlock()

	for _, r := range receivers {
		tok := r.token
		tok.Subject = subject

		if !e.admit(c, authz, &tok) {
			e.log.Debug("receiver not authorized",
				zap.String("subject", subject),
				zap.Uint64("receiver", uint64(r.ctx.handle)))
			continue
		}

		e.mu.Lock()
		if _, live := e.contexts[r.ctx.handle]; live {
			r.ctx.inbox = append(r.ctx.inbox, newMessage(from, subject, data))
			r.ctx.signal()
		}
		e.mu.Unlock()

		if acct != nil {
			e.callback(c, func() { acct(h, &tok) })
		}
	}
	return status.OK
}

func (e *Engine) NewIdentity(h engine.Handle, expiresAt time.Time, secretKey []byte) (engine.Token, status.Code) {
	e.mu.Lock()
	code := e.fault(OpNewIdentity)
	if code == status.OK {
		_, code = e.lookup(h)
	}
	e.mu.Unlock()
	if code != status.OK {
		return engine.Token{}, code
	}

	if !expiresAt.IsZero() && !expiresAt.After(time.Now()) {
		return engine.Token{}, status.InvalidArgument
	}
	tok, err := generateIdentity(expiresAt, secretKey)
	if err != nil {
		return engine.Token{}, status.InvalidArgument
	}
	return tok, status.OK
}

func (e *Engine) UseIdentity(h engine.Handle, identity engine.Token) status.Code {
	if len(identity.PublicKey) == 0 || identity.Expired(time.Now()) {
		return status.InvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if code := e.fault(OpUseIdentity); code != status.OK {
		return code
	}
	c, code := e.lookup(h)
	if code != status.OK {
		return code
	}
	c.identity = identity
	return status.OK
}

func (e *Engine) MxProperties(h engine.Handle, subject string) (engine.MxProperties, status.Code) {
	if subject == "" {
		return engine.MxProperties{}, status.InvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if code := e.fault(OpMxProperties); code != status.OK {
		return engine.MxProperties{}, code
	}
	c, code := e.lookup(h)
	if code != status.OK {
		return engine.MxProperties{}, code
	}
	if p, ok := c.mx[subject]; ok {
		return p, status.OK
	}
	return engine.DefaultMxProperties(), status.OK
}

func (e *Engine) SetMxProperties(h engine.Handle, subject string, p engine.MxProperties) status.Code {
	if subject == "" || p.MaxParallel == 0 {
		return status.InvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if code := e.fault(OpMxProperties); code != status.OK {
		return code
	}
	c, code := e.lookup(h)
	if code != status.OK {
		return code
	}
	c.mx[subject] = p
	return status.OK
}

func (e *Engine) HasJoined(h engine.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, code := e.lookup(h)
	return code == status.OK && len(c.peers) > 0
}

func (e *Engine) Status(h engine.Handle) engine.ContextStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.contexts[h]; ok {
		return c.status
	}
	if e.destroyed[h] > 0 {
		return engine.StatusShutdown
	}
	return engine.StatusError
}

func (e *Engine) AddReceiveCallback(h engine.Handle, subject string, fn engine.ReceiveFunc) status.Code {
	if subject == "" || fn == nil {
		return status.InvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if code := e.fault(OpReceive); code != status.OK {
		return code
	}
	c, code := e.lookup(h)
	if code != status.OK {
		return code
	}
	c.receive[subject] = fn
	return status.OK
}

func (e *Engine) SetAuthenticateCallback(h engine.Handle, fn engine.AAAFunc) status.Code {
	return e.setAAA(h, OpAuthenticate, fn, func(c *nodeCtx) { c.authn = fn })
}

func (e *Engine) SetAuthorizeCallback(h engine.Handle, fn engine.AAAFunc) status.Code {
	return e.setAAA(h, OpAuthorize, fn, func(c *nodeCtx) { c.authz = fn })
}

func (e *Engine) SetAccountingCallback(h engine.Handle, fn engine.AAAFunc) status.Code {
	return e.setAAA(h, OpAccounting, fn, func(c *nodeCtx) { c.acct = fn })
}

func (e *Engine) setAAA(h engine.Handle, op Op, fn engine.AAAFunc, set func(*nodeCtx)) status.Code {
	if fn == nil {
		return status.InvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if code := e.fault(op); code != status.OK {
		return code
	}
	c, code := e.lookup(h)
	if code != status.OK {
		return code
	}
	set(c)
	return status.OK
}

func (e *Engine) StatusText(c status.Code) string {
	return status.Text(c)
}

// callback runs fn as a callback of c on the calling goroutine. It reports
// false without running fn once c is destroyed.
func (e *Engine) callback(c *nodeCtx, fn func()) bool {
	id := goid.Current()
	e.mu.Lock()
	if e.contexts[c.handle] != c {
		e.mu.Unlock()
		return false
	}
	c.inflight[id]++
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if c.inflight[id]--; c.inflight[id] == 0 {
			delete(c.inflight, id)
		}
		e.mu.Unlock()
		e.idle.Broadcast()
	}()
	fn()
	return true
}

// admit runs the AAA callback fn of c on tok. A nil fn admits. A destroyed
// context denies.
func (e *Engine) admit(c *nodeCtx, fn engine.AAAFunc, tok *engine.Token) bool {
	if fn == nil {
		return true
	}
	var ok bool
	e.callback(c, func() { ok = fn(c.handle, tok) })
	return ok
}

// busyElsewhere reports whether a goroutine other than self is inside a
// callback of c. e.mu must be held.
func (c *nodeCtx) busyElsewhere(self uint64) bool {
	for id := range c.inflight {
		if id != self {
			return true
		}
	}
	return false
}

func (c *nodeCtx) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
