package loopback

import (
	"github.com/wippyai/neuropil-go/engine"
)

// Deliver invokes the subject trampoline installed on h for subject, on the
// calling goroutine, as the engine does for an inbound message. installed
// is false when no trampoline is installed for subject.
func (e *Engine) Deliver(h engine.Handle, subject string, data []byte) (delivered, installed bool) {
	e.mu.Lock()
	c, ok := e.contexts[h]
	var fn engine.ReceiveFunc
	if ok {
		fn = c.receive[subject]
	}
	e.mu.Unlock()

	if fn == nil {
		return false, false
	}
	installed = e.callback(c, func() { delivered = fn(h, newMessage(engine.ID{}, subject, data)) })
	return delivered, installed
}

// Authenticate invokes the authenticate trampoline installed on h.
func (e *Engine) Authenticate(h engine.Handle, token *engine.Token) (decision, installed bool) {
	return e.decide(h, token, func(c *nodeCtx) engine.AAAFunc { return c.authn })
}

// Authorize invokes the authorize trampoline installed on h.
func (e *Engine) Authorize(h engine.Handle, token *engine.Token) (decision, installed bool) {
	return e.decide(h, token, func(c *nodeCtx) engine.AAAFunc { return c.authz })
}

// Account invokes the accounting trampoline installed on h.
func (e *Engine) Account(h engine.Handle, token *engine.Token) (decision, installed bool) {
	return e.decide(h, token, func(c *nodeCtx) engine.AAAFunc { return c.acct })
}

func (e *Engine) decide(h engine.Handle, token *engine.Token, seat func(*nodeCtx) engine.AAAFunc) (bool, bool) {
	e.mu.Lock()
	c, ok := e.contexts[h]
	var fn engine.AAAFunc
	if ok {
		fn = seat(c)
	}
	e.mu.Unlock()

	if fn == nil {
		return false, false
	}
	var decision bool
	installed := e.callback(c, func() { decision = fn(h, token) })
	return decision, installed
}

// Identity returns the identity h currently uses.
func (e *Engine) Identity(h engine.Handle) (engine.Token, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.contexts[h]
	if !ok {
		return engine.Token{}, false
	}
	return c.identity, true
}
