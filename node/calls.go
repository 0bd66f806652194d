package node

import (
	"context"
	"time"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/errors"
	"github.com/wippyai/neuropil-go/status"
)

// Listen binds the context to protocol://host:port.
func (n *Node) Listen(protocol, host string, port uint16) (status.Code, error) {
	if n.Destroyed() {
		return n.destroyedErr(errors.PhaseCall, "listen")
	}
	return n.settle(n.eng.Listen(n.life.handle, protocol, host, port), errors.PhaseCall, "listen")
}

// Join queues a connection to the node described by connect.
func (n *Node) Join(connect string) (status.Code, error) {
	if n.Destroyed() {
		return n.destroyedErr(errors.PhaseCall, "join")
	}
	return n.settle(n.eng.Join(n.life.handle, connect), errors.PhaseCall, "join")
}

// Run lets the engine work for up to interval. Callbacks fire on the
// calling goroutine or on engine threads, depending on the backend.
func (n *Node) Run(ctx context.Context, interval time.Duration) (status.Code, error) {
	if n.Destroyed() {
		return n.destroyedErr(errors.PhaseCall, "run")
	}
	return n.settle(n.eng.Run(ctx, n.life.handle, interval), errors.PhaseCall, "run")
}

// Send publishes data on subject.
func (n *Node) Send(subject string, data []byte) (status.Code, error) {
	if n.Destroyed() {
		return n.destroyedErr(errors.PhaseCall, "send")
	}
	code := n.eng.Send(n.life.handle, subject, data)
	if code == status.OK {
		n.stats.sent.Add(1)
	}
	return n.settle(code, errors.PhaseCall, "send")
}

// NewIdentity creates an identity token. A nil secretKey lets the engine
// generate a key pair.
func (n *Node) NewIdentity(expiresAt time.Time, secretKey []byte) (engine.Token, status.Code, error) {
	if n.Destroyed() {
		code, err := n.destroyedErr(errors.PhaseCall, "new identity")
		return engine.Token{}, code, err
	}
	tok, code := n.eng.NewIdentity(n.life.handle, expiresAt, secretKey)
	code, err := n.settle(code, errors.PhaseCall, "new identity")
	return tok, code, err
}

func (n *Node) UseIdentity(id engine.Token) (status.Code, error) {
	if n.Destroyed() {
		return n.destroyedErr(errors.PhaseCall, "use identity")
	}
	return n.settle(n.eng.UseIdentity(n.life.handle, id), errors.PhaseCall, "use identity")
}

// MxProperties returns the exchange properties of subject.
func (n *Node) MxProperties(subject string) (engine.MxProperties, status.Code, error) {
	if n.Destroyed() {
		code, err := n.destroyedErr(errors.PhaseCall, "get mx properties")
		return engine.MxProperties{}, code, err
	}
	p, code := n.eng.MxProperties(n.life.handle, subject)
	code, err := n.settle(code, errors.PhaseCall, "get mx properties")
	return p, code, err
}

func (n *Node) SetMxProperties(subject string, p engine.MxProperties) (status.Code, error) {
	if n.Destroyed() {
		return n.destroyedErr(errors.PhaseCall, "set mx properties")
	}
	return n.settle(n.eng.SetMxProperties(n.life.handle, subject, p), errors.PhaseCall, "set mx properties")
}

// HasJoined reports whether at least one peer connection is established.
func (n *Node) HasJoined() bool {
	if n.Destroyed() {
		return false
	}
	return n.eng.HasJoined(n.life.handle)
}

// Status returns the engine's view of the context.
func (n *Node) Status() engine.ContextStatus {
	if n.Destroyed() {
		return engine.StatusShutdown
	}
	return n.eng.Status(n.life.handle)
}
