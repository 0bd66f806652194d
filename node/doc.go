// Package node is the Go façade over a neuropil engine context.
//
// A Node owns exactly one engine context. It exposes the engine's outbound
// calls as methods, multiplexes subject deliveries to any number of Go
// handlers and holds the three AAA decision seats:
//
//	n, err := node.New(loopback.New())
//	if err != nil {
//	    return err
//	}
//	defer n.Shutdown(true)
//
//	n.Subscribe("ping", func(n *node.Node, msg *engine.Message) error {
//	    _, err := n.Send("pong", msg.Data)
//	    return err
//	})
//
//	n.SetAuthorizePolicy(func(n *node.Node, tok *engine.Token) (bool, error) {
//	    return tok.Subject == "ping", nil
//	})
//
// # Callbacks
//
// The engine invokes Go code through package-level trampolines that know
// nothing but the context handle. The handle is resolved to its Node
// through a process-wide registry that never keeps a Node alive.
//
// Handlers for a subject run in registration order. A handler failure or
// panic is logged and reported to the error handler installed with
// WithErrorHandler; it never reaches the engine, and the delivery is
// always acknowledged.
//
// A policy failure or panic is a deny.
//
// # Errors
//
// By default a failing engine call returns its status.Code together with
// an *errors.Error of kind KindEngine. With WithRaiseOnError(false) the
// error is nil and the caller inspects the code.
//
// # Lifecycle
//
// The engine context is destroyed exactly once: by Shutdown, or by the
// garbage collector once the Node is unreachable.
package node
