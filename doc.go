// Package neuropil is a Go façade over the neuropil messaging engine.
//
// A neuropil engine speaks a handle-based API: contexts are opaque
// pointers, every call returns a numeric status and inbound traffic
// arrives through plain function callbacks. This module turns that into
// ordinary Go values with explicit lifetimes and error returns.
//
// # Architecture Overview
//
//	neuropil/
//	├── node/            Node: one engine context, its subjects and AAA seats
//	├── registry/        Handle to Node lookup used by the callback trampolines
//	├── status/          Status code table and outcome translation
//	├── errors/          Structured error types
//	├── engine/          The engine interface and shared data types
//	│   ├── loopback/    In-process engine for tests and single binary setups
//	│   ├── wasm/        libneuropil compiled to WebAssembly, hosted in wazero
//	│   └── native/      libneuropil through cgo (build tag neuropil)
//	├── policy/          YAML AAA rules with hot reload
//	├── config/          npnode configuration from YAML and NP_* variables
//	└── cmd/npnode/      Command line node with an interactive dashboard
//
// # Quick Start
//
//	n, err := node.New(loopback.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer n.Shutdown(true)
//
//	n.Subscribe("ping", func(n *node.Node, msg *engine.Message) error {
//	    _, err := n.Send("pong", msg.Data)
//	    return err
//	})
//	n.Listen("udp4", "localhost", 3141)
//	for ctx.Err() == nil {
//	    n.Run(ctx, 100*time.Millisecond)
//	}
//
// # Lifetimes
//
// A context is destroyed exactly once: by Shutdown, or by the garbage
// collector when an abandoned Node becomes unreachable. Calls on a
// destroyed Node never reach the engine.
//
// # Thread Safety
//
// Node is safe for concurrent use. Subject handlers and AAA policies run
// on whichever goroutine drives the engine, usually the one calling Run,
// and may call back into the Node.
package neuropil
