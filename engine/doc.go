// Package engine defines the boundary between neuropil-go and a neuropil
// messaging engine.
//
// The engine owns contexts, routing, transport and the AAA decision points.
// This package describes only the narrow, C-ABI-shaped surface the façade
// calls and the trampoline signatures the engine calls back:
//
//	Engine       - outbound calls (create, destroy, listen, join, run, send, ...)
//	ReceiveFunc  - inbound subject delivery trampoline
//	AAAFunc      - inbound authenticate/authorize/account trampoline
//
// Trampolines receive the raw Handle and nothing else that identifies the
// caller. Resolving the handle back to a Go value is the caller's job (see
// package registry); the engine never holds Go objects.
//
// # Backends
//
//	engine/loopback  - in-process Go engine, used by tests and demos
//	engine/wasm      - engine compiled to WebAssembly, hosted by wazero
//	engine/native    - cgo binding to libneuropil (build tag "neuropil")
//
// # Handles
//
// Handle 0 is reserved and always invalid. A backend must never hand out
// the same handle for two live contexts.
package engine
