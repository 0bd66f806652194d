// Package wasm hosts a neuropil engine compiled to WebAssembly.
//
// The guest is a wasm32-wasi build of libneuropil with a thin export layer.
// It must export its memory, np_alloc(size) and np_free(ptr, size), and the
// engine calls under their C names (np_new_context, np_listen, np_send and
// so on). Strings and byte slices are passed as (ptr, len) pairs in guest
// memory; settings, tokens, messages and mx properties use the fixed
// layouts in abi.go.
//
// Callbacks are imported by the guest from the "np_host" module:
//
//	(import "np_host" "receive"      (func (param i32 i32) (result i32)))
//	(import "np_host" "authenticate" (func (param i32 i32) (result i32)))
//	(import "np_host" "authorize"    (func (param i32 i32) (result i32)))
//	(import "np_host" "accounting"   (func (param i32 i32) (result i32)))
//
// The first parameter is the guest's context pointer, which doubles as the
// engine.Handle. The second points at a message or token.
package wasm
