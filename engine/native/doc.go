// Package native binds the engine interface to libneuropil through cgo.
//
// The binding is only compiled with the neuropil build tag:
//
//	go build -tags neuropil ./...
//
// It expects neuropil.h on the include path and links with -lneuropil.
// Without the tag New reports an unsupported error so that callers can
// fall back to another backend.
//
// libneuropil invokes callbacks with the raw context pointer. That pointer
// is the engine.Handle, and the Go side keeps its own subject and seat
// tables keyed by it, so no Go pointer is ever handed to C.
package native
