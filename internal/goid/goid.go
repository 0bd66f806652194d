// Package goid identifies the calling goroutine.
//
// The engines use it to tell a callback calling back into the engine on
// its own goroutine apart from an unrelated caller.
package goid

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

var prefix = []byte("goroutine ")

var bufs = sync.Pool{
	New: func() any {
		b := make([]byte, 64)
		return &b
	},
}

// Current returns the id of the calling goroutine.
func Current() uint64 {
	bp := bufs.Get().(*[]byte)
	defer bufs.Put(bp)

	b := *bp
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, prefix)
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		panic("goid: cannot parse goroutine id from " + strconv.Quote(string(b)))
	}
	return id
}
