//go:build neuropil && cgo

package native

/*
#include <stdbool.h>
#include <neuropil.h>
*/
import "C"

import (
	"unsafe"

	"github.com/wippyai/neuropil-go/engine"
)

// libneuropil calls these with the raw context pointer. They live apart
// from native.go because a cgo file with //export may only declare C
// functions in its preamble.

//export npGoReceive
func npGoReceive(ac unsafe.Pointer, msg *C.struct_np_message) C.bool {
	h := handleOf(ac)
	m := &engine.Message{
		UUID:       cstring(&msg.uuid[0], len(msg.uuid)),
		Subject:    cstring(&msg.subject[0], len(msg.subject)),
		ReceivedAt: fromSeconds(msg.received_at),
	}
	if msg.data_length > 0 {
		m.Data = C.GoBytes(unsafe.Pointer(msg.data), C.int(msg.data_length))
	}
	copy(m.From[:], unsafe.Slice((*byte)(unsafe.Pointer(&msg.from[0])), len(m.From)))

	table.mu.RLock()
	fn := table.receive[h][m.Subject]
	table.mu.RUnlock()
	if fn == nil {
		return C.bool(false)
	}
	return C.bool(fn(h, m))
}

func decide(ac unsafe.Pointer, tok *C.struct_np_token, seat int) C.bool {
	h := handleOf(ac)
	table.mu.RLock()
	var fn engine.AAAFunc
	if seats, ok := table.aaa[h]; ok {
		fn = seats[seat]
	}
	table.mu.RUnlock()
	if fn == nil {
		return C.bool(true)
	}
	t := goToken(tok)
	return C.bool(fn(h, &t))
}

//export npGoAuthenticate
func npGoAuthenticate(ac unsafe.Pointer, tok *C.struct_np_token) C.bool {
	return decide(ac, tok, seatAuthenticate)
}

//export npGoAuthorize
func npGoAuthorize(ac unsafe.Pointer, tok *C.struct_np_token) C.bool {
	return decide(ac, tok, seatAuthorize)
}

//export npGoAccounting
func npGoAccounting(ac unsafe.Pointer, tok *C.struct_np_token) C.bool {
	return decide(ac, tok, seatAccounting)
}
