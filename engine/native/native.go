//go:build neuropil && cgo

package native

/*
#cgo LDFLAGS: -lneuropil
#include <stdbool.h>
#include <stdlib.h>
#include <string.h>
#include <neuropil.h>

extern bool npGoReceive(np_context* ac, struct np_message* msg);
extern bool npGoAuthenticate(np_context* ac, struct np_token* tok);
extern bool npGoAuthorize(np_context* ac, struct np_token* tok);
extern bool npGoAccounting(np_context* ac, struct np_token* tok);

static const char* np_go_error_str(int code) {
	return np_error_str[code];
}
*/
import "C"

import (
	"context"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/status"
)

// Available reports whether the binary was built with the native backend.
const Available = true

const (
	seatAuthenticate = iota
	seatAuthorize
	seatAccounting
	seatCount
)

// runStep bounds one np_run call so Run can observe cancellation.
const runStep = 10 * time.Millisecond

// table holds the live contexts and the Go callbacks installed on them.
// libneuropil only ever hands back the context pointer, so the exported
// trampolines below resolve everything through it.
var table = struct {
	ctxs    map[engine.Handle]unsafe.Pointer
	receive map[engine.Handle]map[string]engine.ReceiveFunc
	aaa     map[engine.Handle]*[seatCount]engine.AAAFunc
	mu      sync.RWMutex
}{
	ctxs:    make(map[engine.Handle]unsafe.Pointer),
	receive: make(map[engine.Handle]map[string]engine.ReceiveFunc),
	aaa:     make(map[engine.Handle]*[seatCount]engine.AAAFunc),
}

// Engine calls libneuropil directly. libneuropil is thread safe per
// context, so Engine holds no lock of its own around calls.
type Engine struct {
	log *zap.Logger
}

// New returns the native engine.
func New() (engine.Engine, error) {
	return &Engine{log: engine.Logger().Named("native")}, nil
}

func lookup(h engine.Handle) (unsafe.Pointer, bool) {
	table.mu.RLock()
	defer table.mu.RUnlock()
	ac, ok := table.ctxs[h]
	return ac, ok
}

func handleOf(ac unsafe.Pointer) engine.Handle {
	return engine.Handle(uintptr(ac))
}

// cstring reads a possibly unterminated fixed-size char array.
func cstring(p *C.char, size int) string {
	b := unsafe.Slice((*byte)(unsafe.Pointer(p)), size)
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// putCString copies s into a fixed-size char array, truncating to keep the
// terminator.
func putCString(dst *C.char, size int, s string) {
	b := unsafe.Slice((*byte)(unsafe.Pointer(dst)), size)
	n := copy(b[:size-1], s)
	b[n] = 0
}

func toSeconds(t time.Time) C.double {
	if t.IsZero() {
		return 0
	}
	return C.double(float64(t.UnixNano()) / 1e9)
}

func fromSeconds(s C.double) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(float64(s)*1e9))
}

func (e *Engine) DefaultSettings() (engine.Settings, status.Code) {
	var cs C.struct_np_settings
	C.np_default_settings(&cs)
	return engine.Settings{
		Threads:       uint32(cs.n_threads),
		LogFile:       cstring(&cs.log_file[0], len(cs.log_file)),
		LogLevel:      uint32(cs.log_level),
		LeafsetSize:   uint16(cs.leafset_size),
		JobqueueSize:  uint16(cs.jobqueue_size),
		MaxMsgsPerSec: uint16(cs.max_msgs_per_sec),
	}, status.OK
}

func (e *Engine) NewContext(s engine.Settings) (engine.Handle, status.Code) {
	var cs C.struct_np_settings
	C.np_default_settings(&cs)
	cs.n_threads = C.uint32_t(s.Threads)
	cs.log_level = C.uint32_t(s.LogLevel)
	cs.leafset_size = C.uint16_t(s.LeafsetSize)
	cs.jobqueue_size = C.uint16_t(s.JobqueueSize)
	cs.max_msgs_per_sec = C.uint16_t(s.MaxMsgsPerSec)
	putCString(&cs.log_file[0], len(cs.log_file), s.LogFile)

	ac := C.np_new_context(&cs)
	if ac == nil {
		return 0, status.Startup
	}
	h := handleOf(ac)

	table.mu.Lock()
	table.ctxs[h] = ac
	table.mu.Unlock()
	e.log.Debug("context created", zap.Uint64("handle", uint64(h)))
	return h, status.OK
}

func (e *Engine) Destroy(h engine.Handle, graceful bool) status.Code {
	table.mu.Lock()
	ac, ok := table.ctxs[h]
	delete(table.ctxs, h)
	delete(table.receive, h)
	delete(table.aaa, h)
	table.mu.Unlock()
	if !ok {
		return status.InvalidArgument
	}
	C.np_destroy(ac, C.bool(graceful))
	return status.OK
}

func (e *Engine) Listen(h engine.Handle, protocol, host string, port uint16) status.Code {
	ac, ok := lookup(h)
	if !ok {
		return status.InvalidArgument
	}
	cproto := C.CString(protocol)
	defer C.free(unsafe.Pointer(cproto))
	chost := C.CString(host)
	defer C.free(unsafe.Pointer(chost))
	return status.Code(C.np_listen(ac, cproto, chost, C.uint16_t(port)))
}

func (e *Engine) Join(h engine.Handle, connect string) status.Code {
	ac, ok := lookup(h)
	if !ok {
		return status.InvalidArgument
	}
	cconn := C.CString(connect)
	defer C.free(unsafe.Pointer(cconn))
	return status.Code(C.np_join(ac, cconn))
}

func (e *Engine) Run(ctx context.Context, h engine.Handle, interval time.Duration) status.Code {
	ac, ok := lookup(h)
	if !ok {
		return status.InvalidArgument
	}
	if interval <= 0 {
		return status.Code(C.np_run(ac, 0))
	}
	deadline := time.Now().Add(interval)
	for {
		if ctx.Err() != nil {
			return status.OK
		}
		step := min(runStep, time.Until(deadline))
		if step <= 0 {
			return status.OK
		}
		if code := status.Code(C.np_run(ac, C.double(step.Seconds()))); code != status.OK {
			return code
		}
	}
}

func (e *Engine) Send(h engine.Handle, subject string, data []byte) status.Code {
	ac, ok := lookup(h)
	if !ok {
		return status.InvalidArgument
	}
	csub := C.CString(subject)
	defer C.free(unsafe.Pointer(csub))
	var buf unsafe.Pointer
	if len(data) > 0 {
		buf = C.CBytes(data)
		defer C.free(buf)
	}
	return status.Code(C.np_send(ac, csub, (*C.uchar)(buf), C.size_t(len(data))))
}

func (e *Engine) NewIdentity(h engine.Handle, expiresAt time.Time, secretKey []byte) (engine.Token, status.Code) {
	ac, ok := lookup(h)
	if !ok {
		return engine.Token{}, status.InvalidArgument
	}
	var key *[C.NP_SECRET_KEY_BYTES]C.uchar
	if len(secretKey) > 0 {
		if len(secretKey) != C.NP_SECRET_KEY_BYTES {
			return engine.Token{}, status.InvalidArgument
		}
		key = (*[C.NP_SECRET_KEY_BYTES]C.uchar)(C.CBytes(secretKey))
		defer C.free(unsafe.Pointer(key))
	}
	tok := C.np_new_identity(ac, toSeconds(expiresAt), key)
	return goToken(&tok), status.OK
}

func (e *Engine) UseIdentity(h engine.Handle, identity engine.Token) status.Code {
	ac, ok := lookup(h)
	if !ok {
		return status.InvalidArgument
	}
	var tok C.struct_np_token
	putCString(&tok.uuid[0], len(tok.uuid), identity.UUID)
	putCString(&tok.realm[0], len(tok.realm), identity.Realm)
	putCString(&tok.issuer[0], len(tok.issuer), identity.Issuer)
	putCString(&tok.subject[0], len(tok.subject), identity.Subject)
	putCString(&tok.audience[0], len(tok.audience), identity.Audience)
	tok.issued_at = toSeconds(identity.IssuedAt)
	tok.not_before = toSeconds(identity.NotBefore)
	tok.expires_at = toSeconds(identity.ExpiresAt)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&tok.public_key[0])), len(tok.public_key)), identity.PublicKey)
	return status.Code(C.np_use_identity(ac, tok))
}

func (e *Engine) MxProperties(h engine.Handle, subject string) (engine.MxProperties, status.Code) {
	ac, ok := lookup(h)
	if !ok {
		return engine.MxProperties{}, status.InvalidArgument
	}
	csub := C.CString(subject)
	defer C.free(unsafe.Pointer(csub))
	p := C.np_get_mx_properties(ac, csub)
	if p == nil {
		return engine.MxProperties{}, status.KeyNotFound
	}
	return engine.MxProperties{
		ReplySubject:      cstring(&p.reply_subject[0], len(p.reply_subject)),
		Role:              engine.MxRole(p.role),
		AckMode:           engine.AckMode(p.ackmode),
		CachePolicy:       engine.CachePolicy(p.cache_policy),
		CacheSize:         uint16(p.cache_size),
		MaxParallel:       uint8(p.max_parallel),
		MaxRetry:          uint8(p.max_retry),
		IntentTTL:         time.Duration(float64(p.intent_ttl) * float64(time.Second)),
		IntentUpdateAfter: time.Duration(float64(p.intent_update_after) * float64(time.Second)),
		MessageTTL:        time.Duration(float64(p.message_ttl) * float64(time.Second)),
	}, status.OK
}

func (e *Engine) SetMxProperties(h engine.Handle, subject string, p engine.MxProperties) status.Code {
	ac, ok := lookup(h)
	if !ok {
		return status.InvalidArgument
	}
	csub := C.CString(subject)
	defer C.free(unsafe.Pointer(csub))

	var cp C.struct_np_mx_properties
	putCString(&cp.reply_subject[0], len(cp.reply_subject), p.ReplySubject)
	cp.role = C.enum_np_mx_role(p.Role)
	cp.ackmode = C.enum_np_mx_ackmode(p.AckMode)
	cp.cache_policy = C.enum_np_mx_cache_policy(p.CachePolicy)
	cp.cache_size = C.uint16_t(p.CacheSize)
	cp.max_parallel = C.uint8_t(p.MaxParallel)
	cp.max_retry = C.uint8_t(p.MaxRetry)
	cp.intent_ttl = C.double(p.IntentTTL.Seconds())
	cp.intent_update_after = C.double(p.IntentUpdateAfter.Seconds())
	cp.message_ttl = C.double(p.MessageTTL.Seconds())
	return status.Code(C.np_set_mx_properties(ac, csub, cp))
}

func (e *Engine) HasJoined(h engine.Handle) bool {
	ac, ok := lookup(h)
	if !ok {
		return false
	}
	return bool(C.np_has_joined(ac))
}

func (e *Engine) Status(h engine.Handle) engine.ContextStatus {
	ac, ok := lookup(h)
	if !ok {
		return engine.StatusShutdown
	}
	return engine.ContextStatus(C.np_get_status(ac))
}

func (e *Engine) AddReceiveCallback(h engine.Handle, subject string, fn engine.ReceiveFunc) status.Code {
	ac, ok := lookup(h)
	if !ok {
		return status.InvalidArgument
	}
	csub := C.CString(subject)
	defer C.free(unsafe.Pointer(csub))
	code := status.Code(C.np_add_receive_cb(ac, csub, C.np_receive_callback(C.npGoReceive)))
	if code != status.OK {
		return code
	}

	table.mu.Lock()
	m, ok := table.receive[h]
	if !ok {
		m = make(map[string]engine.ReceiveFunc)
		table.receive[h] = m
	}
	m[subject] = fn
	table.mu.Unlock()
	return status.OK
}

func (e *Engine) SetAuthenticateCallback(h engine.Handle, fn engine.AAAFunc) status.Code {
	return setAAA(h, seatAuthenticate, fn)
}

func (e *Engine) SetAuthorizeCallback(h engine.Handle, fn engine.AAAFunc) status.Code {
	return setAAA(h, seatAuthorize, fn)
}

func (e *Engine) SetAccountingCallback(h engine.Handle, fn engine.AAAFunc) status.Code {
	return setAAA(h, seatAccounting, fn)
}

func setAAA(h engine.Handle, seat int, fn engine.AAAFunc) status.Code {
	ac, ok := lookup(h)
	if !ok {
		return status.InvalidArgument
	}
	var code C.enum_np_return
	switch seat {
	case seatAuthenticate:
		code = C.np_set_authenticate_cb(ac, C.np_aaa_callback(C.npGoAuthenticate))
	case seatAuthorize:
		code = C.np_set_authorize_cb(ac, C.np_aaa_callback(C.npGoAuthorize))
	case seatAccounting:
		code = C.np_set_accounting_cb(ac, C.np_aaa_callback(C.npGoAccounting))
	}
	if status.Code(code) != status.OK {
		return status.Code(code)
	}

	table.mu.Lock()
	seats, ok := table.aaa[h]
	if !ok {
		seats = new([seatCount]engine.AAAFunc)
		table.aaa[h] = seats
	}
	seats[seat] = fn
	table.mu.Unlock()
	return status.OK
}

func (e *Engine) StatusText(c status.Code) string {
	if c < 0 || int(c) >= len(status.Codes()) {
		return status.Text(c)
	}
	return C.GoString(C.np_go_error_str(C.int(c)))
}

func goToken(t *C.struct_np_token) engine.Token {
	return engine.Token{
		UUID:      cstring(&t.uuid[0], len(t.uuid)),
		Realm:     cstring(&t.realm[0], len(t.realm)),
		Issuer:    cstring(&t.issuer[0], len(t.issuer)),
		Subject:   cstring(&t.subject[0], len(t.subject)),
		Audience:  cstring(&t.audience[0], len(t.audience)),
		IssuedAt:  fromSeconds(t.issued_at),
		NotBefore: fromSeconds(t.not_before),
		ExpiresAt: fromSeconds(t.expires_at),
		PublicKey: C.GoBytes(unsafe.Pointer(&t.public_key[0]), C.int(len(t.public_key))),
	}
}
