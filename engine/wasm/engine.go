package wasm

import (
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/errors"
	"github.com/wippyai/neuropil-go/status"
)

// Guest exports the engine requires.
var requiredExports = []string{
	"np_alloc", "np_free",
	"np_default_settings", "np_new_context", "np_destroy",
	"np_listen", "np_join", "np_run", "np_send",
	"np_new_identity", "np_use_identity",
	"np_get_mx_properties", "np_set_mx_properties",
	"np_has_joined", "np_get_status",
	"np_add_receive_cb", "np_set_authenticate_cb", "np_set_authorize_cb", "np_set_accounting_cb",
}

// runStep bounds a single guest np_run call so other callers are not
// starved while Run waits out its interval.
const runStep = 10 * time.Millisecond

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages caps guest memory in 64KB pages. 0 means the wazero
	// default.
	MemoryLimitPages uint32

	// ModuleName is the instance name of the guest. Defaults to "neuropil".
	ModuleName string
}

// Engine runs a neuropil guest module in wazero.
//
// The guest is single threaded. Calls into it are serialized by mu. A
// host callback runs with mu still held and may call back into the engine
// on its own goroutine; other goroutines wait for the outer call.
type Engine struct {
	runtime wazero.Runtime
	module  api.Module
	log     *zap.Logger
	cbs     *callbacks
	mu      guestLock
}

// New compiles and instantiates the guest in wasmBytes.
func New(ctx context.Context, wasmBytes []byte) (*Engine, error) {
	return NewWithConfig(ctx, wasmBytes, nil)
}

// NewWithConfig is New with explicit configuration.
func NewWithConfig(ctx context.Context, wasmBytes []byte, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	name := "neuropil"
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.ModuleName != "" {
			name = cfg.ModuleName
		}
	}

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	e := &Engine{
		runtime: r,
		log:     engine.Logger().Named("wasm"),
		cbs:     newCallbacks(),
	}

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, multierr.Append(errors.Load("compile guest", err), r.Close(ctx))
	}
	if err := instantiateWASI(ctx, r); err != nil {
		return nil, multierr.Append(errors.Load("instantiate WASI", err), r.Close(ctx))
	}
	if err := e.instantiateHost(ctx); err != nil {
		return nil, multierr.Append(errors.Load("instantiate host module", err), r.Close(ctx))
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_initialize"))
	if err != nil {
		return nil, multierr.Append(errors.Load("instantiate guest", err), r.Close(ctx))
	}
	for _, export := range requiredExports {
		if mod.ExportedFunction(export) == nil {
			return nil, multierr.Append(errors.Load("guest is missing export "+export, nil), r.Close(ctx))
		}
	}
	if mod.Memory() == nil {
		return nil, multierr.Append(errors.Load("guest exports no memory", nil), r.Close(ctx))
	}
	e.module = mod

	e.log.Debug("guest instantiated", zap.String("module", name))
	return e, nil
}

// Close releases the guest and the runtime.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.module != nil {
		err = multierr.Append(err, e.module.Close(ctx))
		e.module = nil
	}
	return multierr.Append(err, e.runtime.Close(ctx))
}

// call invokes a guest export. mu must be held.
func (e *Engine) call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if e.module == nil {
		return nil, fmt.Errorf("engine closed")
	}
	fn := e.module.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("guest export %s not found", name)
	}
	return fn.Call(ctx, params...)
}

// code calls a guest export that returns an np_error.
func (e *Engine) code(ctx context.Context, name string, params ...uint64) status.Code {
	res, err := e.call(ctx, name, params...)
	if err != nil {
		e.log.Error("guest call failed", zap.String("export", name), zap.Error(err))
		return status.UnknownError
	}
	if len(res) == 0 {
		return status.OK
	}
	return status.Code(int32(res[0]))
}

func (e *Engine) newArena(ctx context.Context) *arena {
	return &arena{
		mem: e.module.Memory(),
		alloc: func(size uint32) (uint32, error) {
			res, err := e.call(ctx, "np_alloc", uint64(size))
			if err != nil {
				return 0, err
			}
			if len(res) == 0 || res[0] == 0 {
				return 0, fmt.Errorf("guest allocation of %d bytes failed", size)
			}
			return uint32(res[0]), nil
		},
	}
}

func (e *Engine) release(ctx context.Context, a *arena) {
	for _, s := range a.spans {
		if _, err := e.call(ctx, "np_free", uint64(s.ptr), uint64(s.len)); err != nil {
			e.log.Warn("guest free failed", zap.Uint32("ptr", s.ptr), zap.Error(err))
		}
	}
	a.spans = nil
}

// with runs fn under mu with a fresh arena that is released afterwards.
func (e *Engine) with(fn func(ctx context.Context, a *arena) status.Code) status.Code {
	ctx := context.Background()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.module == nil {
		return status.InvalidOperation
	}
	a := e.newArena(ctx)
	defer e.release(ctx, a)
	return fn(ctx, a)
}

func (e *Engine) encodeFailed(op string, err error) status.Code {
	e.log.Error("encode guest arguments", zap.String("op", op), zap.Error(err))
	return status.UnknownError
}

func (e *Engine) DefaultSettings() (engine.Settings, status.Code) {
	var s engine.Settings
	code := e.with(func(ctx context.Context, a *arena) status.Code {
		out, err := a.zeroed(settingsSize)
		if err != nil {
			return e.encodeFailed("default settings", err)
		}
		if _, err := e.call(ctx, "np_default_settings", uint64(out.ptr)); err != nil {
			e.log.Error("np_default_settings", zap.Error(err))
			return status.UnknownError
		}
		if s, err = decodeSettings(a.mem, out.ptr); err != nil {
			return e.encodeFailed("default settings", err)
		}
		return status.OK
	})
	return s, code
}

func (e *Engine) NewContext(s engine.Settings) (engine.Handle, status.Code) {
	var h engine.Handle
	code := e.with(func(ctx context.Context, a *arena) status.Code {
		in, err := encodeSettings(a, s)
		if err != nil {
			return e.encodeFailed("new context", err)
		}
		res, err := e.call(ctx, "np_new_context", uint64(in.ptr))
		if err != nil {
			e.log.Error("np_new_context", zap.Error(err))
			return status.Startup
		}
		if len(res) == 0 || uint32(res[0]) == 0 {
			return status.Startup
		}
		h = engine.Handle(uint32(res[0]))
		return status.OK
	})
	return h, code
}

func (e *Engine) Destroy(h engine.Handle, graceful bool) status.Code {
	code := e.with(func(ctx context.Context, _ *arena) status.Code {
		return e.code(ctx, "np_destroy", uint64(h), boolParam(graceful))
	})
	e.cbs.drop(h)
	return code
}

func (e *Engine) Listen(h engine.Handle, protocol, host string, port uint16) status.Code {
	return e.with(func(ctx context.Context, a *arena) status.Code {
		p, err := a.string(protocol)
		if err != nil {
			return e.encodeFailed("listen", err)
		}
		hs, err := a.string(host)
		if err != nil {
			return e.encodeFailed("listen", err)
		}
		return e.code(ctx, "np_listen", uint64(h), uint64(p.ptr), uint64(p.len), uint64(hs.ptr), uint64(hs.len), uint64(port))
	})
}

func (e *Engine) Join(h engine.Handle, connect string) status.Code {
	return e.with(func(ctx context.Context, a *arena) status.Code {
		s, err := a.string(connect)
		if err != nil {
			return e.encodeFailed("join", err)
		}
		return e.code(ctx, "np_join", uint64(h), uint64(s.ptr), uint64(s.len))
	})
}

// Run steps the guest until interval has passed or ctx is done. Callbacks
// fire on the calling goroutine.
func (e *Engine) Run(ctx context.Context, h engine.Handle, interval time.Duration) status.Code {
	deadline := time.Now().Add(interval)
	for {
		code := e.with(func(callCtx context.Context, _ *arena) status.Code {
			return e.code(callCtx, "np_run", uint64(h), api.EncodeF64(0))
		})
		if code != status.OK {
			return code
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return status.OK
		}
		timer := time.NewTimer(min(remaining, runStep))
		select {
		case <-ctx.Done():
			timer.Stop()
			return status.OK
		case <-timer.C:
		}
	}
}

func (e *Engine) Send(h engine.Handle, subject string, data []byte) status.Code {
	return e.with(func(ctx context.Context, a *arena) status.Code {
		s, err := a.string(subject)
		if err != nil {
			return e.encodeFailed("send", err)
		}
		d, err := a.bytes(data)
		if err != nil {
			return e.encodeFailed("send", err)
		}
		return e.code(ctx, "np_send", uint64(h), uint64(s.ptr), uint64(s.len), uint64(d.ptr), uint64(d.len))
	})
}

func (e *Engine) NewIdentity(h engine.Handle, expiresAt time.Time, secretKey []byte) (engine.Token, status.Code) {
	var tok engine.Token
	code := e.with(func(ctx context.Context, a *arena) status.Code {
		key, err := a.bytes(secretKey)
		if err != nil {
			return e.encodeFailed("new identity", err)
		}
		out, err := a.zeroed(tokenSize)
		if err != nil {
			return e.encodeFailed("new identity", err)
		}
		code := e.code(ctx, "np_new_identity", uint64(h), api.EncodeF64(toSeconds(expiresAt)), uint64(key.ptr), uint64(key.len), uint64(out.ptr))
		if code != status.OK {
			return code
		}
		t, err := decodeToken(a.mem, out.ptr)
		if err != nil {
			return e.encodeFailed("new identity", err)
		}
		tok = *t
		return status.OK
	})
	return tok, code
}

func (e *Engine) UseIdentity(h engine.Handle, identity engine.Token) status.Code {
	return e.with(func(ctx context.Context, a *arena) status.Code {
		in, err := encodeToken(a, identity)
		if err != nil {
			return e.encodeFailed("use identity", err)
		}
		return e.code(ctx, "np_use_identity", uint64(h), uint64(in.ptr))
	})
}

func (e *Engine) MxProperties(h engine.Handle, subject string) (engine.MxProperties, status.Code) {
	var p engine.MxProperties
	code := e.with(func(ctx context.Context, a *arena) status.Code {
		s, err := a.string(subject)
		if err != nil {
			return e.encodeFailed("get mx properties", err)
		}
		out, err := a.zeroed(mxSize)
		if err != nil {
			return e.encodeFailed("get mx properties", err)
		}
		code := e.code(ctx, "np_get_mx_properties", uint64(h), uint64(s.ptr), uint64(s.len), uint64(out.ptr))
		if code != status.OK {
			return code
		}
		if p, err = decodeMx(a.mem, out.ptr); err != nil {
			return e.encodeFailed("get mx properties", err)
		}
		return status.OK
	})
	return p, code
}

func (e *Engine) SetMxProperties(h engine.Handle, subject string, p engine.MxProperties) status.Code {
	return e.with(func(ctx context.Context, a *arena) status.Code {
		s, err := a.string(subject)
		if err != nil {
			return e.encodeFailed("set mx properties", err)
		}
		in, err := encodeMx(a, p)
		if err != nil {
			return e.encodeFailed("set mx properties", err)
		}
		return e.code(ctx, "np_set_mx_properties", uint64(h), uint64(s.ptr), uint64(s.len), uint64(in.ptr))
	})
}

func (e *Engine) HasJoined(h engine.Handle) bool {
	var joined bool
	e.with(func(ctx context.Context, _ *arena) status.Code {
		res, err := e.call(ctx, "np_has_joined", uint64(h))
		joined = err == nil && len(res) > 0 && res[0] != 0
		return status.OK
	})
	return joined
}

func (e *Engine) Status(h engine.Handle) engine.ContextStatus {
	st := engine.StatusError
	e.with(func(ctx context.Context, _ *arena) status.Code {
		res, err := e.call(ctx, "np_get_status", uint64(h))
		if err == nil && len(res) > 0 {
			st = engine.ContextStatus(int32(res[0]))
		}
		return status.OK
	})
	return st
}

func (e *Engine) AddReceiveCallback(h engine.Handle, subject string, fn engine.ReceiveFunc) status.Code {
	code := e.with(func(ctx context.Context, a *arena) status.Code {
		s, err := a.string(subject)
		if err != nil {
			return e.encodeFailed("add receive callback", err)
		}
		return e.code(ctx, "np_add_receive_cb", uint64(h), uint64(s.ptr), uint64(s.len))
	})
	if code == status.OK {
		e.cbs.setReceive(h, subject, fn)
	}
	return code
}

func (e *Engine) SetAuthenticateCallback(h engine.Handle, fn engine.AAAFunc) status.Code {
	return e.setAAA(h, seatAuthenticate, "np_set_authenticate_cb", fn)
}

func (e *Engine) SetAuthorizeCallback(h engine.Handle, fn engine.AAAFunc) status.Code {
	return e.setAAA(h, seatAuthorize, "np_set_authorize_cb", fn)
}

func (e *Engine) SetAccountingCallback(h engine.Handle, fn engine.AAAFunc) status.Code {
	return e.setAAA(h, seatAccounting, "np_set_accounting_cb", fn)
}

func (e *Engine) setAAA(h engine.Handle, seat int, export string, fn engine.AAAFunc) status.Code {
	code := e.with(func(ctx context.Context, _ *arena) status.Code {
		return e.code(ctx, export, uint64(h))
	})
	if code == status.OK {
		e.cbs.setAAA(h, seat, fn)
	}
	return code
}

// StatusText asks the guest for its message when it exports np_error_str.
func (e *Engine) StatusText(c status.Code) string {
	text := status.Text(c)
	e.with(func(ctx context.Context, _ *arena) status.Code {
		if e.module.ExportedFunction("np_error_str") == nil {
			return status.OK
		}
		res, err := e.call(ctx, "np_error_str", uint64(uint32(int32(c))))
		if err != nil || len(res) == 0 || res[0] == 0 {
			return status.OK
		}
		if s := readCString(e.module.Memory(), uint32(res[0]), 256); s != "" {
			text = s
		}
		return status.OK
	})
	return text
}

func boolParam(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
