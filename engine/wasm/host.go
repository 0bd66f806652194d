package wasm

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/neuropil-go/engine"
)

// HostModule is the import module name of the guest's callbacks.
const HostModule = "np_host"

const (
	seatAuthenticate = iota
	seatAuthorize
	seatAccounting
	seatCount
)

var seatNames = [seatCount]string{"authenticate", "authorize", "accounting"}

// callbacks maps guest contexts to the Go trampolines installed on them.
type callbacks struct {
	receive map[engine.Handle]map[string]engine.ReceiveFunc
	aaa     map[engine.Handle]*[seatCount]engine.AAAFunc
	mu      sync.RWMutex
}

func newCallbacks() *callbacks {
	return &callbacks{
		receive: make(map[engine.Handle]map[string]engine.ReceiveFunc),
		aaa:     make(map[engine.Handle]*[seatCount]engine.AAAFunc),
	}
}

func (c *callbacks) setReceive(h engine.Handle, subject string, fn engine.ReceiveFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.receive[h]
	if !ok {
		m = make(map[string]engine.ReceiveFunc)
		c.receive[h] = m
	}
	m[subject] = fn
}

func (c *callbacks) setAAA(h engine.Handle, seat int, fn engine.AAAFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seats, ok := c.aaa[h]
	if !ok {
		seats = new([seatCount]engine.AAAFunc)
		c.aaa[h] = seats
	}
	seats[seat] = fn
}

func (c *callbacks) receiver(h engine.Handle, subject string) engine.ReceiveFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.receive[h][subject]
}

func (c *callbacks) decider(h engine.Handle, seat int) engine.AAAFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if seats, ok := c.aaa[h]; ok {
		return seats[seat]
	}
	return nil
}

func (c *callbacks) drop(h engine.Handle) {
	c.mu.Lock()
	delete(c.receive, h)
	delete(c.aaa, h)
	c.mu.Unlock()
}

// instantiateHost builds the np_host module:
//
//	receive(ctx i32, msg i32) -> i32
//	authenticate(ctx i32, token i32) -> i32
//	authorize(ctx i32, token i32) -> i32
//	accounting(ctx i32, token i32) -> i32
func (e *Engine) instantiateHost(ctx context.Context) error {
	i32 := api.ValueTypeI32
	builder := e.runtime.NewHostModuleBuilder(HostModule)

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.hostReceive), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("receive")

	for seat := range seatCount {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = e.hostDecide(mod, seat, stack)
			}), []api.ValueType{i32, i32}, []api.ValueType{i32}).
			Export(seatNames[seat])
	}

	_, err := builder.Instantiate(ctx)
	return err
}

func (e *Engine) hostReceive(_ context.Context, mod api.Module, stack []uint64) {
	h := engine.Handle(api.DecodeU32(stack[0]))
	msg, err := decodeMessage(mod.Memory(), api.DecodeU32(stack[1]))
	if err != nil {
		e.log.Error("decode message from guest", zap.Uint64("handle", uint64(h)), zap.Error(err))
		stack[0] = 0
		return
	}

	fn := e.cbs.receiver(h, msg.Subject)
	if fn == nil {
		e.log.Debug("no receiver for subject", zap.Uint64("handle", uint64(h)), zap.String("subject", msg.Subject))
		stack[0] = 0
		return
	}
	stack[0] = boolParam(fn(h, msg))
}

func (e *Engine) hostDecide(mod api.Module, seat int, stack []uint64) uint64 {
	h := engine.Handle(api.DecodeU32(stack[0]))
	tok, err := decodeToken(mod.Memory(), api.DecodeU32(stack[1]))
	if err != nil {
		e.log.Error("decode token from guest", zap.Uint64("handle", uint64(h)), zap.Error(err))
		return 0
	}

	fn := e.cbs.decider(h, seat)
	if fn == nil {
		return 1
	}
	return boolParam(fn(h, tok))
}
