package node

import (
	"go.uber.org/zap"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/errors"
)

// The trampolines are the only functions handed to the engine. They carry
// no state of their own; the handle argument selects the Node.

func receiveTrampoline(h engine.Handle, msg *engine.Message) bool {
	resolve(errors.PhaseDispatch, h).dispatch(msg)
	return true
}

func authenticateTrampoline(h engine.Handle, token *engine.Token) bool {
	return resolve(errors.PhaseDecision, h).decide(SeatAuthenticate, token)
}

func authorizeTrampoline(h engine.Handle, token *engine.Token) bool {
	return resolve(errors.PhaseDecision, h).decide(SeatAuthorize, token)
}

func accountingTrampoline(h engine.Handle, token *engine.Token) bool {
	return resolve(errors.PhaseDecision, h).decide(SeatAccounting, token)
}

// resolve panics on a handle that has no live Node. The engine only calls
// back on contexts it created for us, so this is a broken invariant.
func resolve(phase errors.Phase, h engine.Handle) *Node {
	n, err := nodes.Resolve(h)
	if err != nil {
		err = errors.UnknownHandle(phase, h)
		Logger().Error("callback for unknown context", zap.Uint64("handle", uint64(h)), zap.Error(err))
		panic(err)
	}
	return n
}
