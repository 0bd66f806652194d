package node

import (
	"go.uber.org/zap"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/errors"
	"github.com/wippyai/neuropil-go/status"
)

// Seat names one of the three AAA decision points.
type Seat int

const (
	SeatAuthenticate Seat = iota
	SeatAuthorize
	SeatAccounting
	seatCount
)

func (s Seat) String() string {
	switch s {
	case SeatAuthenticate:
		return "authenticate"
	case SeatAuthorize:
		return "authorize"
	case SeatAccounting:
		return "accounting"
	default:
		return "unknown"
	}
}

// Seats lists every seat in engine order.
func Seats() []Seat {
	return []Seat{SeatAuthenticate, SeatAuthorize, SeatAccounting}
}

// Policy decides whether token is admitted. A returned error denies.
type Policy func(n *Node, token *engine.Token) (bool, error)

// AllowAll admits every token. Every seat starts with it.
func AllowAll(*Node, *engine.Token) (bool, error) {
	return true, nil
}

type seat struct {
	policy    Policy
	installed bool
}

func (n *Node) SetAuthenticatePolicy(p Policy) (status.Code, error) {
	return n.SetPolicy(SeatAuthenticate, p)
}

func (n *Node) SetAuthorizePolicy(p Policy) (status.Code, error) {
	return n.SetPolicy(SeatAuthorize, p)
}

func (n *Node) SetAccountingPolicy(p Policy) (status.Code, error) {
	return n.SetPolicy(SeatAccounting, p)
}

// SetPolicy replaces the policy of s. A nil policy restores AllowAll.
// The seat's engine trampoline is installed on first use.
func (n *Node) SetPolicy(s Seat, p Policy) (status.Code, error) {
	if s < 0 || s >= seatCount {
		return status.InvalidArgument, errors.InvalidInput(errors.PhaseRegister, "unknown seat")
	}
	if p == nil {
		p = AllowAll
	}
	if n.Destroyed() {
		return n.destroyedErr(errors.PhaseRegister, s.String())
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Destroyed() {
		return n.destroyedErr(errors.PhaseRegister, s.String())
	}

	st := &n.seats[s]
	st.policy = p
	if st.installed {
		return status.OK, nil
	}

	var code status.Code
	switch s {
	case SeatAuthenticate:
		code = n.eng.SetAuthenticateCallback(n.life.handle, authenticateTrampoline)
	case SeatAuthorize:
		code = n.eng.SetAuthorizeCallback(n.life.handle, authorizeTrampoline)
	case SeatAccounting:
		code = n.eng.SetAccountingCallback(n.life.handle, accountingTrampoline)
	}
	if code != status.OK {
		return n.settle(code, errors.PhaseRegister, s.String())
	}
	st.installed = true
	n.log.Debug("policy trampoline installed", zap.Stringer("seat", s))
	return status.OK, nil
}

// Installed reports whether the engine trampoline for s is in place.
func (n *Node) Installed(s Seat) bool {
	if s < 0 || s >= seatCount {
		return false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.seats[s].installed
}

// decide evaluates the current policy of s. Failures deny.
func (n *Node) decide(s Seat, token *engine.Token) bool {
	n.mu.RLock()
	p := n.seats[s].policy
	n.mu.RUnlock()

	ok, err := n.evaluate(p, token)
	d := &n.stats.decisions[s]
	if err != nil {
		d.failed.Add(1)
		perr := errors.Policy(s.String(), err)
		n.log.Warn("policy failed, denying", zap.Stringer("seat", s), zap.Error(err))
		n.report(perr)
		return false
	}
	if ok {
		d.allowed.Add(1)
	} else {
		d.denied.Add(1)
	}
	return ok
}

func (n *Node) evaluate(p Policy, token *engine.Token) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, errors.Panicked(r)
		}
	}()
	return p(n, token)
}
