package node

import (
	"go.uber.org/zap"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/errors"
	"github.com/wippyai/neuropil-go/status"
)

// Handler consumes a message delivered on a subscribed subject. A returned
// error is logged and reported; it does not affect delivery.
type Handler func(n *Node, msg *engine.Message) error

// Subscribe appends h to the handlers of subject. The engine trampoline for
// subject is installed on the first subscription only. If installation
// fails, h is not recorded.
func (n *Node) Subscribe(subject string, h Handler) (status.Code, error) {
	if h == nil {
		return status.InvalidArgument, errors.InvalidInput(errors.PhaseRegister, "handler is nil")
	}
	if subject == "" {
		return status.InvalidArgument, errors.InvalidInput(errors.PhaseRegister, "subject is empty")
	}
	if n.Destroyed() {
		return n.destroyedErr(errors.PhaseRegister, "subscribe")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Destroyed() {
		return n.destroyedErr(errors.PhaseRegister, "subscribe")
	}

	if _, ok := n.subjects[subject]; !ok {
		code := n.eng.AddReceiveCallback(n.life.handle, subject, receiveTrampoline)
		if code != status.OK {
			return n.settle(code, errors.PhaseRegister, "subscribe")
		}
		n.log.Debug("subject trampoline installed", zap.String("subject", subject))
	}
	n.subjects[subject] = append(n.subjects[subject], h)
	return status.OK, nil
}

// Subjects returns the subscribed subjects.
func (n *Node) Subjects() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.subjects))
	for s := range n.subjects {
		out = append(out, s)
	}
	return out
}

// Handlers returns the number of handlers subscribed to subject.
func (n *Node) Handlers(subject string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subjects[subject])
}

// dispatch runs every handler for msg.Subject in order. Handlers subscribed
// while dispatch runs only see later messages.
func (n *Node) dispatch(msg *engine.Message) {
	n.mu.RLock()
	handlers := n.subjects[msg.Subject]
	n.mu.RUnlock()

	n.stats.delivered.Add(1)
	for i, h := range handlers {
		if err := n.invoke(h, msg); err != nil {
			n.stats.handlerFailures.Add(1)
			herr := errors.Handler(msg.Subject, i, err)
			n.log.Warn("subject handler failed",
				zap.String("subject", msg.Subject),
				zap.Int("index", i),
				zap.Error(err))
			n.report(herr)
		}
	}
}

func (n *Node) invoke(h Handler, msg *engine.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Panicked(r)
		}
	}()
	return h(n, msg)
}
