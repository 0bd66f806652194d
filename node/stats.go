package node

import "sync/atomic"

type counters struct {
	delivered       atomic.Uint64
	handlerFailures atomic.Uint64
	sent            atomic.Uint64
	decisions       [seatCount]decisionCounters
}

type decisionCounters struct {
	allowed atomic.Uint64
	denied  atomic.Uint64
	failed  atomic.Uint64
}

// Stats is a point-in-time snapshot of a node's activity.
type Stats struct {
	Decisions       map[Seat]DecisionStats
	Subjects        int
	Handlers        int
	Delivered       uint64
	HandlerFailures uint64
	Sent            uint64
	Destroyed       bool
}

// DecisionStats counts the outcomes of one seat. Failed decisions are
// counted separately from plain denies.
type DecisionStats struct {
	Allowed uint64
	Denied  uint64
	Failed  uint64
}

func (n *Node) Stats() Stats {
	s := Stats{
		Decisions:       make(map[Seat]DecisionStats, seatCount),
		Delivered:       n.stats.delivered.Load(),
		HandlerFailures: n.stats.handlerFailures.Load(),
		Sent:            n.stats.sent.Load(),
		Destroyed:       n.Destroyed(),
	}
	for _, seat := range Seats() {
		d := &n.stats.decisions[seat]
		s.Decisions[seat] = DecisionStats{
			Allowed: d.allowed.Load(),
			Denied:  d.denied.Load(),
			Failed:  d.failed.Load(),
		}
	}

	n.mu.RLock()
	s.Subjects = len(n.subjects)
	for _, hs := range n.subjects {
		s.Handlers += len(hs)
	}
	n.mu.RUnlock()
	return s
}
