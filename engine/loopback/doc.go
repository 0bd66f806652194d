// Package loopback is an in-process neuropil engine written in Go.
//
// All contexts created by one Engine share a private network: a context that
// listens on an address can be joined by any other context of the same
// Engine. Messages sent on a subject are delivered, during the receiver's
// Run, through the receiver's installed subject trampoline. Authentication
// trampolines run during the join handshake; authorization and accounting
// trampolines run on the sending side for every receiver.
//
// The engine also exposes hooks that stand in for engine-internal events:
//
//	eng.Deliver(h, "test.subject", data)   // invoke the subject trampoline now
//	eng.Authorize(h, token)                // invoke the authorize trampoline now
//	eng.Fail(loopback.OpListen, status.NetworkError)
//	eng.DestroyCalls(h)                    // count of Destroy calls for h
//
// Handles are unique across every loopback Engine in the process.
package loopback
