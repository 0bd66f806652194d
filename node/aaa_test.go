package node

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/engine/loopback"
	"github.com/wippyai/neuropil-go/errors"
	"github.com/wippyai/neuropil-go/status"
)

type seatHook func(e *loopback.Engine, h engine.Handle, tok *engine.Token) (bool, bool)

var seatHooks = map[Seat]seatHook{
	SeatAuthenticate: (*loopback.Engine).Authenticate,
	SeatAuthorize:    (*loopback.Engine).Authorize,
	SeatAccounting:   (*loopback.Engine).Account,
}

func TestPolicy_DefaultUninstalled(t *testing.T) {
	eng := loopback.New()
	n := newNode(t, eng)

	for _, s := range Seats() {
		if n.Installed(s) {
			t.Errorf("%s installed before any policy was set", s)
		}
		if _, installed := seatHooks[s](eng, n.Handle(), &engine.Token{}); installed {
			t.Errorf("%s trampoline present in the engine", s)
		}
	}
}

func TestPolicy_LastWriteWins(t *testing.T) {
	for _, s := range Seats() {
		t.Run(s.String(), func(t *testing.T) {
			eng := newCountingEngine()
			n := newNode(t, eng)
			hook := seatHooks[s]

			deny := func(*Node, *engine.Token) (bool, error) { return false, nil }
			if code, err := n.SetPolicy(s, deny); code != status.OK || err != nil {
				t.Fatalf("SetPolicy = %v, %v", code, err)
			}
			if got, installed := hook(eng.Engine, n.Handle(), &engine.Token{}); !installed || got {
				t.Errorf("after deny: decision=%v installed=%v", got, installed)
			}

			var seen *engine.Token
			allow := func(got *Node, tok *engine.Token) (bool, error) {
				if got != n {
					t.Errorf("policy got node %p, want %p", got, n)
				}
				seen = tok
				return true, nil
			}
			n.SetPolicy(s, allow)
			tok := &engine.Token{Subject: "alice"}
			if got, _ := hook(eng.Engine, n.Handle(), tok); !got {
				t.Error("second policy did not replace the first")
			}
			if seen != tok {
				t.Error("policy did not receive the engine's token")
			}

			n.SetPolicy(s, nil)
			if got, _ := hook(eng.Engine, n.Handle(), tok); !got {
				t.Error("nil policy should restore allow-all")
			}

			if got := eng.installs(s.String()); got != 1 {
				t.Errorf("trampoline installed %d times, want 1", got)
			}
			if !n.Installed(s) {
				t.Error("Installed = false")
			}
		})
	}
}

func TestPolicy_SeatsAreIndependent(t *testing.T) {
	eng := loopback.New()
	n := newNode(t, eng)

	n.SetAuthenticatePolicy(func(*Node, *engine.Token) (bool, error) { return false, nil })
	n.SetAuthorizePolicy(func(*Node, *engine.Token) (bool, error) { return true, nil })

	if got, _ := eng.Authenticate(n.Handle(), &engine.Token{}); got {
		t.Error("authenticate should deny")
	}
	if got, _ := eng.Authorize(n.Handle(), &engine.Token{}); !got {
		t.Error("authorize should admit")
	}
	if _, installed := eng.Account(n.Handle(), &engine.Token{}); installed {
		t.Error("accounting should not be installed")
	}
}

func TestPolicy_FailsClosed(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
	}{
		{"error", func(*Node, *engine.Token) (bool, error) { return true, fmt.Errorf("lookup failed") }},
		{"panic", func(*Node, *engine.Token) (bool, error) { panic("policy bug") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reported error
			eng := loopback.New()
			n := newNode(t, eng, WithErrorHandler(func(err error) { reported = err }))
			n.SetAuthorizePolicy(tt.policy)

			if got, _ := eng.Authorize(n.Handle(), &engine.Token{}); got {
				t.Error("failing policy must deny")
			}
			if !errors.IsKind(reported, errors.KindPolicy) {
				t.Errorf("reported = %v, want policy error", reported)
			}
			d := n.Stats().Decisions[SeatAuthorize]
			if d.Failed != 1 || d.Allowed != 0 {
				t.Errorf("decision stats = %+v", d)
			}
		})
	}
}

func TestPolicy_Stats(t *testing.T) {
	eng := loopback.New()
	n := newNode(t, eng)

	n.SetAccountingPolicy(func(_ *Node, tok *engine.Token) (bool, error) {
		return tok.Subject == "ok", nil
	})
	eng.Account(n.Handle(), &engine.Token{Subject: "ok"})
	eng.Account(n.Handle(), &engine.Token{Subject: "ok"})
	eng.Account(n.Handle(), &engine.Token{Subject: "no"})

	d := n.Stats().Decisions[SeatAccounting]
	if d.Allowed != 2 || d.Denied != 1 || d.Failed != 0 {
		t.Errorf("decision stats = %+v", d)
	}
}

func TestPolicy_InstallFailure(t *testing.T) {
	eng := loopback.New()
	n := newNode(t, eng, WithRaiseOnError(true))
	eng.Fail(loopback.OpAuthorize, status.InvalidOperation)

	code, err := n.SetAuthorizePolicy(AllowAll)
	if code != status.InvalidOperation || !errors.IsKind(err, errors.KindEngine) {
		t.Errorf("SetAuthorizePolicy = %v, %v", code, err)
	}
	if n.Installed(SeatAuthorize) {
		t.Error("seat marked installed after a failed install")
	}

	eng.Fail(loopback.OpAuthorize, status.OK)
	if _, err := n.SetAuthorizePolicy(AllowAll); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !n.Installed(SeatAuthorize) {
		t.Error("seat not installed after retry")
	}
}

func TestPolicy_UnknownSeat(t *testing.T) {
	n := newNode(t, loopback.New())
	if _, err := n.SetPolicy(Seat(7), AllowAll); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("SetPolicy(7) = %v", err)
	}
	if n.Installed(Seat(-1)) {
		t.Error("Installed(-1) = true")
	}
}

func TestPolicy_GatesJoinAndSend(t *testing.T) {
	eng := loopback.New()
	a := newNode(t, eng)
	b := newNode(t, eng)

	b.Listen("tcp4", "localhost", 4200)
	b.SetAuthenticatePolicy(func(*Node, *engine.Token) (bool, error) { return false, nil })
	a.Join("*:tcp4:localhost:4200")
	a.Run(t.Context(), 0)
	if a.HasJoined() {
		t.Fatal("join admitted by a denying authenticate policy")
	}

	b.SetAuthenticatePolicy(nil)
	a.Join("*:tcp4:localhost:4200")
	a.Run(t.Context(), 0)
	if !a.HasJoined() {
		t.Fatal("join refused after resetting the policy")
	}

	var got int
	b.Subscribe("x", func(*Node, *engine.Message) error { got++; return nil })
	a.SetAuthorizePolicy(func(_ *Node, tok *engine.Token) (bool, error) { return tok.Subject != "x", nil })
	a.Send("x", nil)
	b.Run(t.Context(), 0)
	if got != 0 {
		t.Error("send admitted by a denying authorize policy")
	}
}

// blockingPolicy admits after release is closed and closes entered on its
// first call.
func blockingPolicy(entered, release chan struct{}) Policy {
	var once sync.Once
	return func(*Node, *engine.Token) (bool, error) {
		once.Do(func() { close(entered) })
		<-release
		return true, nil
	}
}

func runAsync(n *Node) <-chan any {
	done := make(chan any, 1)
	go func() {
		defer func() { done <- recover() }()
		n.Run(context.Background(), 0)
	}()
	return done
}

func TestPolicy_PeerShutdownDuringHandshake(t *testing.T) {
	eng := loopback.New()
	a := newNode(t, eng)
	b := newNode(t, eng)

	var peerCalls atomic.Int32
	b.SetAuthenticatePolicy(func(*Node, *engine.Token) (bool, error) {
		peerCalls.Add(1)
		return true, nil
	})
	b.Listen("udp4", "localhost", 4210)

	entered, release := make(chan struct{}), make(chan struct{})
	a.SetAuthenticatePolicy(blockingPolicy(entered, release))
	a.Join("*:udp4:localhost:4210")

	ran := runAsync(a)
	<-entered

	if code, err := b.Shutdown(true); code != status.OK || err != nil {
		t.Fatalf("Shutdown = %v, %v", code, err)
	}
	if got := eng.DestroyCalls(b.Handle()); got != 1 {
		t.Errorf("DestroyCalls = %d, want 1", got)
	}
	close(release)

	if r := <-ran; r != nil {
		t.Fatalf("Run panicked: %v", r)
	}
	if a.HasJoined() {
		t.Error("joined a peer that was shut down mid-handshake")
	}
	if got := peerCalls.Load(); got != 0 {
		t.Errorf("destroyed peer's policy ran %d times", got)
	}
}

func TestPolicy_ShutdownWaitsForRunningDecision(t *testing.T) {
	eng := loopback.New()
	a := newNode(t, eng)
	b := newNode(t, eng)

	entered, release := make(chan struct{}), make(chan struct{})
	b.SetAuthenticatePolicy(blockingPolicy(entered, release))
	b.Listen("udp4", "localhost", 4211)
	a.Join("*:udp4:localhost:4211")

	ran := runAsync(a)
	<-entered

	shut := make(chan error, 1)
	go func() {
		_, err := b.Shutdown(true)
		shut <- err
	}()

	select {
	case <-shut:
		t.Fatal("Shutdown returned while the node's policy was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-shut:
		if err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not return after the policy finished")
	}
	if r := <-ran; r != nil {
		t.Fatalf("Run panicked: %v", r)
	}
	if a.HasJoined() {
		t.Error("joined a peer that was shut down mid-handshake")
	}
}
