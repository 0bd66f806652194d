package registry

import (
	"math/rand"
	"runtime"
	"sync"
	"testing"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/errors"
)

type item struct {
	name string
	pad  [64]byte
}

type testObserver struct {
	events []Event
}

func (o *testObserver) OnRegistryEvent(e Event) {
	o.events = append(o.events, e)
}

func TestRegistry_Basic(t *testing.T) {
	reg := New[item]()
	v := &item{name: "a"}

	if err := reg.Register(1, v); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := reg.Resolve(1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != v {
		t.Fatal("Resolve returned a different value")
	}

	reg.Unregister(1)
	if _, err := reg.Resolve(1); !errors.IsKind(err, errors.KindUnknownHandle) {
		t.Fatalf("Resolve after Unregister: %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("Len = %d, want 0", reg.Len())
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	reg := New[item]()
	if err := reg.Register(7, &item{}); err != nil {
		t.Fatal(err)
	}
	err := reg.Register(7, &item{})
	if !errors.IsKind(err, errors.KindDuplicateHandle) {
		t.Fatalf("expected duplicate handle error, got %v", err)
	}
}

func TestRegistry_InvalidInput(t *testing.T) {
	reg := New[item]()
	if err := reg.Register(0, &item{}); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("handle 0: %v", err)
	}
	if err := reg.Register(1, nil); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("nil value: %v", err)
	}
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	reg := New[item]()
	obs := &testObserver{}
	reg.Subscribe(obs)

	_ = reg.Register(3, &item{})
	reg.Unregister(3)
	reg.Unregister(3)
	reg.Unregister(99)

	if len(obs.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventRegistered || obs.events[1].Type != EventUnregistered {
		t.Errorf("unexpected events %+v", obs.events)
	}
}

func TestRegistry_Unsubscribe(t *testing.T) {
	reg := New[item]()
	count := 0
	unsubscribe := reg.Subscribe(ObserverFunc(func(Event) { count++ }))

	_ = reg.Register(1, &item{})
	unsubscribe()
	_ = reg.Register(2, &item{})

	if count != 1 {
		t.Errorf("observer called %d times, want 1", count)
	}
}

//go:noinline
func registerTransient(reg *Registry[item], h engine.Handle) {
	_ = reg.Register(h, &item{name: "transient"})
}

func TestRegistry_DoesNotKeepAlive(t *testing.T) {
	reg := New[item]()
	registerTransient(reg, 5)

	runtime.GC()
	runtime.GC()

	if _, err := reg.Resolve(5); !errors.IsKind(err, errors.KindUnknownHandle) {
		t.Fatalf("collected value should resolve as unknown, got %v", err)
	}
	if !reg.Contains(5) {
		t.Error("entry should remain until unregistered")
	}
}

// Random create/destroy sequences: Resolve succeeds iff the handle is live.
func TestRegistry_ResolveIffLive(t *testing.T) {
	reg := New[item]()
	rng := rand.New(rand.NewSource(1))
	live := make(map[engine.Handle]*item)
	next := engine.Handle(1)

	for step := 0; step < 500; step++ {
		if len(live) == 0 || rng.Intn(2) == 0 {
			v := &item{}
			if err := reg.Register(next, v); err != nil {
				t.Fatalf("step %d: Register: %v", step, err)
			}
			live[next] = v
			next++
		} else {
			for h := range live {
				reg.Unregister(h)
				delete(live, h)
				break
			}
		}

		for h := engine.Handle(1); h < next; h++ {
			v, err := reg.Resolve(h)
			want, isLive := live[h]
			if isLive && (err != nil || v != want) {
				t.Fatalf("step %d: live handle %d did not resolve: %v", step, h, err)
			}
			if !isLive && err == nil {
				t.Fatalf("step %d: dead handle %d resolved", step, h)
			}
		}
	}
	runtime.KeepAlive(live)
}

func TestRegistry_ConcurrentResolve(t *testing.T) {
	reg := New[item]()
	values := make([]*item, 16)
	for i := range values {
		values[i] = &item{}
		_ = reg.Register(engine.Handle(i+1), values[i])
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				h := engine.Handle(i%len(values) + 1)
				v, err := reg.Resolve(h)
				if err != nil || v != values[h-1] {
					t.Errorf("Resolve(%d) = %v, %v", h, v, err)
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			h := engine.Handle(1000 + i)
			_ = reg.Register(h, &item{})
			reg.Unregister(h)
		}
	}()

	wg.Wait()
	if reg.Len() != len(values) {
		t.Errorf("Len = %d, want %d", reg.Len(), len(values))
	}
	runtime.KeepAlive(values)
}
