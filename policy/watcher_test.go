package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/node"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestNewWatcher_Missing(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

// waitReload waits for a reload whose outcome matches wantErr.
func waitReload(t *testing.T, reloads <-chan error, wantErr bool) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case err := <-reloads:
			if (err != nil) == wantErr {
				return
			}
		case <-timeout:
			t.Fatalf("no reload with error=%v", wantErr)
		}
	}
}

func TestWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writeFile(t, path, "default: deny")

	reloads := make(chan error, 16)
	w, err := NewWatcher(path,
		WithDebounce(50*time.Millisecond),
		OnReload(func(_ *Set, err error) {
			select {
			case reloads <- err:
			default:
			}
		}))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	policy := w.Policy(node.SeatAuthorize)
	if ok, _ := policy(nil, &engine.Token{}); ok {
		t.Fatal("initial policy should deny")
	}

	writeFile(t, path, "default: allow")
	waitReload(t, reloads, false)
	if ok, _ := policy(nil, &engine.Token{}); !ok {
		t.Error("policy obtained before reload should see the new set")
	}

	writeFile(t, path, "default: sometimes")
	waitReload(t, reloads, true)
	if w.Current().Default != Allow {
		t.Error("failed reload replaced the previous set")
	}
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writeFile(t, path, "default: allow")
	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if err := w.Reload(); err != nil {
		t.Errorf("Reload after Close = %v", err)
	}
}
