package node

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	Logger().Info("hello")
	if logs.FilterMessage("hello").Len() != 1 {
		t.Errorf("entries = %v", logs.All())
	}

	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("Logger = nil after SetLogger(nil)")
	}
	Logger().Info("dropped")
	if logs.FilterMessage("dropped").Len() != 0 {
		t.Error("nil logger still wrote to the previous core")
	}
}

func TestSetLogger_Concurrent(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetLogger(zap.NewNop().Named("w").With(zap.Int("i", i)))
		}()
		go func() {
			defer wg.Done()
			Logger().Debug("read")
		}()
	}
	wg.Wait()
}
