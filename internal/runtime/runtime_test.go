package runtime

import (
	"testing"
	"time"

	"github.com/cschram/otterlang/internal/config"
	"github.com/cschram/otterlang/internal/gcmanager"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()

	cfg := config.DefaultRuntimeConfig()
	cfg.Scheduler.WorkerThreads = 2
	cfg.GC.Strategy = gcmanager.StrategyNoOp

	rt, err := New(WithConfig(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Cleanup(rt.Shutdown)

	return rt
}

func TestNewWiresEveryComponent(t *testing.T) {
	rt := newTestRuntime(t)

	if rt.Profiler == nil || rt.GC == nil || rt.Layout == nil || rt.Tiering == nil ||
		rt.Pool == nil || rt.Monitor == nil || rt.Rebalancer == nil {
		t.Fatal("New left at least one component nil")
	}
}

func TestConfigReflectsWhatWasPassedIn(t *testing.T) {
	cfg := config.DefaultRuntimeConfig()
	cfg.Scheduler.WorkerThreads = 3
	cfg.GC.Strategy = gcmanager.StrategyNoOp

	rt, err := New(WithConfig(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rt.Shutdown()

	if got := rt.Config().Scheduler.WorkerThreads; got != 3 {
		t.Fatalf("Config().Scheduler.WorkerThreads = %d, want 3", got)
	}
}

func TestMetricsHandlerServesRegisteredCollectors(t *testing.T) {
	rt := newTestRuntime(t)

	if rt.MetricsHandler() == nil {
		t.Fatal("MetricsHandler returned nil")
	}
}

func TestTriggerImmediateRebalanceLowersInterval(t *testing.T) {
	rt := newTestRuntime(t)

	if err := rt.TriggerImmediateRebalance(); err != nil {
		t.Fatalf("TriggerImmediateRebalance: %v", err)
	}

	// The call itself must not block or panic; a full interval-lowering
	// assertion lives in internal/scheduler's own Rebalancer tests.
	time.Sleep(10 * time.Millisecond)
}

func TestShutdownStopsBackgroundLoop(t *testing.T) {
	cfg := config.DefaultRuntimeConfig()
	cfg.GC.Strategy = gcmanager.StrategyNoOp

	rt, err := New(WithConfig(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan struct{})
	go func() {
		rt.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return in time")
	}
}

func TestGlobalReturnsSameInstance(t *testing.T) {
	a := Global()
	b := Global()

	if a != b {
		t.Fatal("Global returned different instances across calls")
	}
}
