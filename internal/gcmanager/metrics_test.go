package gcmanager

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorReportsManagerState(t *testing.T) {
	alloc := newSystemAllocator(t)

	m, err := New(alloc, WithStrategy(StrategyMarkSweep))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m.Collect()

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(m))

	count, err := testutil.GatherAndCount(reg,
		"otter_gc_objects_collected_total", "otter_gc_disabled_bytes", "otter_gc_enabled")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}

	if count != 3 {
		t.Fatalf("collected %d metrics, want 3", count)
	}
}

func TestCollectorReflectsDisabledState(t *testing.T) {
	alloc := newSystemAllocator(t)

	m, err := New(alloc, WithStrategy(StrategyNoOp))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m.Disable()

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(m))

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() != "otter_gc_enabled" {
			continue
		}

		found = true

		if got := mf.Metric[0].GetGauge().GetValue(); got != 0 {
			t.Fatalf("otter_gc_enabled = %v, want 0 after Disable", got)
		}
	}

	if !found {
		t.Fatal("otter_gc_enabled metric not found")
	}
}
