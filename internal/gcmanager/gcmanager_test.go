package gcmanager

import (
	"testing"
	"unsafe"

	"github.com/cschram/otterlang/internal/allocator"
)

func newSystemAllocator(t *testing.T) allocator.Allocator {
	t.Helper()

	return allocator.NewSystemAllocator(&allocator.Config{
		AlignmentSize:  8,
		EnableTracking: true,
	})
}

func TestNoOpGC(t *testing.T) {
	gc := NewNoOpGC(newSystemAllocator(t))

	ptr, err := gc.Alloc(32)
	if err != nil || ptr == nil {
		t.Fatalf("expected successful alloc, got ptr=%v err=%v", ptr, err)
	}

	stats := gc.Collect()
	if stats.Kind != "none" || stats.ObjectsCollected != 0 {
		t.Fatalf("expected no-op collect, got %+v", stats)
	}
}

func TestRcGC(t *testing.T) {
	t.Run("FreesImmediatelyOnZeroRefs", func(t *testing.T) {
		gc := NewRcGC(newSystemAllocator(t))

		ptr, err := gc.Alloc(64)
		if err != nil {
			t.Fatalf("alloc failed: %v", err)
		}

		gc.IncRef(ptr) // count=2
		gc.DecRef(ptr) // count=1, not freed yet
		gc.DecRef(ptr) // count=0, frees
		gc.DecRef(ptr) // unknown pointer now, must be silently ignored
	})

	t.Run("DecRefOnUnknownPointerIsIgnored", func(t *testing.T) {
		gc := NewRcGC(newSystemAllocator(t))

		gc.DecRef(unsafe.Pointer(uintptr(0xdeadbeef)))
	})
}

func TestMarkSweepGC(t *testing.T) {
	t.Run("ReclaimsUnreachableObjects", func(t *testing.T) {
		var freed []uintptr

		alloc := newSystemAllocator(t)
		gc := NewMarkSweepGC(alloc, nil, func(ptr unsafe.Pointer, size uintptr) {
			freed = append(freed, size)
		})

		root, _ := gc.Alloc(16)
		garbage, _ := gc.Alloc(16)
		_ = garbage

		gc.AddRoot(root)

		stats := gc.Collect()

		if stats.ObjectsCollected != 1 {
			t.Fatalf("expected 1 object collected, got %d", stats.ObjectsCollected)
		}

		if len(freed) != 1 || freed[0] != 16 {
			t.Fatalf("expected onFree called once with size 16, got %+v", freed)
		}
	})

	t.Run("TracesThroughReachableGraph", func(t *testing.T) {
		alloc := newSystemAllocator(t)

		// Build a tiny two-node graph: root -> child, via an edge map the
		// tracer consults.
		edges := make(map[unsafe.Pointer][]unsafe.Pointer)

		gc := NewMarkSweepGC(alloc, func(ptr unsafe.Pointer) []unsafe.Pointer {
			return edges[ptr]
		}, nil)

		rootPtr, _ := gc.Alloc(8)
		childPtr, _ := gc.Alloc(8)

		edges[rootPtr] = []unsafe.Pointer{childPtr}

		gc.AddRoot(rootPtr)

		stats := gc.Collect()

		if stats.ObjectsCollected != 0 {
			t.Fatalf("expected both objects reachable, got %d collected", stats.ObjectsCollected)
		}
	})

	t.Run("RemoveRootToleratesUnknownPointer", func(t *testing.T) {
		gc := NewMarkSweepGC(newSystemAllocator(t), nil, nil)

		gc.RemoveRoot(unsafe.Pointer(uintptr(0x1)))
	})
}

func TestGenerationalGC(t *testing.T) {
	newGC := func(t *testing.T, trace Tracer, onFree func(unsafe.Pointer, uintptr)) *GenerationalGC {
		t.Helper()

		gc, err := NewGenerationalGC(newSystemAllocator(t), 256, trace, onFree)
		if err != nil {
			t.Fatalf("NewGenerationalGC failed: %v", err)
		}

		return gc
	}

	t.Run("MinorGCPromotesReachableNurseryObjects", func(t *testing.T) {
		gc := newGC(t, nil, nil)

		ptr, err := gc.Alloc(16)
		if err != nil {
			t.Fatalf("alloc failed: %v", err)
		}

		gc.AddRoot(ptr)

		stats := gc.CollectMinor()
		if stats.ObjectsCollected != 1 {
			t.Fatalf("expected 1 object promoted, got %d", stats.ObjectsCollected)
		}

		minor, major := gc.Counts()
		if minor != 1 || major != 0 {
			t.Fatalf("expected 1 minor / 0 major, got %d/%d", minor, major)
		}
	})

	t.Run("MinorGCDoesNotResetNursery", func(t *testing.T) {
		gc := newGC(t, nil, nil)

		before := gc.nursery.Used()

		ptr, _ := gc.Alloc(16)
		gc.AddRoot(ptr)
		gc.CollectMinor()

		// The object was promoted, not copied, but the nursery bump offset is
		// untouched until a major collection runs.
		after := gc.nursery.Used()
		if after <= before {
			t.Fatalf("expected nursery usage to remain advanced after minor GC: before=%d after=%d", before, after)
		}
	})

	t.Run("MajorGCResetsNurseryAndSweepsUnreachable", func(t *testing.T) {
		var freedTotal uintptr

		gc := newGC(t, nil, func(ptr unsafe.Pointer, size uintptr) {
			freedTotal += size
		})

		live, _ := gc.Alloc(16)
		_, _ = gc.Alloc(16) // unreachable garbage

		gc.AddRoot(live)

		stats := gc.CollectMajor()

		if stats.ObjectsCollected != 1 {
			t.Fatalf("expected 1 unreachable object collected, got %d", stats.ObjectsCollected)
		}

		if freedTotal != 16 {
			t.Fatalf("expected 16 bytes freed, got %d", freedTotal)
		}

		if gc.nursery.Used() != 0 {
			t.Fatalf("expected nursery reset after major GC, got used=%d", gc.nursery.Used())
		}

		minor, major := gc.Counts()
		if minor != 0 || major != 1 {
			t.Fatalf("expected 0 minor / 1 major, got %d/%d", minor, major)
		}
	})

	t.Run("AllocFallsBackThroughMinorThenMajorGC", func(t *testing.T) {
		gc := newGC(t, nil, nil)

		// Fill the nursery without rooting anything, so a minor GC alone
		// can't reclaim it — only a major GC (which also resets the nursery)
		// can make room again.
		for gc.tryNurseryAlloc(64) != nil {
		}

		ptr, err := gc.Alloc(64)
		if err != nil {
			t.Fatalf("expected Alloc to recover via major GC, got err=%v", err)
		}

		if ptr == nil {
			t.Fatal("expected non-nil pointer after fallback allocation")
		}

		_, major := gc.Counts()
		if major == 0 {
			t.Fatal("expected at least one major collection to have run")
		}
	})
}

func TestManager(t *testing.T) {
	t.Run("HeapPressureTriggersAutomaticCollection", func(t *testing.T) {
		var collectCount int

		alloc := newSystemAllocator(t)

		m, err := New(alloc,
			WithStrategy(StrategyMarkSweep),
			WithHeapPressureBytes(64),
			WithOnFree(func(ptr unsafe.Pointer, size uintptr) { collectCount++ }),
		)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		for i := 0; i < 8; i++ {
			ptr, err := m.Alloc(16)
			if err != nil {
				t.Fatalf("alloc %d failed: %v", i, err)
			}

			m.RegisterObject(ptr, 16)
		}

		if m.TotalCollected() == 0 {
			t.Fatal("expected heap pressure to have triggered at least one collection")
		}
	})

	t.Run("DisableSuppressesAutomaticCollectionAndTallies", func(t *testing.T) {
		alloc := newSystemAllocator(t)

		m, err := New(alloc, WithStrategy(StrategyMarkSweep), WithHeapPressureBytes(32))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		m.Disable()

		for i := 0; i < 4; i++ {
			ptr, _ := m.Alloc(16)
			m.RegisterObject(ptr, 16)
		}

		if m.TotalCollected() != 0 {
			t.Fatalf("expected no automatic collection while disabled, got %d", m.TotalCollected())
		}

		if got := m.DisabledBytes(); got != 64 {
			t.Fatalf("expected 64 disabled bytes tallied, got %d", got)
		}

		m.Enable()

		if got := m.DisabledBytes(); got != 0 {
			t.Fatalf("expected disabled byte tally reset on Enable, got %d", got)
		}
	})

	t.Run("DisabledHeapLimitAutoReenablesAndCollects", func(t *testing.T) {
		alloc := newSystemAllocator(t)

		m, err := New(alloc,
			WithStrategy(StrategyMarkSweep),
			WithDisabledHeapLimit(1024),
		)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		m.Disable()

		for i, want := range []struct {
			enabled bool
			bytes   uintptr
		}{
			{false, 512}, // still under the 1024-byte limit
			{true, 0},    // 2nd 512-byte alloc reaches the limit: re-enable + reset
			{true, 0},    // already enabled, so no further tallying happens
		} {
			ptr, err := m.Alloc(512)
			if err != nil {
				t.Fatalf("alloc %d failed: %v", i, err)
			}

			m.RegisterObject(ptr, 512)

			if got := m.Enabled(); got != want.enabled {
				t.Fatalf("alloc %d: Enabled() = %v, want %v", i, got, want.enabled)
			}

			if got := m.DisabledBytes(); got != want.bytes {
				t.Fatalf("alloc %d: DisabledBytes() = %d, want %d", i, got, want.bytes)
			}
		}

		if m.TotalCollected() == 0 {
			t.Fatal("expected reaching DisabledHeapLimit to run an immediate Collect")
		}
	})

	t.Run("SetStrategySwapsActiveCollector", func(t *testing.T) {
		alloc := newSystemAllocator(t)

		m, err := New(alloc, WithStrategy(StrategyNoOp))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		if m.CurrentStrategy().Name() != "noop" {
			t.Fatalf("expected noop strategy, got %s", m.CurrentStrategy().Name())
		}

		if err := m.SetStrategy(StrategyRefCounted); err != nil {
			t.Fatalf("SetStrategy failed: %v", err)
		}

		if m.CurrentStrategy().Name() != "rc" {
			t.Fatalf("expected rc strategy after swap, got %s", m.CurrentStrategy().Name())
		}
	})
}
