package abi

import (
	"testing"

	"github.com/cschram/otterlang/internal/allocator"
	"github.com/cschram/otterlang/internal/gcmanager"
)

func newTestGCManager(t *testing.T) *gcmanager.Manager {
	t.Helper()

	alloc := allocator.NewSystemAllocator(&allocator.Config{
		AlignmentSize:  8,
		MemoryLimit:    64 * 1024 * 1024,
		MaxAllocations: 1024,
	})

	mgr, err := gcmanager.New(alloc, gcmanager.WithStrategy(gcmanager.StrategyNoOp))
	if err != nil {
		t.Fatalf("gcmanager.New: %v", err)
	}

	return mgr
}

func TestGCABIWithoutManagerDegradesGracefully(t *testing.T) {
	SetGCManager(nil)

	if ptr := otter_alloc(64); ptr != nil {
		t.Fatalf("otter_alloc with no manager = %v, want nil", ptr)
	}

	if otter_gc_enable() {
		t.Fatal("otter_gc_enable with no manager = true, want false")
	}

	if otter_gc_disable() {
		t.Fatal("otter_gc_disable with no manager = true, want false")
	}

	if otter_gc_is_enabled() {
		t.Fatal("otter_gc_is_enabled with no manager = true, want false")
	}

	// must not panic even with no manager wired
	otter_gc_add_root(nil)
	otter_gc_remove_root(nil)
}

func TestGCABIForwardsToWiredManager(t *testing.T) {
	mgr := newTestGCManager(t)
	SetGCManager(mgr)
	defer SetGCManager(nil)

	ptr := otter_alloc(128)
	if ptr == nil {
		t.Fatal("otter_alloc with wired manager returned nil")
	}

	if !otter_gc_is_enabled() {
		t.Fatal("manager should start enabled")
	}

	if !otter_gc_disable() {
		t.Fatal("otter_gc_disable returned false")
	}

	if otter_gc_is_enabled() {
		t.Fatal("otter_gc_is_enabled true after disable")
	}

	if !otter_gc_enable() {
		t.Fatal("otter_gc_enable returned false")
	}

	if !otter_gc_is_enabled() {
		t.Fatal("otter_gc_is_enabled false after enable")
	}
}

func TestGCABIRejectsNonPositiveSize(t *testing.T) {
	mgr := newTestGCManager(t)
	SetGCManager(mgr)
	defer SetGCManager(nil)

	if ptr := otter_alloc(0); ptr != nil {
		t.Fatalf("otter_alloc(0) = %v, want nil", ptr)
	}

	if ptr := otter_alloc(-8); ptr != nil {
		t.Fatalf("otter_alloc(-8) = %v, want nil", ptr)
	}
}
