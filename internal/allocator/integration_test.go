package allocator

import (
	"testing"
	"unsafe"
)

// TestRuntimeIntegration tests complete runtime integration.
func TestRuntimeIntegration(t *testing.T) {
	// Test system allocator integration.
	t.Run("SystemAllocatorRuntime", func(t *testing.T) {
		config := defaultConfig()
		systemAlloc := NewSystemAllocator(config)

		err := InitializeRuntime(systemAlloc)
		if err != nil {
			t.Fatalf("Failed to initialize runtime: %v", err)
		}

		defer ShutdownRuntime()

		// Test runtime allocation.
		ptr := RuntimeAlloc(1024)
		if ptr == nil {
			t.Fatal("Runtime allocation failed")
		}

		// Test memory access.
		data := (*[1024]byte)(ptr)
		data[0] = 42
		data[1023] = 43

		if data[0] != 42 || data[1023] != 43 {
			t.Error("Memory access failed")
		}

		RuntimeFree(ptr)
	})

	t.Run("ArenaAllocatorRuntime", func(t *testing.T) {
		config := defaultConfig()

		arenaAlloc, err := NewArenaAllocator(64*1024, config)
		if err != nil {
			t.Fatalf("Failed to create arena allocator: %v", err)
		}

		err = InitializeRuntime(arenaAlloc)
		if err != nil {
			t.Fatalf("Failed to initialize runtime: %v", err)
		}

		defer ShutdownRuntime()

		// Test multiple allocations.
		var ptrs []unsafe.Pointer

		for i := 0; i < 10; i++ {
			ptr := RuntimeAlloc(512)
			if ptr == nil {
				t.Fatalf("Arena allocation %d failed", i)
			}

			ptrs = append(ptrs, ptr)
		}

		// Verify allocations are in order (arena property).
		for i := 1; i < len(ptrs); i++ {
			prev := uintptr(ptrs[i-1])
			curr := uintptr(ptrs[i])

			if curr <= prev {
				t.Error("Arena allocations not in order")
			}
		}
	})

	t.Run("SliceAllocation", func(t *testing.T) {
		config := defaultConfig()
		allocator := NewSystemAllocator(config)

		err := InitializeRuntime(allocator)
		if err != nil {
			t.Fatalf("Failed to initialize runtime: %v", err)
		}

		defer ShutdownRuntime()

		// Test slice allocation.
		header := RuntimeAllocSlice(4, 10, 20)
		if header == nil {
			t.Fatal("Slice allocation failed")
		}

		if header.Len != 10 {
			t.Errorf("Slice length wrong: got %d, want 10", header.Len)
		}

		if header.Cap != 20 {
			t.Errorf("Slice capacity wrong: got %d, want 20", header.Cap)
		}

		if header.Data == nil {
			t.Error("Slice data is nil")
		}

		// Test slice access.
		slice := (*[20]uint32)(header.Data)
		for i := 0; i < 10; i++ {
			slice[i] = uint32(i * 2)
		}

		for i := 0; i < 10; i++ {
			if slice[i] != uint32(i*2) {
				t.Errorf("Slice data corrupted at %d", i)
			}
		}

		RuntimeFreeSlice(header)
	})

	t.Run("StringPooling", func(t *testing.T) {
		config := defaultConfig()
		allocator := NewSystemAllocator(config)

		err := InitializeRuntime(allocator)
		if err != nil {
			t.Fatalf("Failed to initialize runtime: %v", err)
		}

		defer ShutdownRuntime()

		testStr := "Hello, World!"

		// Allocate same string twice.
		ptr1 := RuntimeAllocString(testStr)
		ptr2 := RuntimeAllocString(testStr)

		if ptr1 == nil || ptr2 == nil {
			t.Fatal("String allocation failed")
		}

		// Should hit string pool on second allocation.
		stats := GetRuntimeStats()
		if stats.StringPool.Hits == 0 {
			t.Error("String pool should have hits")
		}
	})
}

// TestAllocatorInteroperability tests interoperability between different allocator types.
func TestAllocatorInteroperability(t *testing.T) {
	t.Run("AllocatorSwitch", func(t *testing.T) {
		// Test switching between allocator types.
		config := defaultConfig()
		config.EnableTracking = true

		// Start with system allocator.
		err := Initialize(SystemAllocatorKind, WithTracking(true))
		if err != nil {
			t.Fatalf("Failed to initialize system allocator: %v", err)
		}

		ptr1 := Alloc(1024)
		if ptr1 == nil {
			t.Fatal("System allocation failed")
		}

		stats1 := GetStats()
		if stats1.AllocationCount == 0 {
			t.Error("System allocator should show allocations")
		}

		Free(ptr1)

		// Switch to arena allocator.
		err = Initialize(ArenaAllocatorKind, WithArenaSize(32*1024))
		if err != nil {
			t.Fatalf("Failed to initialize arena allocator: %v", err)
		}

		ptr2 := Alloc(1024)
		if ptr2 == nil {
			t.Fatal("Arena allocation failed")
		}

		stats2 := GetStats()
		if stats2.AllocationCount == 0 {
			t.Error("Arena allocator should show allocations")
		}

		// Arena allocator doesn't support individual free.
		// so we just reset.
		if arena, ok := GlobalAllocator.(*ArenaAllocatorImpl); ok {
			arena.Reset()
		}
	})
}

// TestPerformanceCharacteristics tests performance characteristics of allocators.
func TestPerformanceCharacteristics(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping performance tests in short mode")
	}

	t.Run("AllocationSpeed", func(t *testing.T) {
		config := defaultConfig()
		config.EnableTracking = false // Disable for performance

		allocators := map[string]Allocator{
			"System": NewSystemAllocator(config),
		}

		// Add arena allocator.
		if arena, err := NewArenaAllocator(1024*1024, config); err == nil {
			allocators["Arena"] = arena
		}

		// Add pool allocator.
		if pool, err := NewPoolAllocator([]uintptr{64, 128, 256, 512, 1024}, config); err == nil {
			allocators["Pool"] = pool
		}

		for name, allocator := range allocators {
			t.Run(name, func(t *testing.T) {
				const numAllocs = 1000

				// Allocate.
				ptrs := make([]unsafe.Pointer, numAllocs)
				for i := 0; i < numAllocs; i++ {
					ptrs[i] = allocator.Alloc(256)
					if ptrs[i] == nil {
						t.Fatalf("Allocation %d failed", i)
					}
				}

				// Free (if supported).
				for _, ptr := range ptrs {
					allocator.Free(ptr)
				}

				// Reset if arena.
				if arena, ok := allocator.(*ArenaAllocatorImpl); ok {
					arena.Reset()
				}
			})
		}
	})
}
