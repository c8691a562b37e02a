package abi

import (
	"unsafe"

	"github.com/cschram/otterlang/internal/allocator"
)

var arenas = newHandleTable[*allocator.ArenaAllocatorImpl]()

var arenaConfig = &allocator.Config{AlignmentSize: 8}

//export otter_arena_create
func otter_arena_create(capacity int64) uint64 {
	if capacity <= 0 {
		return 0
	}

	arena, err := allocator.NewArenaAllocator(uintptr(capacity), arenaConfig)
	if err != nil {
		return 0
	}

	return arenas.insert(arena)
}

//export otter_arena_destroy
func otter_arena_destroy(handle uint64) bool {
	_, ok := arenas.remove(handle)

	return ok
}

//export otter_arena_alloc
func otter_arena_alloc(handle uint64, size, align int64) unsafe.Pointer {
	arena, ok := arenas.get(handle)
	if !ok || size <= 0 {
		return nil
	}

	if align <= 0 {
		align = int64(arenaConfig.AlignmentSize)
	}

	return arena.AllocAligned(uintptr(size), uintptr(align))
}

//export otter_arena_reset
func otter_arena_reset(handle uint64) bool {
	arena, ok := arenas.get(handle)
	if !ok {
		return false
	}

	arena.Reset()

	return true
}
