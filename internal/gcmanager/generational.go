package gcmanager

import (
	"sync"
	"unsafe"

	"github.com/cschram/otterlang/internal/allocator"
)

// GenerationalGC splits the heap into a bump-allocated nursery (young
// generation) and a traced old generation. New objects start in the
// nursery; survivors of a minor collection are promoted into the old
// generation.
//
// Promotion here re-registers the surviving pointer directly into the old
// generation's object table without copying its bytes, and a minor
// collection does not reset the nursery's bump offset — only a major
// collection reclaims nursery space. This mirrors the behavior of the
// implementation this collector is modeled on; it is a known simplification
// (an object can occupy nursery bytes indefinitely across repeated minor
// collections without an intervening major collection), not something this
// package silently "fixes".
//
// A second known limitation carried over unchanged: CollectMinor traces
// roots and the old generation's own objects for references, but there is
// no write barrier recording old-gen-to-nursery pointer writes as they
// happen, so a pointer stored into an old object after its last trace can
// be missed until the next major collection.
type GenerationalGC struct {
	alloc   allocator.Allocator
	nursery *allocator.ArenaAllocatorImpl
	trace   Tracer
	onFree  func(ptr unsafe.Pointer, size uintptr)

	mu             sync.Mutex
	roots          map[unsafe.Pointer]struct{}
	nurseryObjects map[unsafe.Pointer]*objectInfo
	oldGen         map[unsafe.Pointer]*objectInfo
	minorCount     int
	majorCount     int
}

func NewGenerationalGC(alloc allocator.Allocator, nurserySize uintptr, trace Tracer, onFree func(ptr unsafe.Pointer, size uintptr)) (*GenerationalGC, error) {
	nursery, err := allocator.NewArenaAllocator(nurserySize, &allocator.Config{AlignmentSize: 8})
	if err != nil {
		return nil, err
	}

	return &GenerationalGC{
		alloc:          alloc,
		nursery:        nursery,
		trace:          trace,
		onFree:         onFree,
		roots:          make(map[unsafe.Pointer]struct{}),
		nurseryObjects: make(map[unsafe.Pointer]*objectInfo),
		oldGen:         make(map[unsafe.Pointer]*objectInfo),
	}, nil
}

func (g *GenerationalGC) Name() string { return "generational" }

// Alloc tries the nursery first; if it's full it runs a minor collection and
// retries once, then (if still full) a major collection and retries once
// more before giving up with ErrOutOfMemory.
func (g *GenerationalGC) Alloc(size uintptr) (unsafe.Pointer, error) {
	if ptr := g.tryNurseryAlloc(size); ptr != nil {
		return ptr, nil
	}

	g.CollectMinor()

	if ptr := g.tryNurseryAlloc(size); ptr != nil {
		return ptr, nil
	}

	g.CollectMajor()

	if ptr := g.tryNurseryAlloc(size); ptr != nil {
		return ptr, nil
	}

	return nil, ErrOutOfMemory
}

func (g *GenerationalGC) tryNurseryAlloc(size uintptr) unsafe.Pointer {
	if !g.nursery.CanAlloc(size) {
		return nil
	}

	ptr := g.nursery.Alloc(size)
	if ptr == nil {
		return nil
	}

	g.mu.Lock()
	g.nurseryObjects[ptr] = &objectInfo{size: size}
	g.mu.Unlock()

	return ptr
}

func (g *GenerationalGC) AddRoot(ptr unsafe.Pointer) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.roots[ptr] = struct{}{}
}

func (g *GenerationalGC) RemoveRoot(ptr unsafe.Pointer) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.roots, ptr)
}

// RegisterObject records an object allocated outside Alloc (e.g. by the
// system allocator directly) as already living in the old generation.
func (g *GenerationalGC) RegisterObject(ptr unsafe.Pointer, size uintptr) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.oldGen[ptr] = &objectInfo{size: size}
}

// Collect runs a minor collection, the usual (cheap) collection a heap-
// pressure trigger should prefer; call CollectMajor directly for a full
// collection.
func (g *GenerationalGC) Collect() CollectionStats {
	return g.CollectMinor()
}

// CollectMinor traces roots plus the old generation's own objects (in lieu
// of a write barrier) for nursery pointers, promotes survivors by
// re-registering their pointer into the old generation, and leaves
// unreached nursery objects in place — the nursery's bump offset is not
// reset by a minor collection.
func (g *GenerationalGC) CollectMinor() CollectionStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	reachableInNursery := make(map[unsafe.Pointer]struct{})

	worklist := make([]unsafe.Pointer, 0, len(g.roots))
	for root := range g.roots {
		worklist = append(worklist, root)
	}

	for ptr := range g.oldGen {
		if g.trace != nil {
			worklist = append(worklist, g.trace(ptr)...)
		}
	}

	visited := make(map[unsafe.Pointer]struct{})

	for len(worklist) > 0 {
		ptr := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if _, seen := visited[ptr]; seen {
			continue
		}
		visited[ptr] = struct{}{}

		if info, ok := g.nurseryObjects[ptr]; ok {
			reachableInNursery[ptr] = struct{}{}

			if g.trace != nil {
				worklist = append(worklist, g.trace(ptr)...)
			}

			_ = info
		}
	}

	promoted := 0

	for ptr := range reachableInNursery {
		info := g.nurseryObjects[ptr]
		delete(g.nurseryObjects, ptr)
		g.oldGen[ptr] = info
		promoted++
	}

	g.minorCount++

	return CollectionStats{Kind: "minor", ObjectsCollected: promoted}
}

// CollectMajor traces roots through both generations, reclaims anything
// unreached in either generation, and — unlike a minor collection — resets
// the nursery's bump offset once its survivors have been promoted, fully
// reclaiming nursery space.
func (g *GenerationalGC) CollectMajor() CollectionStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, obj := range g.oldGen {
		obj.marked = false
	}
	for _, obj := range g.nurseryObjects {
		obj.marked = false
	}

	worklist := make([]unsafe.Pointer, 0, len(g.roots))
	for root := range g.roots {
		worklist = append(worklist, root)
	}

	for len(worklist) > 0 {
		ptr := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if obj, ok := g.oldGen[ptr]; ok {
			if obj.marked {
				continue
			}

			obj.marked = true
		} else if obj, ok := g.nurseryObjects[ptr]; ok {
			if obj.marked {
				continue
			}

			obj.marked = true
		} else {
			continue
		}

		if g.trace != nil {
			worklist = append(worklist, g.trace(ptr)...)
		}
	}

	var collected int
	var freed uintptr

	for ptr, obj := range g.oldGen {
		if obj.marked {
			continue
		}

		delete(g.oldGen, ptr)
		g.alloc.Free(ptr)

		if g.onFree != nil {
			g.onFree(ptr, obj.size)
		}

		collected++
		freed += obj.size
	}

	// Promote every surviving nursery object, then reset the nursery: the
	// bump allocator is now safe to reclaim in full.
	for ptr, obj := range g.nurseryObjects {
		if obj.marked {
			g.oldGen[ptr] = obj
		} else {
			collected++
			freed += obj.size

			if g.onFree != nil {
				g.onFree(ptr, obj.size)
			}
		}
	}

	g.nurseryObjects = make(map[unsafe.Pointer]*objectInfo)
	g.nursery.Reset()
	g.majorCount++

	return CollectionStats{Kind: "major", ObjectsCollected: collected, BytesFreed: freed}
}

// Counts returns the number of minor and major collections run so far.
func (g *GenerationalGC) Counts() (minor, major int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.minorCount, g.majorCount
}
