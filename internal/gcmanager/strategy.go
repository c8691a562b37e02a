// Package gcmanager implements the pluggable garbage-collection strategies
// (reference counting, mark-and-sweep, generational, no-op) layered on top
// of internal/allocator's system allocator, plus the Manager that owns
// strategy selection, root tracking, and heap-pressure-triggered collection.
package gcmanager

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/cschram/otterlang/internal/allocator"
)

// CollectionStats reports the outcome of one Collect call.
type CollectionStats struct {
	Kind             string // "none", "mark-sweep", "minor", "major"
	ObjectsCollected int
	BytesFreed       uintptr
}

// Tracer enumerates the pointer-typed fields of an object so a tracing
// collector can follow the object graph from a set of roots. Generated code
// supplies this per type; a nil Tracer means objects are treated as leaves
// (only directly-rooted objects survive).
type Tracer func(ptr unsafe.Pointer) []unsafe.Pointer

// Strategy is implemented by every garbage-collection algorithm the Manager
// can select between.
type Strategy interface {
	Name() string
	Alloc(size uintptr) (unsafe.Pointer, error)
	AddRoot(ptr unsafe.Pointer)
	RemoveRoot(ptr unsafe.Pointer)
	RegisterObject(ptr unsafe.Pointer, size uintptr)
	Collect() CollectionStats
}

// objectInfo tracks one object a tracing collector is responsible for.
type objectInfo struct {
	size   uintptr
	marked bool
}

// NoOpGC never reclaims memory; every allocation is permanent until process
// exit. Useful for short-lived processes or debugging allocator pressure in
// isolation from collection pauses.
type NoOpGC struct {
	alloc allocator.Allocator
}

func NewNoOpGC(alloc allocator.Allocator) *NoOpGC { return &NoOpGC{alloc: alloc} }

func (g *NoOpGC) Name() string { return "noop" }

func (g *NoOpGC) Alloc(size uintptr) (unsafe.Pointer, error) {
	ptr := g.alloc.Alloc(size)
	if ptr == nil && size > 0 {
		return nil, ErrOutOfMemory
	}

	return ptr, nil
}

func (g *NoOpGC) AddRoot(ptr unsafe.Pointer)                    {}
func (g *NoOpGC) RemoveRoot(ptr unsafe.Pointer)                 {}
func (g *NoOpGC) RegisterObject(ptr unsafe.Pointer, size uintptr) {}

func (g *NoOpGC) Collect() CollectionStats {
	return CollectionStats{Kind: "none"}
}

// RcGC is reference-counted collection: objects are freed the instant their
// count drops to zero via DecRef, never in a batch Collect pass. AddRoot,
// RemoveRoot and RegisterObject are no-ops here — the refcount itself is the
// liveness record, so there is nothing separate to track.
type RcGC struct {
	alloc allocator.Allocator
	mu    sync.Mutex
	refs  map[unsafe.Pointer]*int64
}

func NewRcGC(alloc allocator.Allocator) *RcGC {
	return &RcGC{alloc: alloc, refs: make(map[unsafe.Pointer]*int64)}
}

func (g *RcGC) Name() string { return "rc" }

func (g *RcGC) Alloc(size uintptr) (unsafe.Pointer, error) {
	ptr := g.alloc.Alloc(size)
	if ptr == nil && size > 0 {
		return nil, ErrOutOfMemory
	}

	count := int64(1)

	g.mu.Lock()
	g.refs[ptr] = &count
	g.mu.Unlock()

	return ptr, nil
}

func (g *RcGC) AddRoot(ptr unsafe.Pointer)                    {}
func (g *RcGC) RemoveRoot(ptr unsafe.Pointer)                 {}
func (g *RcGC) RegisterObject(ptr unsafe.Pointer, size uintptr) {}

// Collect is a no-op for RC: there is nothing batched to sweep.
func (g *RcGC) Collect() CollectionStats {
	return CollectionStats{Kind: "none"}
}

// IncRef increments ptr's reference count.
func (g *RcGC) IncRef(ptr unsafe.Pointer) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if count, ok := g.refs[ptr]; ok {
		*count++
	}
}

// DecRef decrements ptr's reference count, freeing it immediately if the
// count reaches zero. Decrementing an unknown pointer is silently ignored.
func (g *RcGC) DecRef(ptr unsafe.Pointer) {
	g.mu.Lock()
	count, ok := g.refs[ptr]
	if !ok {
		g.mu.Unlock()

		return
	}

	*count--
	dead := *count <= 0
	if dead {
		delete(g.refs, ptr)
	}
	g.mu.Unlock()

	if dead {
		g.alloc.Free(ptr)
	}
}

// MarkSweepGC is a classic tracing collector: roots are marked, reachable
// objects are traced via Tracer, and anything left unmarked after the trace
// is swept and freed.
type MarkSweepGC struct {
	alloc   allocator.Allocator
	trace   Tracer
	onFree  func(ptr unsafe.Pointer, size uintptr)
	mu      sync.Mutex
	roots   map[unsafe.Pointer]struct{}
	objects map[unsafe.Pointer]*objectInfo
}

// NewMarkSweepGC constructs a mark-sweep collector. onFree, if non-nil, is
// called for every object the sweep reclaims — the Manager wires this to the
// profiler's memory deallocation recording.
func NewMarkSweepGC(alloc allocator.Allocator, trace Tracer, onFree func(ptr unsafe.Pointer, size uintptr)) *MarkSweepGC {
	return &MarkSweepGC{
		alloc:   alloc,
		trace:   trace,
		onFree:  onFree,
		roots:   make(map[unsafe.Pointer]struct{}),
		objects: make(map[unsafe.Pointer]*objectInfo),
	}
}

func (g *MarkSweepGC) Name() string { return "mark-sweep" }

func (g *MarkSweepGC) Alloc(size uintptr) (unsafe.Pointer, error) {
	ptr := g.alloc.Alloc(size)
	if ptr == nil && size > 0 {
		return nil, ErrOutOfMemory
	}

	g.RegisterObject(ptr, size)

	return ptr, nil
}

func (g *MarkSweepGC) AddRoot(ptr unsafe.Pointer) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.roots[ptr] = struct{}{}
}

// RemoveRoot silently tolerates removing a pointer that was never (or is no
// longer) a root.
func (g *MarkSweepGC) RemoveRoot(ptr unsafe.Pointer) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.roots, ptr)
}

func (g *MarkSweepGC) RegisterObject(ptr unsafe.Pointer, size uintptr) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.objects[ptr] = &objectInfo{size: size}
}

func (g *MarkSweepGC) Collect() CollectionStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, obj := range g.objects {
		obj.marked = false
	}

	worklist := make([]unsafe.Pointer, 0, len(g.roots))
	for root := range g.roots {
		worklist = append(worklist, root)
	}

	for len(worklist) > 0 {
		ptr := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		obj, ok := g.objects[ptr]
		if !ok || obj.marked {
			continue
		}

		obj.marked = true

		if g.trace != nil {
			worklist = append(worklist, g.trace(ptr)...)
		}
	}

	var collected int
	var freed uintptr

	for ptr, obj := range g.objects {
		if obj.marked {
			continue
		}

		delete(g.objects, ptr)
		g.alloc.Free(ptr)

		if g.onFree != nil {
			g.onFree(ptr, obj.size)
		}

		collected++
		freed += obj.size
	}

	return CollectionStats{Kind: "mark-sweep", ObjectsCollected: collected, BytesFreed: freed}
}

var ErrOutOfMemory = fmt.Errorf("gcmanager: allocator returned no memory")
