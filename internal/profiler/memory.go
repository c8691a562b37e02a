package profiler

import (
	"sort"
	"sync"
)

// AllocationEvent records one tracked allocation, kept in a bounded history
// ring for post-hoc inspection.
type AllocationEvent struct {
	Ptr          uintptr
	Size         int
	FunctionName string
	TimestampMs  int64
	StackTrace   []string // nil unless stack trace collection is enabled
}

// DeallocationEvent records one tracked deallocation.
type DeallocationEvent struct {
	Ptr         uintptr
	TimestampMs int64
}

// FunctionMemoryStats aggregates allocation behavior for one function.
type FunctionMemoryStats struct {
	FunctionName      string
	TotalAllocated    int
	TotalDeallocated  int
	CurrentUsage      int
	PeakUsage         int
	AllocationCount   uint64
	DeallocationCount uint64
	SizeHistogram     map[int]uint64 // bucketed by next power of two
}

func newFunctionMemoryStats(name string) *FunctionMemoryStats {
	return &FunctionMemoryStats{FunctionName: name, SizeHistogram: make(map[int]uint64)}
}

// RecordAllocation folds size bytes of allocation into this function's stats.
func (s *FunctionMemoryStats) RecordAllocation(size int) {
	s.TotalAllocated += size
	s.CurrentUsage += size
	s.AllocationCount++

	if s.CurrentUsage > s.PeakUsage {
		s.PeakUsage = s.CurrentUsage
	}

	s.SizeHistogram[nextPowerOfTwo(size)]++
}

// RecordDeallocation folds size bytes of deallocation into this function's
// stats. CurrentUsage never goes negative (saturating subtraction).
func (s *FunctionMemoryStats) RecordDeallocation(size int) {
	s.TotalDeallocated += size
	if size > s.CurrentUsage {
		s.CurrentUsage = 0
	} else {
		s.CurrentUsage -= size
	}

	s.DeallocationCount++
}

// NetUsage is total allocated minus total deallocated, which can be negative
// only in the impossible case of deallocating more than was ever allocated.
func (s *FunctionMemoryStats) NetUsage() int {
	return s.TotalAllocated - s.TotalDeallocated
}

// PotentialLeak flags a function whose outstanding (unfreed) allocations
// exceed 80% of everything it has allocated, while holding onto at least
// 1MB — small short-lived imbalances are not worth flagging.
func (s *FunctionMemoryStats) PotentialLeak() bool {
	const leakThreshold = 0.8
	const minOutstandingBytes = 1024 * 1024

	if s.AllocationCount == 0 {
		return false
	}

	outstanding := s.AllocationCount
	if s.DeallocationCount < outstanding {
		outstanding -= s.DeallocationCount
	} else {
		outstanding = 0
	}

	ratio := float64(outstanding) / float64(s.AllocationCount)

	return ratio > leakThreshold && s.CurrentUsage > minOutstandingBytes
}

// AvgAllocationSize is the mean allocation size, 0 if never allocated.
func (s *FunctionMemoryStats) AvgAllocationSize() float64 {
	if s.AllocationCount == 0 {
		return 0
	}

	return float64(s.TotalAllocated) / float64(s.AllocationCount)
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}

	p := 1
	for p < n {
		p <<= 1
	}

	return p
}

// MemoryProfiler is the allocation/deallocation tracker embedded in
// Profiler. Unlike internal/layout's access-pattern recorder, this tracks
// actual bytes in and out per function, for leak detection and fragmentation
// estimation.
type MemoryProfiler struct {
	mu                 sync.RWMutex
	functionStats      map[string]*FunctionMemoryStats
	activeAllocations  map[uintptr]activeAlloc
	collectStackTraces bool
	history            []AllocationEvent
	maxHistorySize     int
}

type activeAlloc struct {
	size         int
	functionName string
}

func NewMemoryProfiler() *MemoryProfiler {
	return &MemoryProfiler{
		functionStats:     make(map[string]*FunctionMemoryStats),
		activeAllocations: make(map[uintptr]activeAlloc),
		maxHistorySize:    10000,
	}
}

// SetCollectStackTraces toggles the (expensive) stack trace capture that
// accompanies every recorded allocation.
func (p *MemoryProfiler) SetCollectStackTraces(enabled bool) {
	p.mu.Lock()
	p.collectStackTraces = enabled
	p.mu.Unlock()
}

// RecordAllocation tracks a new allocation at ptr, attributing it to
// functionName. nowMs is the caller-supplied timestamp (this package never
// calls time.Now itself so callers control determinism in tests).
func (p *MemoryProfiler) RecordAllocation(ptr uintptr, size int, functionName string, nowMs int64, stackTrace []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats, ok := p.functionStats[functionName]
	if !ok {
		stats = newFunctionMemoryStats(functionName)
		p.functionStats[functionName] = stats
	}

	stats.RecordAllocation(size)

	p.activeAllocations[ptr] = activeAlloc{size: size, functionName: functionName}

	if len(p.history) >= p.maxHistorySize {
		p.history = p.history[1:]
	}

	event := AllocationEvent{Ptr: ptr, Size: size, FunctionName: functionName, TimestampMs: nowMs}
	if p.collectStackTraces {
		event.StackTrace = stackTrace
	}

	p.history = append(p.history, event)
}

// RecordDeallocation tracks a deallocation at ptr. Deallocating an unknown
// pointer is silently ignored, matching the spec's "silently tolerated"
// double-free/unknown-pointer handling.
func (p *MemoryProfiler) RecordDeallocation(ptr uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()

	alloc, ok := p.activeAllocations[ptr]
	if !ok {
		return
	}

	delete(p.activeAllocations, ptr)

	if stats, ok := p.functionStats[alloc.functionName]; ok {
		stats.RecordDeallocation(alloc.size)
	}
}

// FunctionStats returns a copy of one function's memory stats, if tracked.
func (p *MemoryProfiler) FunctionStats(functionName string) (FunctionMemoryStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.functionStats[functionName]
	if !ok {
		return FunctionMemoryStats{}, false
	}

	return *s, true
}

// AllStats returns a snapshot of every tracked function's memory stats.
func (p *MemoryProfiler) AllStats() []FunctionMemoryStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]FunctionMemoryStats, 0, len(p.functionStats))
	for _, s := range p.functionStats {
		out = append(out, *s)
	}

	return out
}

// TotalMemoryUsage sums current usage across every tracked function.
func (p *MemoryProfiler) TotalMemoryUsage() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := 0
	for _, s := range p.functionStats {
		total += s.CurrentUsage
	}

	return total
}

// PotentialLeaks returns the subset of tracked functions PotentialLeak flags.
func (p *MemoryProfiler) PotentialLeaks() []FunctionMemoryStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var leaks []FunctionMemoryStats
	for _, s := range p.functionStats {
		if s.PotentialLeak() {
			leaks = append(leaks, *s)
		}
	}

	return leaks
}

// AllocationHistory returns a copy of the bounded allocation event history.
func (p *MemoryProfiler) AllocationHistory() []AllocationEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]AllocationEvent, len(p.history))
	copy(out, p.history)

	return out
}

// Clear resets all tracked state.
func (p *MemoryProfiler) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.functionStats = make(map[string]*FunctionMemoryStats)
	p.activeAllocations = make(map[uintptr]activeAlloc)
	p.history = nil
}

// FragmentationEstimate approximates heap fragmentation as the average gap
// between sorted active-allocation addresses relative to their average size
// capped at 1.0 (a gap many times larger than the typical allocation is
// "fully fragmented" for this estimate's purposes).
func (p *MemoryProfiler) FragmentationEstimate() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.activeAllocations) < 2 {
		return 0.0
	}

	ptrs := make([]uintptr, 0, len(p.activeAllocations))
	var totalSize int

	for ptr, alloc := range p.activeAllocations {
		ptrs = append(ptrs, ptr)
		totalSize += alloc.size
	}

	sort.Slice(ptrs, func(i, j int) bool { return ptrs[i] < ptrs[j] })

	var gapSum uintptr
	for i := 1; i < len(ptrs); i++ {
		gapSum += ptrs[i] - ptrs[i-1]
	}

	avgGap := float64(gapSum) / float64(len(ptrs)-1)
	avgSize := float64(totalSize) / float64(len(p.activeAllocations))

	if avgSize <= 0 {
		return 0.0
	}

	ratio := avgGap / avgSize
	if ratio > 1.0 {
		ratio = 1.0
	}

	return ratio
}
