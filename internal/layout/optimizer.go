package layout

import (
	"fmt"
	"sort"
	"sync"
)

// AccessType classifies how a field of a tracked struct was touched.
type AccessType int

const (
	AccessRead AccessType = iota
	AccessWrite
	AccessReadWrite
)

// StructID and FieldID identify a tracked struct type and one of its
// fields. Generated code supplies these via the ABI access-recording hook;
// this package never needs to know the struct's Go representation.
type StructID uint64

type FieldID uint64

// LayoutOptimization is a suggested change to a struct's memory layout.
// Exactly one of the variant-specific fields is meaningful, selected by Kind.
type OptimizationKind int

const (
	OptStructReordering OptimizationKind = iota
	OptArrayTransposition
	OptMemoryBlockReorganization
)

type LayoutOptimization struct {
	Kind           OptimizationKind
	StructID       StructID
	NewFieldOrder  []FieldID // OptStructReordering
	ArrayID        uint64    // OptArrayTransposition
	NewDimensions  []int     // OptArrayTransposition
	BlockID        uint64    // OptMemoryBlockReorganization
	NewBlockLayout ProposedLayout
}

// ProposedLayout is the optimizer's own notion of a layout, distinct from
// StructLayout (which is byte-offset math for codegen): it records field
// order and padding counts without committing to absolute offsets.
type ProposedLayout struct {
	Alignment  int64
	FieldOrder []FieldID
	Padding    []int
}

// FieldAccessStats aggregates accesses to one field of one tracked struct.
type FieldAccessStats struct {
	AccessCount  uint64
	Size         int
	CacheHits    uint64
	CacheMisses  uint64
}

// CacheAnalysis summarizes a struct's cache behavior from recorded accesses.
type CacheAnalysis struct {
	StructID           StructID
	CacheLocalityScore float64 // 0 (poor) .. 1 (perfect)
	CacheMissRate      float64
	FieldAccesses      map[FieldID]*FieldAccessStats
}

// SimdOpportunity describes how amenable a struct is to SIMD vectorization.
type SimdOpportunity struct {
	StructID             StructID
	SimdUtilizationScore float64 // 0 .. 1
	VectorizableFields   []FieldID
}

// OptimizerStats is the optimizer's running totals, exposed via get_stats
// equivalent (GetStats below).
type OptimizerStats struct {
	TotalAccesses        uint64
	StructuresTracked    int
	OptimizationsApplied int
}

// accessProfiler records raw field accesses; it is the layout package's own
// lightweight recorder, distinct from internal/profiler's allocation-focused
// memory profiler — this one tracks per-field touch counts, not bytes
// allocated/freed.
type accessProfiler struct {
	mu      sync.RWMutex
	records map[StructID]map[FieldID]*FieldAccessStats
	total   uint64
}

func newAccessProfiler() *accessProfiler {
	return &accessProfiler{records: make(map[StructID]map[FieldID]*FieldAccessStats)}
}

func (p *accessProfiler) recordAccess(sid StructID, fid FieldID, size int, _ AccessType) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fields, ok := p.records[sid]
	if !ok {
		fields = make(map[FieldID]*FieldAccessStats)
		p.records[sid] = fields
	}

	stat, ok := fields[fid]
	if !ok {
		stat = &FieldAccessStats{Size: size}
		fields[fid] = stat
	}

	stat.AccessCount++
	p.total++
}

func (p *accessProfiler) patterns() map[StructID]map[FieldID]*FieldAccessStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Deep copy so callers can't mutate the recorder's internal state.
	out := make(map[StructID]map[FieldID]*FieldAccessStats, len(p.records))
	for sid, fields := range p.records {
		fieldsCopy := make(map[FieldID]*FieldAccessStats, len(fields))
		for fid, stat := range fields {
			s := *stat
			fieldsCopy[fid] = &s
		}
		out[sid] = fieldsCopy
	}

	return out
}

func (p *accessProfiler) totalAccesses() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.total
}

func (p *accessProfiler) structuresTracked() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.records)
}

// CacheLocalityAnalyzer turns raw field-access patterns into a per-struct
// cache-locality score. A struct whose hottest fields are clustered (few
// distinct fields carrying most of the accesses, each reasonably sized for
// a cache line) scores close to 1; one with many equally-hot, scattered
// fields scores low.
type CacheLocalityAnalyzer struct{}

func NewCacheLocalityAnalyzer() *CacheLocalityAnalyzer { return &CacheLocalityAnalyzer{} }

func (a *CacheLocalityAnalyzer) AnalyzePatterns(patterns map[StructID]map[FieldID]*FieldAccessStats) (map[StructID]*CacheAnalysis, error) {
	result := make(map[StructID]*CacheAnalysis, len(patterns))

	for sid, fields := range patterns {
		var totalAccesses uint64
		var totalBytesTouched int64

		for _, stat := range fields {
			totalAccesses += stat.AccessCount
			totalBytesTouched += int64(stat.Size) * int64(stat.AccessCount)
		}

		score := cacheLocalityScore(fields, totalAccesses)

		result[sid] = &CacheAnalysis{
			StructID:           sid,
			CacheLocalityScore: score,
			CacheMissRate:      1.0 - score,
			FieldAccesses:      fields,
		}
	}

	return result, nil
}

// cacheLocalityScore approximates locality as the fraction of total accesses
// concentrated in the field(s) that together fit within one 64-byte cache
// line's worth of size budget — a struct whose hot data is compact scores
// high regardless of how many cold fields surround it.
func cacheLocalityScore(fields map[FieldID]*FieldAccessStats, totalAccesses uint64) float64 {
	if totalAccesses == 0 || len(fields) == 0 {
		return 1.0
	}

	type entry struct {
		fid  FieldID
		stat *FieldAccessStats
	}

	entries := make([]entry, 0, len(fields))
	for fid, stat := range fields {
		entries = append(entries, entry{fid, stat})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].stat.AccessCount > entries[j].stat.AccessCount
	})

	const cacheLineBytes = 64

	var bytesUsed int64
	var hotAccesses uint64

	for _, e := range entries {
		if bytesUsed+int64(e.stat.Size) > cacheLineBytes {
			break
		}

		bytesUsed += int64(e.stat.Size)
		hotAccesses += e.stat.AccessCount
	}

	return float64(hotAccesses) / float64(totalAccesses)
}

// SimdOpportunityDetector looks for structs whose hot fields are
// same-sized, fixed-width numeric-shaped data — the shape SIMD lanes can
// chew through — and scores how much of the struct's traffic would benefit.
type SimdOpportunityDetector struct{}

func NewSimdOpportunityDetector() *SimdOpportunityDetector { return &SimdOpportunityDetector{} }

func (d *SimdOpportunityDetector) DetectOpportunities(patterns map[StructID]map[FieldID]*FieldAccessStats) ([]SimdOpportunity, error) {
	opportunities := make([]SimdOpportunity, 0, len(patterns))

	for sid, fields := range patterns {
		// Group same-size fields: same-size runs are what a vector unit can
		// process in lockstep (float32x4, int64x2, ...).
		bySize := make(map[int][]FieldID)
		var totalAccesses uint64

		for fid, stat := range fields {
			bySize[stat.Size] = append(bySize[stat.Size], fid)
			totalAccesses += stat.AccessCount
		}

		var best []FieldID
		var bestAccesses uint64

		for _, group := range bySize {
			if len(group) < 2 {
				continue // nothing to vectorize with a single lane
			}

			var groupAccesses uint64
			for _, fid := range group {
				groupAccesses += fields[fid].AccessCount
			}

			if groupAccesses > bestAccesses {
				bestAccesses = groupAccesses
				best = group
			}
		}

		score := 0.0
		if totalAccesses > 0 {
			score = float64(bestAccesses) / float64(totalAccesses)
		}

		opportunities = append(opportunities, SimdOpportunity{
			StructID:             sid,
			SimdUtilizationScore: score,
			VectorizableFields:   best,
		})
	}

	return opportunities, nil
}

// LayoutValidator performs the safety check apply_optimization gates on:
// a struct reordering is safe only if it is a permutation of the fields
// the caller already told us about (no field invented or dropped).
type LayoutValidator struct {
	mu    sync.RWMutex
	known map[StructID]map[FieldID]struct{}
}

func NewLayoutValidator() *LayoutValidator {
	return &LayoutValidator{known: make(map[StructID]map[FieldID]struct{})}
}

// RegisterStruct tells the validator which fields a struct legitimately has,
// so IsSafe can reject a reordering that drops or invents a field.
func (v *LayoutValidator) RegisterStruct(sid StructID, fields []FieldID) {
	v.mu.Lock()
	defer v.mu.Unlock()

	set := make(map[FieldID]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}

	v.known[sid] = set
}

func (v *LayoutValidator) IsSafe(opt *LayoutOptimization) (bool, error) {
	if opt.Kind != OptStructReordering {
		return true, nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	known, ok := v.known[opt.StructID]
	if !ok {
		// Unregistered structs have never had a layout decided for them;
		// refuse rather than guess.
		return false, nil
	}

	if len(opt.NewFieldOrder) != len(known) {
		return false, nil
	}

	seen := make(map[FieldID]struct{}, len(opt.NewFieldOrder))
	for _, f := range opt.NewFieldOrder {
		if _, ok := known[f]; !ok {
			return false, nil
		}
		if _, dup := seen[f]; dup {
			return false, nil
		}
		seen[f] = struct{}{}
	}

	return true, nil
}

// LayoutTransformer applies a validated LayoutOptimization by recording the
// new layout decision; it never rewrites live memory (this repo, like the
// system it follows, leaves in-place object migration to codegen/GC
// cooperation outside this package's scope).
type LayoutTransformer struct {
	mu      sync.RWMutex
	applied int
	layouts map[StructID]ProposedLayout
}

func NewLayoutTransformer() *LayoutTransformer {
	return &LayoutTransformer{layouts: make(map[StructID]ProposedLayout)}
}

func (t *LayoutTransformer) Apply(opt *LayoutOptimization) error {
	switch opt.Kind {
	case OptStructReordering:
		return t.applyStructReordering(opt)
	case OptArrayTransposition, OptMemoryBlockReorganization:
		// Matches the upstream implementation these are modeled on: these
		// variants are recognized but not yet transformed.
		t.mu.Lock()
		t.applied++
		t.mu.Unlock()

		return nil
	default:
		return fmt.Errorf("layout: unknown optimization kind %v", opt.Kind)
	}
}

func (t *LayoutTransformer) applyStructReordering(opt *LayoutOptimization) error {
	// SSE alignment (16), the same value as the byte-layout side's
	// LayoutCalculator.MaxAlignment.
	const alignment = 16

	n := len(opt.NewFieldOrder)
	padCount := n - 1
	if padCount < 1 {
		padCount = 1
	}

	padding := make([]int, padCount)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.layouts[opt.StructID] = ProposedLayout{
		Alignment:  alignment,
		FieldOrder: append([]FieldID(nil), opt.NewFieldOrder...),
		Padding:    padding,
	}
	t.applied++

	return nil
}

func (t *LayoutTransformer) OptimizationsApplied() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.applied
}

func (t *LayoutTransformer) GetLayout(sid StructID) (ProposedLayout, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	l, ok := t.layouts[sid]

	return l, ok
}

// DataLayoutOptimizer coordinates the recorder, analyzer, detector,
// transformer and validator into the analyze -> decide -> validate -> apply
// pipeline a JIT tier-up would drive.
type DataLayoutOptimizer struct {
	mu          sync.RWMutex
	profiler    *accessProfiler
	analyzer    *CacheLocalityAnalyzer
	simd        *SimdOpportunityDetector
	transformer *LayoutTransformer
	validator   *LayoutValidator
	enabled     bool
}

func NewDataLayoutOptimizer() *DataLayoutOptimizer {
	return &DataLayoutOptimizer{
		profiler:    newAccessProfiler(),
		analyzer:    NewCacheLocalityAnalyzer(),
		simd:        NewSimdOpportunityDetector(),
		transformer: NewLayoutTransformer(),
		validator:   NewLayoutValidator(),
		enabled:     true,
	}
}

// RegisterStruct tells the optimizer's validator the legitimate field set
// for a struct, so later reorderings can be checked for safety.
func (o *DataLayoutOptimizer) RegisterStruct(sid StructID, fields []FieldID) {
	o.validator.RegisterStruct(sid, fields)
}

func (o *DataLayoutOptimizer) SetEnabled(enabled bool) {
	o.mu.Lock()
	o.enabled = enabled
	o.mu.Unlock()
}

func (o *DataLayoutOptimizer) RecordAccess(sid StructID, fid FieldID, size int, accessType AccessType) {
	o.mu.RLock()
	enabled := o.enabled
	o.mu.RUnlock()

	if !enabled {
		return
	}

	o.profiler.recordAccess(sid, fid, size, accessType)
}

// AnalyzeAndOptimize runs the full pipeline and returns the suggested
// optimizations, without applying any of them.
func (o *DataLayoutOptimizer) AnalyzeAndOptimize() ([]LayoutOptimization, error) {
	o.mu.RLock()
	enabled := o.enabled
	o.mu.RUnlock()

	if !enabled {
		return nil, nil
	}

	patterns := o.profiler.patterns()

	cacheAnalysis, err := o.analyzer.AnalyzePatterns(patterns)
	if err != nil {
		return nil, err
	}

	simdOpportunities, err := o.simd.DetectOpportunities(patterns)
	if err != nil {
		return nil, err
	}

	var optimizations []LayoutOptimization

	for sid, analysis := range cacheAnalysis {
		opt, err := o.generateOptimization(sid, analysis, simdOpportunities)
		if err != nil {
			return nil, err
		}

		if opt != nil {
			optimizations = append(optimizations, *opt)
		}
	}

	return optimizations, nil
}

// ApplyOptimization validates then applies a single suggested optimization.
func (o *DataLayoutOptimizer) ApplyOptimization(opt *LayoutOptimization) error {
	safe, err := o.validator.IsSafe(opt)
	if err != nil {
		return err
	}

	if !safe {
		return fmt.Errorf("layout: optimization failed safety check for struct %d", opt.StructID)
	}

	return o.transformer.Apply(opt)
}

// generateOptimization decides whether a struct is worth reordering: poor
// cache locality or a strong SIMD opportunity both justify it.
func (o *DataLayoutOptimizer) generateOptimization(sid StructID, analysis *CacheAnalysis, simdOpportunities []SimdOpportunity) (*LayoutOptimization, error) {
	simdScore := 0.0

	for _, opp := range simdOpportunities {
		if opp.StructID == sid {
			simdScore = opp.SimdUtilizationScore
			break
		}
	}

	if analysis.CacheLocalityScore < 0.5 || simdScore > 0.7 {
		order := o.suggestFieldOrder(analysis)

		return &LayoutOptimization{
			Kind:          OptStructReordering,
			StructID:      sid,
			NewFieldOrder: order,
		}, nil
	}

	return nil, nil
}

// suggestFieldOrder orders fields by descending access frequency, then by
// descending size, so the hottest and largest fields land first (best for
// both cache-line packing and alignment).
func (o *DataLayoutOptimizer) suggestFieldOrder(analysis *CacheAnalysis) []FieldID {
	type entry struct {
		fid  FieldID
		stat *FieldAccessStats
	}

	entries := make([]entry, 0, len(analysis.FieldAccesses))
	for fid, stat := range analysis.FieldAccesses {
		entries = append(entries, entry{fid, stat})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].stat.AccessCount != entries[j].stat.AccessCount {
			return entries[i].stat.AccessCount > entries[j].stat.AccessCount
		}

		return entries[i].stat.Size > entries[j].stat.Size
	})

	order := make([]FieldID, len(entries))
	for i, e := range entries {
		order[i] = e.fid
	}

	return order
}

func (o *DataLayoutOptimizer) GetStats() OptimizerStats {
	return OptimizerStats{
		TotalAccesses:        o.profiler.totalAccesses(),
		StructuresTracked:    o.profiler.structuresTracked(),
		OptimizationsApplied: o.transformer.OptimizationsApplied(),
	}
}
