// Package profiler tracks per-function call timing and memory usage so the
// tiered compiler and layout optimizer have data to act on, and surfaces hot
// functions for promotion decisions.
package profiler

import (
	"sort"
	"sync"
)

// FunctionMetrics accumulates call-timing statistics for one function.
type FunctionMetrics struct {
	FunctionName   string
	CallCount      uint64
	TotalTimeNanos uint64
	MinTimeNanos   uint64
	MaxTimeNanos   uint64
}

// RecordCall folds one call's duration into the running statistics.
func (m *FunctionMetrics) RecordCall(durationNanos uint64) {
	m.CallCount++
	m.TotalTimeNanos += durationNanos

	if m.MinTimeNanos == 0 || durationNanos < m.MinTimeNanos {
		m.MinTimeNanos = durationNanos
	}

	if durationNanos > m.MaxTimeNanos {
		m.MaxTimeNanos = durationNanos
	}
}

// AvgTimeNanos is the mean call duration, 0 if the function was never called.
func (m *FunctionMetrics) AvgTimeNanos() float64 {
	if m.CallCount == 0 {
		return 0
	}

	return float64(m.TotalTimeNanos) / float64(m.CallCount)
}

// TimePercentage is this function's share of totalTimeNanos spent across all
// profiled functions.
func (m *FunctionMetrics) TimePercentage(totalTimeNanos uint64) float64 {
	if totalTimeNanos == 0 {
		return 0
	}

	return float64(m.TotalTimeNanos) / float64(totalTimeNanos) * 100.0
}

// HotDetectorConfig controls how aggressively functions are flagged as hot.
type HotDetectorConfig struct {
	CallThreshold        uint64
	TimeThresholdPercent float64
}

// DefaultHotDetectorConfig matches the thresholds the original profiler crate
// ships with: 1000 calls, or 5% of total observed runtime.
func DefaultHotDetectorConfig() HotDetectorConfig {
	return HotDetectorConfig{CallThreshold: 1000, TimeThresholdPercent: 5.0}
}

// HotReason records which threshold(s) a hot function crossed.
type HotReason int

const (
	HighCallCount HotReason = iota
	HighTimePercentage
	BothHotReasons
)

// HotFunction is one function the detector judged worth tier-promoting.
type HotFunction struct {
	FunctionName string
	CallCount    uint64
	TotalTime    uint64
	Reason       HotReason
}

// DetectHotFunctions flags functions whose call count or time share exceeds
// the configured thresholds, sorted by call count then total time
// descending so the hottest functions are promoted first.
func DetectHotFunctions(metrics []FunctionMetrics, totalTimeNanos uint64, cfg HotDetectorConfig) []HotFunction {
	var hot []HotFunction

	for _, m := range metrics {
		highCalls := m.CallCount >= cfg.CallThreshold
		highTime := m.TimePercentage(totalTimeNanos) >= cfg.TimeThresholdPercent

		if !highCalls && !highTime {
			continue
		}

		reason := HighCallCount
		switch {
		case highCalls && highTime:
			reason = BothHotReasons
		case highTime:
			reason = HighTimePercentage
		}

		hot = append(hot, HotFunction{
			FunctionName: m.FunctionName,
			CallCount:    m.CallCount,
			TotalTime:    m.TotalTimeNanos,
			Reason:       reason,
		})
	}

	sort.Slice(hot, func(i, j int) bool {
		if hot[i].CallCount != hot[j].CallCount {
			return hot[i].CallCount > hot[j].CallCount
		}

		return hot[i].TotalTime > hot[j].TotalTime
	})

	return hot
}

// Profiler is the process-wide call/time tracker. Constructed per-Runtime
// (tests build their own instances), never a package-level singleton.
type Profiler struct {
	mu            sync.RWMutex
	metrics       map[string]*FunctionMetrics
	hotDetectConf HotDetectorConfig
	memory        *MemoryProfiler
}

func New() *Profiler {
	return &Profiler{
		metrics:       make(map[string]*FunctionMetrics),
		hotDetectConf: DefaultHotDetectorConfig(),
		memory:        NewMemoryProfiler(),
	}
}

// Memory exposes the embedded memory profiler for allocation tracking.
func (p *Profiler) Memory() *MemoryProfiler { return p.memory }

// RecordCall records one call to functionName taking durationNanos.
func (p *Profiler) RecordCall(functionName string, durationNanos uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.metrics[functionName]
	if !ok {
		m = &FunctionMetrics{FunctionName: functionName}
		p.metrics[functionName] = m
	}

	m.RecordCall(durationNanos)
}

// AllMetrics returns a snapshot copy of every tracked function's metrics.
func (p *Profiler) AllMetrics() []FunctionMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]FunctionMetrics, 0, len(p.metrics))
	for _, m := range p.metrics {
		out = append(out, *m)
	}

	return out
}

// CheckHotFunctions sums total time across all functions and runs the hot
// detector against that baseline.
func (p *Profiler) CheckHotFunctions() []HotFunction {
	metrics := p.AllMetrics()

	var totalTime uint64
	for _, m := range metrics {
		totalTime += m.TotalTimeNanos
	}

	p.mu.RLock()
	cfg := p.hotDetectConf
	p.mu.RUnlock()

	return DetectHotFunctions(metrics, totalTime, cfg)
}

// SetHotDetectorConfig replaces the thresholds used by CheckHotFunctions.
func (p *Profiler) SetHotDetectorConfig(cfg HotDetectorConfig) {
	p.mu.Lock()
	p.hotDetectConf = cfg
	p.mu.Unlock()
}

// Snapshot is the aggregated view fed to the Prometheus collector and to
// diagnostic dumps.
type Snapshot struct {
	Functions    []FunctionMetrics
	HotFunctions []HotFunction
	Memory       []FunctionMemoryStats
	Leaks        []FunctionMemoryStats
}

func (p *Profiler) Snapshot() Snapshot {
	return Snapshot{
		Functions:    p.AllMetrics(),
		HotFunctions: p.CheckHotFunctions(),
		Memory:       p.memory.AllStats(),
		Leaks:        p.memory.PotentialLeaks(),
	}
}
