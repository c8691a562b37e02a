package scheduler

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// LoadMetrics is one sample of system load.
type LoadMetrics struct {
	CPUUsagePercent    float64
	MemoryUsagePercent float64
	ActiveThreads      int
	Timestamp          time.Time
}

// Monitor samples CPU%, memory%, and goroutine count on a throttled
// interval, and derives blocking/contention/idle signals a Rebalancer
// consumes. ActiveThreads uses runtime.NumGoroutine(), a real per-process
// count — an improvement on approximating thread count with logical CPU
// count the way the original does (sysinfo has no portable thread-count
// API, but Go exposes its own scheduler's goroutine count directly).
type Monitor struct {
	mu             sync.RWMutex
	lastUpdate     time.Time
	updateInterval time.Duration
	metrics        LoadMetrics
	numCPU         int
}

func NewMonitor() *Monitor {
	return &Monitor{
		updateInterval: 100 * time.Millisecond,
		numCPU:         runtime.NumCPU(),
	}
}

// Update resamples system load if at least updateInterval has elapsed since
// the last sample; otherwise it is a throttled no-op.
func (m *Monitor) Update() error {
	now := time.Now()

	m.mu.Lock()
	if now.Sub(m.lastUpdate) < m.updateInterval {
		m.mu.Unlock()

		return nil
	}
	m.mu.Unlock()

	percents, err := cpu.Percent(0, false)
	if err != nil {
		return fmt.Errorf("scheduler: sampling cpu usage: %w", err)
	}

	var cpuUsage float64
	if len(percents) > 0 {
		cpuUsage = percents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("scheduler: sampling memory usage: %w", err)
	}

	m.mu.Lock()
	m.metrics = LoadMetrics{
		CPUUsagePercent:    cpuUsage,
		MemoryUsagePercent: vm.UsedPercent,
		ActiveThreads:      runtime.NumGoroutine(),
		Timestamp:          now,
	}
	m.lastUpdate = now
	m.mu.Unlock()

	return nil
}

// CurrentLoad returns the most recent sample.
func (m *Monitor) CurrentLoad() LoadMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.metrics
}

// DetectBlocking flags CPU usage above 80% as likely indicating threads
// blocked on contended work rather than making progress.
func (m *Monitor) DetectBlocking() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.metrics.CPUUsagePercent > 80.0
}

// DetectContention flags more active goroutines than twice the CPU count
// combined with high CPU usage as resource contention.
func (m *Monitor) DetectContention() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.metrics.ActiveThreads > m.numCPU*2 && m.metrics.CPUUsagePercent > 70.0
}

// DetectIdleCycles flags low CPU usage with fewer active goroutines than
// CPUs as underused capacity.
func (m *Monitor) DetectIdleCycles() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.metrics.CPUUsagePercent < 20.0 && m.metrics.ActiveThreads < m.numCPU
}

// NumCPU returns the logical CPU count this Monitor was constructed with.
func (m *Monitor) NumCPU() int {
	return m.numCPU
}
