package gcmanager

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/cschram/otterlang/internal/allocator"
)

// StrategyKind enumerates the collection algorithms Manager can select.
type StrategyKind int

const (
	StrategyNoOp StrategyKind = iota
	StrategyRefCounted
	StrategyMarkSweep
	StrategyGenerational
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyNoOp:
		return "noop"
	case StrategyRefCounted:
		return "rc"
	case StrategyMarkSweep:
		return "mark-sweep"
	case StrategyGenerational:
		return "generational"
	default:
		return "unknown"
	}
}

// StrategyKindFromString parses the names used in config files and the
// OTTER_GC_STRATEGY environment variable ("rc"/"reference-counting",
// "mark-sweep"/"ms", "generational"/"gen", "none"/"noop").
func StrategyKindFromString(s string) (StrategyKind, error) {
	switch strings.ToLower(s) {
	case "rc", "reference-counting", "reference_counting":
		return StrategyRefCounted, nil
	case "mark-sweep", "mark_sweep", "ms":
		return StrategyMarkSweep, nil
	case "generational", "gen":
		return StrategyGenerational, nil
	case "none", "noop":
		return StrategyNoOp, nil
	default:
		return 0, fmt.Errorf("gcmanager: unknown strategy %q", s)
	}
}

// Config configures a Manager's initial strategy and heap-pressure trigger.
type Config struct {
	Strategy StrategyKind

	// NurserySize is only consulted for StrategyGenerational.
	NurserySize uintptr

	// Tracer supplies object-graph edges for the tracing strategies
	// (mark-sweep, generational). NoOp and RC ignore it.
	Tracer Tracer

	// OnFree, if set, is called whenever any strategy's Collect reclaims an
	// object. internal/runtime wires this to the profiler's deallocation
	// recording.
	OnFree func(ptr unsafe.Pointer, size uintptr)

	// HeapPressureBytes triggers an automatic Collect each time the bytes
	// passed to RegisterObject while collection is enabled reach this
	// threshold; the count then starts again from zero. Zero disables the
	// automatic trigger.
	HeapPressureBytes uintptr

	// DisabledHeapLimit bounds how much garbage is allowed to accumulate
	// while collection is disabled: once a successful Alloc pushes
	// DisabledBytes past this limit, the Manager re-enables itself and
	// runs Collect immediately. Zero disables the auto-re-enable.
	DisabledHeapLimit uintptr
}

type Option func(*Config)

func WithStrategy(kind StrategyKind) Option { return func(c *Config) { c.Strategy = kind } }
func WithNurserySize(size uintptr) Option   { return func(c *Config) { c.NurserySize = size } }
func WithTracer(t Tracer) Option            { return func(c *Config) { c.Tracer = t } }
func WithOnFree(f func(ptr unsafe.Pointer, size uintptr)) Option {
	return func(c *Config) { c.OnFree = f }
}
func WithHeapPressureBytes(n uintptr) Option { return func(c *Config) { c.HeapPressureBytes = n } }
func WithDisabledHeapLimit(n uintptr) Option {
	return func(c *Config) { c.DisabledHeapLimit = n }
}

func defaultConfig() *Config {
	return &Config{
		Strategy:          StrategyMarkSweep,
		NurserySize:       4 * 1024 * 1024,
		HeapPressureBytes: 10 * 1024 * 1024,
		DisabledHeapLimit: 64 * 1024 * 1024,
	}
}

// Manager owns strategy selection, a disabled-byte budget (for temporarily
// suppressing collection without losing track of how much garbage has
// accumulated while disabled), and heap-pressure-triggered collection. It is
// the type internal/runtime and internal/abi talk to; they never reach for a
// Strategy directly.
type Manager struct {
	alloc allocator.Allocator
	cfg   Config

	mu             sync.Mutex
	strategy       Strategy
	enabled        bool
	disabledBytes  uintptr
	bytesSinceGC   uintptr
	totalCollected int
}

// New builds a Manager around the given strategy kind. alloc backs the
// strategies that allocate directly from the system allocator (everything
// but generational, which owns its own arena-backed nursery).
func New(alloc allocator.Allocator, opts ...Option) (*Manager, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	m := &Manager{alloc: alloc, cfg: *cfg, enabled: true}

	strategy, err := m.buildStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	m.strategy = strategy

	return m, nil
}

func (m *Manager) buildStrategy(kind StrategyKind) (Strategy, error) {
	switch kind {
	case StrategyNoOp:
		return NewNoOpGC(m.alloc), nil
	case StrategyRefCounted:
		return NewRcGC(m.alloc), nil
	case StrategyMarkSweep:
		return NewMarkSweepGC(m.alloc, m.cfg.Tracer, m.cfg.OnFree), nil
	case StrategyGenerational:
		return NewGenerationalGC(m.alloc, m.cfg.NurserySize, m.cfg.Tracer, m.cfg.OnFree)
	default:
		return nil, fmt.Errorf("gcmanager: unknown strategy kind %v", kind)
	}
}

// SetStrategy swaps the active collection strategy. Objects tracked by the
// previous strategy are not migrated — callers typically only do this at
// startup, before any allocation has happened, matching the original's
// "strategy is a boot-time choice" usage.
func (m *Manager) SetStrategy(kind StrategyKind) error {
	strategy, err := m.buildStrategy(kind)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.strategy = strategy
	m.cfg.Strategy = kind
	m.mu.Unlock()

	return nil
}

// CurrentStrategy returns the live strategy so callers needing
// strategy-specific behavior (e.g. RcGC.IncRef/DecRef) can type-assert it.
func (m *Manager) CurrentStrategy() Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.strategy
}

// Enable re-enables collection and discards the DisabledBytes tally. The
// heap-pressure count kept by RegisterObject is left as it was; bytes
// registered while disabled were never added to it.
func (m *Manager) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = true
	m.disabledBytes = 0
}

// Disable suspends heap-pressure-triggered collection. Allocation and
// RegisterObject continue to work; only the automatic Collect trigger is
// suppressed. Bytes successfully allocated while disabled are tallied in
// DisabledBytes, and once that tally reaches DisabledHeapLimit, Alloc
// re-enables collection and runs Collect immediately.
func (m *Manager) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.disabledBytes = 0
}

func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.enabled
}

// DisabledBytes reports how many bytes have been successfully allocated
// since Disable was called (0 if currently enabled).
func (m *Manager) DisabledBytes() uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.disabledBytes
}

// Alloc allocates through the active strategy. Each successful allocation
// made while collection is disabled counts against DisabledHeapLimit; once
// the limit is reached, Alloc re-enables collection and runs Collect before
// returning, matching the original's alloc-time auto-recovery so disabled
// GC never lets garbage grow unbounded.
func (m *Manager) Alloc(size uintptr) (unsafe.Pointer, error) {
	m.mu.Lock()
	strategy := m.strategy
	m.mu.Unlock()

	ptr, err := strategy.Alloc(size)
	if err != nil {
		return nil, err
	}

	m.trackDisabledAlloc(size)

	return ptr, nil
}

// trackDisabledAlloc tallies size into disabledBytes if collection is
// currently disabled, and re-enables collection (running Collect
// immediately) once the tally reaches DisabledHeapLimit. A zero limit
// disables the auto-recovery, leaving DisabledBytes purely observational.
func (m *Manager) trackDisabledAlloc(size uintptr) {
	m.mu.Lock()
	if m.enabled {
		m.mu.Unlock()
		return
	}

	m.disabledBytes += size
	limit := m.cfg.DisabledHeapLimit
	shouldReenable := limit > 0 && m.disabledBytes >= limit
	if shouldReenable {
		m.enabled = true
		m.disabledBytes = 0
	}
	m.mu.Unlock()

	if shouldReenable {
		m.Collect()
	}
}

func (m *Manager) AddRoot(ptr unsafe.Pointer) {
	m.mu.Lock()
	strategy := m.strategy
	m.mu.Unlock()

	strategy.AddRoot(ptr)
}

func (m *Manager) RemoveRoot(ptr unsafe.Pointer) {
	m.mu.Lock()
	strategy := m.strategy
	m.mu.Unlock()

	strategy.RemoveRoot(ptr)
}

// RegisterObject records an externally-allocated object with the active
// strategy, and — if collection is enabled and a heap-pressure budget is
// configured — triggers a Collect once outstanding bytes cross the budget.
// The DisabledHeapLimit tally happens in Alloc, not here, so an object
// allocated via Alloc and then handed to RegisterObject (the common pattern
// of allocating raw memory and separately registering it for tracking)
// isn't counted twice while collection is disabled.
func (m *Manager) RegisterObject(ptr unsafe.Pointer, size uintptr) {
	m.mu.Lock()
	strategy := m.strategy
	enabled := m.enabled
	m.mu.Unlock()

	if !enabled {
		strategy.RegisterObject(ptr, size)

		return
	}

	m.mu.Lock()

	m.bytesSinceGC += size
	shouldCollect := m.cfg.HeapPressureBytes > 0 && m.bytesSinceGC >= m.cfg.HeapPressureBytes
	if shouldCollect {
		m.bytesSinceGC = 0
	}
	m.mu.Unlock()

	strategy.RegisterObject(ptr, size)

	if shouldCollect {
		m.Collect()
	}
}

// Collect forces a collection pass through the active strategy regardless
// of the enabled/disabled state or heap-pressure budget.
func (m *Manager) Collect() CollectionStats {
	m.mu.Lock()
	strategy := m.strategy
	m.bytesSinceGC = 0
	m.mu.Unlock()

	stats := strategy.Collect()

	m.mu.Lock()
	m.totalCollected += stats.ObjectsCollected
	m.mu.Unlock()

	return stats
}

// TotalCollected returns the running total of objects reclaimed across every
// Collect call since this Manager was created.
func (m *Manager) TotalCollected() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.totalCollected
}

// BytesSinceLastCollect reports how many bytes have been registered since
// the last Collect, for callers (the rebalance tick) deciding whether
// rising heap pressure warrants forcing a collection outside the normal
// RegisterObject-triggered path.
func (m *Manager) BytesSinceLastCollect() uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.bytesSinceGC
}

// HeapPressureThreshold returns the configured byte threshold that
// triggers an automatic Collect from RegisterObject, 0 if disabled.
func (m *Manager) HeapPressureThreshold() uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cfg.HeapPressureBytes
}
