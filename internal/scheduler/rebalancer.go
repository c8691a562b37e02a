package scheduler

import (
	"sync"
	"time"

	"github.com/cschram/otterlang/internal/gcmanager"
	"github.com/cschram/otterlang/internal/rtlog"
	"github.com/cschram/otterlang/internal/tiering"
)

// RebalanceInfo is a point-in-time snapshot of the conditions a rebalance
// decision was (or would be) based on.
type RebalanceInfo struct {
	CPULoad       float64
	ActiveThreads int
	TotalThreads  int
	PendingTasks  int
	IsBlocking    bool
	HasContention bool
	HasIdleCycles bool
}

// Rebalancer periodically reconciles WorkerPool size with observed system
// load and workload shape. Each condition's adjustment is applied in
// sequence and can override an earlier one in the same pass — matching the
// original's behavior of re-deriving "pool_stats.total_threads" fresh after
// each adjustment rather than computing one final target up front.
type Rebalancer struct {
	pool     *WorkerPool
	monitor  *Monitor
	analyzer *WorkloadAnalyzer

	tiered        *tiering.TieredCompiler
	compiler      tiering.Compiler
	compileTarget string

	gc              *gcmanager.Manager
	memoryThreshold float64

	mu                sync.Mutex
	rebalanceInterval time.Duration
	lastRebalance     time.Time
}

// RebalancerOption wires optional steps 5/6 collaborators into a Rebalancer:
// without them, Rebalance only performs the pool-sizing steps 1-4.
type RebalancerOption func(*Rebalancer)

// WithTieredCompiler wires step 5: a rebalance tick asks tiered for
// functions due for recompilation and submits a Compile(name, opt_level,
// target) call to compiler as a Parallel task per function.
func WithTieredCompiler(tiered *tiering.TieredCompiler, compiler tiering.Compiler, target string) RebalancerOption {
	return func(r *Rebalancer) {
		r.tiered = tiered
		r.compiler = compiler
		r.compileTarget = target
	}
}

// WithGCManager wires step 6: a rebalance tick submits a GcCollect parallel
// task when bytes-since-last-collect exceeds gc's configured heap-pressure
// threshold, or when sampled memory usage exceeds memoryThreshold (a
// fraction in [0,1], matching GcConfig.MemoryThreshold).
func WithGCManager(gc *gcmanager.Manager, memoryThreshold float64) RebalancerOption {
	return func(r *Rebalancer) {
		r.gc = gc
		r.memoryThreshold = memoryThreshold
	}
}

func NewRebalancer(pool *WorkerPool, monitor *Monitor, analyzer *WorkloadAnalyzer, opts ...RebalancerOption) *Rebalancer {
	r := &Rebalancer{
		pool:              pool,
		monitor:           monitor,
		analyzer:          analyzer,
		rebalanceInterval: 2 * time.Second,
		lastRebalance:     time.Now(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Rebalance runs one pass if the rebalance interval has elapsed, applying
// each adjustment step in order: optimal thread count from the analyzer,
// then blocking, then contention, then idle-cycle corrections, each based on
// the pool's thread count as of that step (so a later step can override an
// earlier one's adjustment within the same pass).
func (r *Rebalancer) Rebalance() error {
	r.mu.Lock()
	now := time.Now()
	if now.Sub(r.lastRebalance) < r.rebalanceInterval {
		r.mu.Unlock()

		return nil
	}
	r.mu.Unlock()

	if err := r.monitor.Update(); err != nil {
		return err
	}

	poolStats := r.pool.Stats()
	load := r.monitor.CurrentLoad()
	numCPU := r.monitor.NumCPU()

	analysis := r.analyzer.AnalyzeWorkload(poolStats, load, numCPU)

	isBlocking := r.monitor.DetectBlocking()
	hasContention := r.monitor.DetectContention()
	hasIdleCycles := r.monitor.DetectIdleCycles()

	if analysis.OptimalThreadCount != poolStats.TotalThreads {
		r.pool.Resize(analysis.OptimalThreadCount)
	}

	// Blocking: reduce thread count to the CPU count to cut context-switch
	// overhead from over-subscription.
	if isBlocking {
		current := r.pool.Stats().TotalThreads
		if current > numCPU {
			r.pool.Resize(numCPU)
		}
	}

	// Contention: CPU-bound work backs off slightly; I/O-bound work grows.
	if hasContention {
		current := r.pool.Stats().TotalThreads

		if analysis.IsMostlyCPUBound {
			target := max(current*9/10, 1)
			r.pool.Resize(target)
		} else {
			r.pool.Resize(current + 2)
		}
	}

	// Idle cycles: shrink the pool to save resources.
	if hasIdleCycles {
		current := r.pool.Stats().TotalThreads
		target := max(current*3/4, 1)
		r.pool.Resize(target)
	}

	r.submitDueRecompiles()
	r.submitGcCollectIfUnderPressure(load)

	r.mu.Lock()
	r.lastRebalance = now
	r.mu.Unlock()

	return nil
}

// submitDueRecompiles is rebalance step 5: ask the tiered compiler for
// functions that have earned a promotion and submit one Parallel Compile
// task per function. On success the compile time is recorded against the
// new tier and the artifact published (the function's tracked tier itself is
// not changed here); on failure the existing artifact is left in place and
// the failure is recorded, restarting the cooldown before a retry.
// A no-op if WithTieredCompiler was never supplied.
func (r *Rebalancer) submitDueRecompiles() {
	if r.tiered == nil || r.compiler == nil {
		return
	}

	for _, promotion := range r.tiered.FunctionsToRecompile() {
		promotion := promotion

		r.pool.Submit(NewParallelTask(func() {
			level := tiering.OptLevelForTier(promotion.Tier)

			start := time.Now()
			artifact, err := r.compiler.Compile(promotion.FunctionName, level, r.compileTarget)
			elapsed := time.Since(start)

			if err != nil {
				rtlog.Warnf("compile %s at tier %s failed: %v", promotion.FunctionName, promotion.Tier, err)
				r.tiered.RecordCompileFailure(promotion.FunctionName)

				return
			}

			r.tiered.RecordCompilation(promotion.FunctionName, promotion.Tier, elapsed)
			r.tiered.PublishArtifact(artifact)
		}))
	}
}

// submitGcCollectIfUnderPressure is rebalance step 6: if bytes registered
// since the last collection exceed the GC manager's heap-pressure
// threshold, or sampled memory usage exceeds memoryThreshold, submit a
// Parallel task that forces a Collect. A no-op if WithGCManager was never
// supplied.
func (r *Rebalancer) submitGcCollectIfUnderPressure(load LoadMetrics) {
	if r.gc == nil {
		return
	}

	byBytes := r.gc.HeapPressureThreshold() > 0 &&
		r.gc.BytesSinceLastCollect() >= r.gc.HeapPressureThreshold()
	byMemory := r.memoryThreshold > 0 && load.MemoryUsagePercent/100 >= r.memoryThreshold

	if !byBytes && !byMemory {
		return
	}

	r.pool.Submit(NewParallelTask(func() {
		r.gc.Collect()
	}))
}

// TriggerImmediateRebalance lowers the rebalance interval to 100ms and runs
// a pass right away, for callers that detect an acute condition out-of-band
// (e.g. a scheduler.Monitor alert) and don't want to wait for the next
// periodic tick.
func (r *Rebalancer) TriggerImmediateRebalance() error {
	r.mu.Lock()
	r.rebalanceInterval = 100 * time.Millisecond
	r.mu.Unlock()

	return r.Rebalance()
}

// Info reports the conditions a rebalance decision would currently be based
// on, without forcing a resize.
func (r *Rebalancer) Info() RebalanceInfo {
	load := r.monitor.CurrentLoad()
	poolStats := r.pool.Stats()

	return RebalanceInfo{
		CPULoad:       load.CPUUsagePercent,
		ActiveThreads: poolStats.ActiveThreads,
		TotalThreads:  poolStats.TotalThreads,
		PendingTasks:  int(poolStats.TasksScheduled - poolStats.TasksCompleted),
		IsBlocking:    r.monitor.DetectBlocking(),
		HasContention: r.monitor.DetectContention(),
		HasIdleCycles: r.monitor.DetectIdleCycles(),
	}
}
