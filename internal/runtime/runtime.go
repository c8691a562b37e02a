// Package runtime composes the five adaptive-optimization components —
// profiler, GC manager, layout optimizer, tiered compiler, and scheduler —
// into one constructable unit, and wires each component's collector onto a
// shared Prometheus registry. It follows the teacher's
// internal/allocator/runtime.go pattern (a GlobalRuntime singleton built by
// InitializeRuntime with functional options) generalized from "one
// allocator" to "all five components," since embedders need both a default
// global instance and the ability to construct fresh instances for tests.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cschram/otterlang/internal/abi"
	"github.com/cschram/otterlang/internal/allocator"
	"github.com/cschram/otterlang/internal/config"
	"github.com/cschram/otterlang/internal/gcmanager"
	"github.com/cschram/otterlang/internal/layout"
	"github.com/cschram/otterlang/internal/profiler"
	"github.com/cschram/otterlang/internal/rtlog"
	"github.com/cschram/otterlang/internal/scheduler"
	"github.com/cschram/otterlang/internal/tiering"
)

// rebalanceTickNormal and rebalanceTickImmediate bound the background
// rebalance loop's polling interval: normal operation checks infrequently
// since Rebalancer.Rebalance internally throttles to its own interval
// anyway, while immediate mode (set after TriggerImmediateRebalance) polls
// tightly so the lowered interval actually gets exercised promptly.
const (
	rebalanceTickNormal    = 2 * time.Second
	rebalanceTickImmediate = 100 * time.Millisecond
)

// Runtime owns one instance of every adaptive-optimization component plus
// the background goroutine that periodically asks the Rebalancer to
// reconcile pool size with observed load.
type Runtime struct {
	Profiler   *profiler.Profiler
	GC         *gcmanager.Manager
	Layout     *layout.DataLayoutOptimizer
	Tiering    *tiering.TieredCompiler
	Pool       *scheduler.WorkerPool
	Monitor    *scheduler.Monitor
	Rebalancer *scheduler.Rebalancer

	cfg      config.RuntimeConfig
	cfgMgr   *config.ConfigManager
	registry *prometheus.Registry

	cancel context.CancelFunc
	wg     sync.WaitGroup

	immediateMu   sync.Mutex
	immediateTick bool
}

// Option configures a Runtime during New.
type Option func(*options)

type options struct {
	cfg           config.RuntimeConfig
	alloc         allocator.Allocator
	tracer        gcmanager.Tracer
	compiler      tiering.Compiler
	compileTarget string
}

// WithConfig overrides the default config.DefaultRuntimeConfig().
func WithConfig(cfg config.RuntimeConfig) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithAllocator overrides the system allocator backing non-generational GC
// strategies. Defaults to a fresh allocator.NewSystemAllocator.
func WithAllocator(alloc allocator.Allocator) Option {
	return func(o *options) { o.alloc = alloc }
}

// WithTracer supplies the object-graph tracer the mark-sweep and
// generational strategies need to follow pointer fields; nil (the default)
// treats every object as a leaf.
func WithTracer(tracer gcmanager.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithCompiler supplies the external native-code compiler the Tiered
// Compiler submits Compile jobs to from the rebalance tick. The native-code
// emitter itself is out of this repo's scope; an embedder that never
// supplies one gets compileUnavailable, which fails every recompile
// attempt cleanly (existing artifacts stay installed) instead of panicking.
func WithCompiler(compiler tiering.Compiler) Option {
	return func(o *options) { o.compiler = compiler }
}

// WithCompileTarget sets the cross-compilation target triple passed through
// to Compile calls; empty (the default) means "compile for the host".
func WithCompileTarget(target string) Option {
	return func(o *options) { o.compileTarget = target }
}

// compileUnavailable is the default tiering.Compiler used when an embedder
// never calls WithCompiler: it always fails, so Rebalance's step 5 records
// a compile failure and leaves the current artifact in place rather than
// silently never attempting anything.
type compileUnavailable struct{}

func (compileUnavailable) Compile(functionName string, level tiering.OptLevel, target string) (tiering.CompiledArtifact, error) {
	return tiering.CompiledArtifact{}, fmt.Errorf("runtime: no Compiler configured (see WithCompiler); cannot compile %s at %s", functionName, level)
}

// New builds a fresh Runtime: every component constructed from cfg, the GC
// manager's Tracer wired, internal/abi's GC hooks pointed at this instance's
// Manager, every component's Prometheus collector registered, and the
// rebalance-tick loop started.
func New(opts ...Option) (*Runtime, error) {
	o := &options{cfg: config.DefaultRuntimeConfig()}
	for _, opt := range opts {
		opt(o)
	}

	if o.alloc == nil {
		o.alloc = allocator.NewSystemAllocator(&allocator.Config{
			AlignmentSize:  8,
			EnableTracking: true,
		})
	}

	if o.compiler == nil {
		o.compiler = compileUnavailable{}
	}

	prof := profiler.New()

	gcOpts := []gcmanager.Option{
		gcmanager.WithStrategy(o.cfg.GC.Strategy),
		gcmanager.WithNurserySize(4 * 1024 * 1024),
		gcmanager.WithHeapPressureBytes(uintptr(o.cfg.GC.GcThreshold)),
		gcmanager.WithDisabledHeapLimit(uintptr(o.cfg.GC.DisabledHeapLimit)),
		gcmanager.WithOnFree(func(ptr unsafe.Pointer, _ uintptr) {
			prof.Memory().RecordDeallocation(uintptr(ptr))
		}),
	}
	if o.tracer != nil {
		gcOpts = append(gcOpts, gcmanager.WithTracer(o.tracer))
	}

	gcMgr, err := gcmanager.New(o.alloc, gcOpts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: building gc manager: %w", err)
	}

	if !o.cfg.GC.AutoGC {
		gcMgr.Disable()
	}

	layoutOpt := layout.NewDataLayoutOptimizer()
	tieredCompiler := tiering.WithConfig(o.cfg.TieredCompilation)

	workerThreads := o.cfg.Scheduler.WorkerThreads
	if workerThreads <= 0 {
		workerThreads = 1
	}

	pool := scheduler.NewWorkerPool(workerThreads, func(scheduler.Task) {})
	monitor := scheduler.NewMonitor()
	analyzer := scheduler.NewWorkloadAnalyzer()
	rebalancer := scheduler.NewRebalancer(pool, monitor, analyzer,
		scheduler.WithTieredCompiler(tieredCompiler, o.compiler, o.compileTarget),
		scheduler.WithGCManager(gcMgr, o.cfg.GC.MemoryThreshold),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(profiler.NewCollector(prof))
	registry.MustRegister(gcmanager.NewCollector(gcMgr))
	registry.MustRegister(scheduler.NewCollector(pool, monitor))

	cfgMgr := config.NewConfigManager()
	cfgMgr.Update(func(c *config.RuntimeConfig) { *c = o.cfg })

	rt := &Runtime{
		Profiler:   prof,
		GC:         gcMgr,
		Layout:     layoutOpt,
		Tiering:    tieredCompiler,
		Pool:       pool,
		Monitor:    monitor,
		Rebalancer: rebalancer,
		cfg:        o.cfg,
		cfgMgr:     cfgMgr,
		registry:   registry,
	}

	abi.SetGCManager(gcMgr)
	abi.SetConfigManager(cfgMgr)

	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	rt.wg.Add(1)

	go rt.rebalanceLoop(ctx)

	return rt, nil
}

// rebalanceLoop periodically calls Rebalancer.Rebalance. Rebalance's own
// internal throttle (Rebalancer.rebalanceInterval) is the real gate; this
// loop just has to poll at least that often, tightening its own tick when
// TriggerImmediateRebalance lowers the Rebalancer's interval so the lowered
// interval is actually observed promptly rather than waiting for the next
// slow tick.
func (rt *Runtime) rebalanceLoop(ctx context.Context) {
	defer rt.wg.Done()

	ticker := time.NewTicker(rebalanceTickNormal)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rt.Rebalancer.Rebalance(); err != nil {
				rtlog.Warnf("rebalance pass failed: %v", err)
			}

			rt.adjustTick(ticker)
		}
	}
}

func (rt *Runtime) adjustTick(ticker *time.Ticker) {
	rt.immediateMu.Lock()
	defer rt.immediateMu.Unlock()

	want := rebalanceTickNormal
	if rt.immediateTick {
		want = rebalanceTickImmediate
	}

	ticker.Reset(want)
}

// TriggerImmediateRebalance forwards to the Rebalancer and switches the
// background loop to a tight poll interval so the lowered rebalance
// interval takes effect without waiting out a full normal-mode tick.
func (rt *Runtime) TriggerImmediateRebalance() error {
	rt.immediateMu.Lock()
	rt.immediateTick = true
	rt.immediateMu.Unlock()

	return rt.Rebalancer.TriggerImmediateRebalance()
}

// Config returns the configuration this Runtime was built from.
func (rt *Runtime) Config() config.RuntimeConfig { return rt.cfg }

// MetricsHandler exposes every registered component's collector as an
// http.Handler an embedder can mount at e.g. "/metrics".
func (rt *Runtime) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{})
}

// Shutdown stops the rebalance loop and waits for it to exit.
func (rt *Runtime) Shutdown() {
	rt.cancel()
	rt.wg.Wait()
}

var (
	globalOnce sync.Once
	global     *Runtime
)

// Global returns the process-wide default Runtime, building it from
// config.Global() on first use. Matches the teacher's GlobalRuntime/
// InitializeRuntime pattern but lazily, since this repo's embedders may
// never need a global instance at all.
func Global() *Runtime {
	globalOnce.Do(func() {
		rt, err := New(WithConfig(config.Global().Get()))
		if err != nil {
			rtlog.Errorf("building global runtime: %v", err)
			rt, _ = New()
		}

		global = rt
	})

	return global
}
