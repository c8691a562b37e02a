// Package config centralizes configuration for every runtime component:
// tiered compilation, garbage collection, profiling, function caching, and
// task scheduling. Values load from a TOML file and environment variables,
// with environment variables always taking precedence — honoring every
// OTTER_* variable each component documents, not just a hand-picked subset.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/cschram/otterlang/internal/gcmanager"
	"github.com/cschram/otterlang/internal/tiering"
)

// GcConfig controls the GC Manager's collection strategy and triggers.
type GcConfig struct {
	Strategy          gcmanager.StrategyKind `yaml:"strategy"`
	MemoryThreshold   float64                `yaml:"memory_threshold"`
	GCIntervalMS      uint64                 `yaml:"gc_interval_ms"`
	AutoGC            bool                   `yaml:"auto_gc"`
	MaxHeapSize       uint64                 `yaml:"max_heap_size"`
	DisabledHeapLimit uint64                 `yaml:"disabled_heap_limit"`

	// GcThreshold is the heap-pressure trigger: once bytes allocated since
	// the last collection reach this many bytes, a collection runs
	// automatically. Independent of MaxHeapSize (0 = unlimited), which
	// bounds total heap size rather than triggering collection.
	GcThreshold uint64 `yaml:"gc_threshold"`
}

func defaultGcConfig() GcConfig {
	return GcConfig{
		Strategy:          gcmanager.StrategyMarkSweep,
		MemoryThreshold:   0.8,
		GCIntervalMS:      5000,
		AutoGC:            true,
		MaxHeapSize:       0,
		DisabledHeapLimit: 64 * 1024 * 1024,
		GcThreshold:       10 * 1024 * 1024,
	}
}

// ProfilingConfig controls the Profiler's sampling and history retention.
type ProfilingConfig struct {
	Enabled              bool   `yaml:"enabled"`
	MemoryProfiling      bool   `yaml:"memory_profiling"`
	CompilationProfiling bool   `yaml:"compilation_profiling"`
	SamplingRate         uint32 `yaml:"sampling_rate"`
	CollectStackTraces   bool   `yaml:"collect_stack_traces"`
	MaxHistorySize       int    `yaml:"max_history_size"`
}

func defaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:              false,
		MemoryProfiling:      false,
		CompilationProfiling: false,
		SamplingRate:         1,
		CollectStackTraces:   false,
		MaxHistorySize:       10000,
	}
}

// EvictionStrategy names a cache-eviction policy.
type EvictionStrategy string

const (
	EvictionLRU  EvictionStrategy = "lru"
	EvictionLFU  EvictionStrategy = "lfu"
	EvictionFIFO EvictionStrategy = "fifo"
)

// CacheConfig controls the compiled-function cache.
type CacheConfig struct {
	Enabled          bool             `yaml:"enabled"`
	MaxSizeBytes     uint64           `yaml:"max_size_bytes"`
	EvictionStrategy EvictionStrategy `yaml:"eviction_strategy"`
	CacheWarming     bool             `yaml:"cache_warming"`
}

func defaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:          true,
		MaxSizeBytes:     100 * 1024 * 1024,
		EvictionStrategy: EvictionLRU,
		CacheWarming:     false,
	}
}

// SchedulerConfig controls the WorkerPool's shape.
type SchedulerConfig struct {
	WorkerThreads  int  `yaml:"worker_threads"`
	WorkStealing   bool `yaml:"work_stealing"`
	QueueCapacity  int  `yaml:"queue_capacity"`
	CollectMetrics bool `yaml:"collect_metrics"`
}

func defaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		WorkerThreads:  0,
		WorkStealing:   true,
		QueueCapacity:  10000,
		CollectMetrics: false,
	}
}

// RuntimeConfig is the complete configuration surface for every runtime
// component.
type RuntimeConfig struct {
	TieredCompilation tiering.TieredConfig
	GC                GcConfig
	Profiling         ProfilingConfig
	Cache             CacheConfig
	Scheduler         SchedulerConfig
}

// DefaultRuntimeConfig returns the baseline configuration every field starts
// from before a file or environment variable overrides it.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		TieredCompilation: tiering.DefaultTieredConfig(),
		GC:                defaultGcConfig(),
		Profiling:         defaultProfilingConfig(),
		Cache:             defaultCacheConfig(),
		Scheduler:         defaultSchedulerConfig(),
	}
}

// envBindings pairs each viper key with the exact environment variable name
// every runtime component already documents, so LoadConfig never invents a
// new variable name the rest of the system doesn't recognize.
var envBindings = map[string]string{
	"gc.strategy":                     "OTTER_GC_STRATEGY",
	"gc.memory_threshold":             "OTTER_GC_THRESHOLD",
	"gc.gc_interval_ms":               "OTTER_GC_INTERVAL",
	"gc.disabled_heap_limit":          "OTTER_GC_DISABLED_MAX_BYTES",
	"gc.gc_threshold":                 "OTTER_GC_THRESHOLD_BYTES",
	"profiling.enabled":               "OTTER_PROFILE",
	"profiling.memory_profiling":      "OTTER_PROFILE_MEMORY",
	"profiling.compilation_profiling": "OTTER_PROFILE_COMPILATION",
	"profiling.sampling_rate":         "OTTER_PROFILE_SAMPLING_RATE",
	"profiling.collect_stack_traces":  "OTTER_PROFILE_STACK_TRACES",
	"cache.enabled":                   "OTTER_CACHE_ENABLED",
	"cache.max_size_mb":               "OTTER_CACHE_SIZE_MB",
	"scheduler.worker_threads":        "OTTER_WORKER_THREADS",
	"scheduler.work_stealing":         "OTTER_WORK_STEALING",
	"scheduler.collect_metrics":       "OTTER_TASK_METRICS",
}

func applyDefaults(v *viper.Viper, defaults RuntimeConfig) {
	v.SetDefault("gc.strategy", defaults.GC.Strategy.String())
	v.SetDefault("gc.memory_threshold", defaults.GC.MemoryThreshold)
	v.SetDefault("gc.gc_interval_ms", defaults.GC.GCIntervalMS)
	v.SetDefault("gc.auto_gc", defaults.GC.AutoGC)
	v.SetDefault("gc.max_heap_size", defaults.GC.MaxHeapSize)
	v.SetDefault("gc.disabled_heap_limit", defaults.GC.DisabledHeapLimit)
	v.SetDefault("gc.gc_threshold", defaults.GC.GcThreshold)

	v.SetDefault("profiling.enabled", defaults.Profiling.Enabled)
	v.SetDefault("profiling.memory_profiling", defaults.Profiling.MemoryProfiling)
	v.SetDefault("profiling.compilation_profiling", defaults.Profiling.CompilationProfiling)
	v.SetDefault("profiling.sampling_rate", defaults.Profiling.SamplingRate)
	v.SetDefault("profiling.collect_stack_traces", defaults.Profiling.CollectStackTraces)
	v.SetDefault("profiling.max_history_size", defaults.Profiling.MaxHistorySize)

	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("cache.max_size_mb", defaults.Cache.MaxSizeBytes/(1024*1024))
	v.SetDefault("cache.eviction_strategy", string(defaults.Cache.EvictionStrategy))
	v.SetDefault("cache.cache_warming", defaults.Cache.CacheWarming)

	v.SetDefault("scheduler.worker_threads", defaults.Scheduler.WorkerThreads)
	v.SetDefault("scheduler.work_stealing", defaults.Scheduler.WorkStealing)
	v.SetDefault("scheduler.queue_capacity", defaults.Scheduler.QueueCapacity)
	v.SetDefault("scheduler.collect_metrics", defaults.Scheduler.CollectMetrics)
}

// LoadConfig loads a RuntimeConfig, layering (lowest to highest precedence)
// built-in defaults, an optional TOML file, and environment variables.
// A missing configPath is not an error — defaults and environment variables
// still apply. TieredCompilation is sourced from
// tiering.TieredConfigFromEnv() directly, since that package already owns
// its own OTTER_TIER_* contract independent of file-based configuration.
func LoadConfig(configPath string) (RuntimeConfig, error) {
	defaults := DefaultRuntimeConfig()

	v := viper.New()
	applyDefaults(v, defaults)
	v.SetConfigType("toml")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return RuntimeConfig{}, fmt.Errorf("config: bind env %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return RuntimeConfig{}, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}

	strategy, err := gcmanager.StrategyKindFromString(v.GetString("gc.strategy"))
	if err != nil {
		strategy = defaults.GC.Strategy
	}

	cfg := RuntimeConfig{
		TieredCompilation: tiering.TieredConfigFromEnv(),
		GC: GcConfig{
			Strategy:          strategy,
			MemoryThreshold:   clamp01(v.GetFloat64("gc.memory_threshold")),
			GCIntervalMS:      v.GetUint64("gc.gc_interval_ms"),
			AutoGC:            v.GetBool("gc.auto_gc"),
			MaxHeapSize:       v.GetUint64("gc.max_heap_size"),
			DisabledHeapLimit: v.GetUint64("gc.disabled_heap_limit"),
			GcThreshold:       v.GetUint64("gc.gc_threshold"),
		},
		Profiling: ProfilingConfig{
			Enabled:              v.GetBool("profiling.enabled"),
			MemoryProfiling:      v.GetBool("profiling.memory_profiling"),
			CompilationProfiling: v.GetBool("profiling.compilation_profiling"),
			SamplingRate:         uint32(v.GetUint("profiling.sampling_rate")),
			CollectStackTraces:   v.GetBool("profiling.collect_stack_traces"),
			MaxHistorySize:       v.GetInt("profiling.max_history_size"),
		},
		Cache: CacheConfig{
			Enabled:          v.GetBool("cache.enabled"),
			MaxSizeBytes:     v.GetUint64("cache.max_size_mb") * 1024 * 1024,
			EvictionStrategy: EvictionStrategy(v.GetString("cache.eviction_strategy")),
			CacheWarming:     v.GetBool("cache.cache_warming"),
		},
		Scheduler: SchedulerConfig{
			WorkerThreads:  v.GetInt("scheduler.worker_threads"),
			WorkStealing:   v.GetBool("scheduler.work_stealing"),
			QueueCapacity:  v.GetInt("scheduler.queue_capacity"),
			CollectMetrics: v.GetBool("scheduler.collect_metrics"),
		},
	}

	return cfg, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}

	if f > 1 {
		return 1
	}

	return f
}

// watchForChanges arranges for onChange to run whenever configPath is
// modified on disk, via viper's fsnotify-backed file watcher.
func watchForChanges(configPath string, onChange func(fsnotify.Event)) error {
	if configPath == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: watch %s: %w", configPath, err)
	}

	v.OnConfigChange(onChange)
	v.WatchConfig()

	return nil
}
