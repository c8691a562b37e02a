package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cschram/otterlang/internal/gcmanager"
)

func TestDefaultRuntimeConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultRuntimeConfig()

	if !cfg.TieredCompilation.Enabled {
		t.Error("expected tiered compilation enabled by default")
	}

	if cfg.Profiling.Enabled {
		t.Error("expected profiling disabled by default")
	}

	if !cfg.Cache.Enabled {
		t.Error("expected cache enabled by default")
	}

	if cfg.GC.Strategy != gcmanager.StrategyMarkSweep {
		t.Errorf("expected mark-sweep default strategy, got %v", cfg.GC.Strategy)
	}

	if cfg.GC.GcThreshold != 10*1024*1024 {
		t.Errorf("expected 10MiB default gc_threshold, got %d", cfg.GC.GcThreshold)
	}

	if cfg.GC.MaxHeapSize != 0 {
		t.Errorf("expected unlimited (0) default max_heap_size, got %d", cfg.GC.MaxHeapSize)
	}

	if cfg.GC.DisabledHeapLimit != 64*1024*1024 {
		t.Errorf("expected 64MiB default disabled_heap_limit, got %d", cfg.GC.DisabledHeapLimit)
	}
}

func TestLoadConfigWithoutFileAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Cache.MaxSizeBytes != 100*1024*1024 {
		t.Errorf("expected default 100MB cache size, got %d", cfg.Cache.MaxSizeBytes)
	}
}

func TestLoadConfigEnvOverridesDefaults(t *testing.T) {
	t.Setenv("OTTER_GC_STRATEGY", "generational")
	t.Setenv("OTTER_CACHE_SIZE_MB", "250")
	t.Setenv("OTTER_PROFILE", "true")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.GC.Strategy != gcmanager.StrategyGenerational {
		t.Errorf("expected generational strategy from env, got %v", cfg.GC.Strategy)
	}

	if cfg.Cache.MaxSizeBytes != 250*1024*1024 {
		t.Errorf("expected 250MB cache size from env, got %d", cfg.Cache.MaxSizeBytes)
	}

	if !cfg.Profiling.Enabled {
		t.Error("expected profiling enabled from OTTER_PROFILE")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "otter.toml")

	contents := `
[gc]
strategy = "rc"
memory_threshold = 0.5

[cache]
enabled = false
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.GC.Strategy != gcmanager.StrategyRefCounted {
		t.Errorf("expected rc strategy from file, got %v", cfg.GC.Strategy)
	}

	if cfg.GC.MemoryThreshold != 0.5 {
		t.Errorf("expected memory_threshold 0.5 from file, got %v", cfg.GC.MemoryThreshold)
	}

	if cfg.Cache.Enabled {
		t.Error("expected cache disabled from file")
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "otter.toml")

	if err := os.WriteFile(path, []byte("[gc]\nstrategy = \"rc\"\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("OTTER_GC_STRATEGY", "none")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.GC.Strategy != gcmanager.StrategyNoOp {
		t.Errorf("expected env var to win over file, got %v", cfg.GC.Strategy)
	}
}

func TestLoadConfigGcThresholdIndependentOfMaxHeapSize(t *testing.T) {
	t.Setenv("OTTER_GC_THRESHOLD_BYTES", "1048576")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.GC.GcThreshold != 1024*1024 {
		t.Errorf("expected gc_threshold from OTTER_GC_THRESHOLD_BYTES, got %d", cfg.GC.GcThreshold)
	}

	if cfg.GC.MaxHeapSize != 0 {
		t.Errorf("expected max_heap_size to stay at its own default, got %d", cfg.GC.MaxHeapSize)
	}
}

func TestLoadConfigMissingFileIsNotAnError(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/otter.toml"); err != nil {
		t.Fatalf("expected missing config file to be tolerated, got %v", err)
	}
}

func TestClamp01(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-0.5, 0}, {0.5, 0.5}, {1.5, 1},
	}

	for _, tc := range cases {
		if got := clamp01(tc.in); got != tc.want {
			t.Errorf("clamp01(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
