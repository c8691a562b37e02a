package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/cschram/otterlang/internal/tiering"
)

// ConfigManager owns a live RuntimeConfig behind a RWMutex, so readers never
// block each other and a reload only briefly excludes them.
type ConfigManager struct {
	mu         sync.RWMutex
	cfg        RuntimeConfig
	configPath string
}

// NewConfigManager returns a manager seeded with defaults; call Init to load
// from a file and environment variables.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{cfg: DefaultRuntimeConfig()}
}

// Init loads configPath (if non-empty) plus environment variables into the
// manager and, when configPath names a real file, starts watching it for
// changes so edits apply without a restart.
func (m *ConfigManager) Init(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.configPath = configPath
	m.mu.Unlock()

	if configPath == "" {
		return nil
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil
	}

	return watchForChanges(configPath, func(fsnotify.Event) {
		if reloaded, err := LoadConfig(configPath); err == nil {
			m.mu.Lock()
			m.cfg = reloaded
			m.mu.Unlock()
		}
	})
}

// Get returns a copy of the current configuration.
func (m *ConfigManager) Get() RuntimeConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.cfg
}

// Update calls f on the stored configuration under the write lock, so f's
// changes apply in place.
func (m *ConfigManager) Update(f func(*RuntimeConfig)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f(&m.cfg)
}

func (m *ConfigManager) TieredCompilation() tiering.TieredConfig { return m.Get().TieredCompilation }
func (m *ConfigManager) GC() GcConfig                            { return m.Get().GC }
func (m *ConfigManager) Profiling() ProfilingConfig              { return m.Get().Profiling }
func (m *ConfigManager) Cache() CacheConfig                      { return m.Get().Cache }
func (m *ConfigManager) Scheduler() SchedulerConfig              { return m.Get().Scheduler }

func (m *ConfigManager) IsProfilingEnabled() bool {
	return m.Get().Profiling.Enabled
}

func (m *ConfigManager) IsTieredCompilationEnabled() bool {
	return m.Get().TieredCompilation.Enabled
}

// DumpYAML renders the current configuration as YAML, for diagnostics
// commands and bug reports rather than as a config file format itself
// (LoadConfig only ever reads TOML).
func (m *ConfigManager) DumpYAML() (string, error) {
	out, err := yaml.Marshal(m.Get())
	if err != nil {
		return "", fmt.Errorf("config: marshal diagnostic dump: %w", err)
	}

	return string(out), nil
}

// DumpTOML renders the current configuration as TOML. The config structs
// carry no toml tags, so keys are the Go field names (e.g. WorkerThreads,
// MaxSizeBytes) and the GC strategy is written as its integer value. LoadConfig
// reads snake_case keys and strategy names: a dumped file loads without
// error, but only values whose key matches a LoadConfig key ignoring case
// (such as cache.enabled) take effect when loaded back.
func (m *ConfigManager) DumpTOML() (string, error) {
	out, err := toml.Marshal(m.Get())
	if err != nil {
		return "", fmt.Errorf("config: marshal toml dump: %w", err)
	}

	return string(out), nil
}

var (
	globalOnce    sync.Once
	globalManager *ConfigManager
)

// Global returns the process-wide ConfigManager, lazily initializing it from
// "otter.toml" in the current directory if present, or defaults otherwise.
func Global() *ConfigManager {
	globalOnce.Do(func() {
		globalManager = NewConfigManager()

		path := ""
		if _, err := os.Stat("otter.toml"); err == nil {
			path = "otter.toml"
		}

		if err := globalManager.Init(path); err != nil {
			// Defaults are already in place; a bad env var or file is
			// reported but doesn't prevent the process from running.
			fmt.Fprintf(os.Stderr, "config: init failed, using defaults: %v\n", err)
		}
	})

	return globalManager
}
