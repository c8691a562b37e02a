package abi

import (
	"sync"

	"github.com/cschram/otterlang/internal/config"
)

var (
	configMu sync.RWMutex
	cfgMgr   *config.ConfigManager
)

// SetConfigManager wires the ConfigManager backing otter_runtime_dump_config.
// internal/runtime calls this once during Runtime construction.
func SetConfigManager(mgr *config.ConfigManager) {
	configMu.Lock()
	cfgMgr = mgr
	configMu.Unlock()
}

func currentConfigManager() *config.ConfigManager {
	configMu.RLock()
	defer configMu.RUnlock()

	return cfgMgr
}

// otter_runtime_dump_config returns the effective configuration as YAML, for
// embedders that want to log or display what a running instance resolved
// its env vars and otter.toml down to. Mirrors the original's
// stdlib/yaml.rs + ConfigManager.save_to_file round-trip, minus the
// file-write (callers that want a file just write this string themselves).
//
//export otter_runtime_dump_config
func otter_runtime_dump_config() string {
	mgr := currentConfigManager()
	if mgr == nil {
		return ""
	}

	out, err := mgr.DumpYAML()
	if err != nil {
		return ""
	}

	return out
}
