package abi

import (
	"sync"
	"unsafe"

	"github.com/cschram/otterlang/internal/gcmanager"
)

var (
	gcMu  sync.RWMutex
	gcMgr *gcmanager.Manager
)

// SetGCManager wires the Manager backing every otter_gc_*/otter_alloc call.
// internal/runtime calls this once during Runtime construction; tests may
// call it directly with a fresh Manager.
func SetGCManager(mgr *gcmanager.Manager) {
	gcMu.Lock()
	gcMgr = mgr
	gcMu.Unlock()
}

func currentGCManager() *gcmanager.Manager {
	gcMu.RLock()
	defer gcMu.RUnlock()

	return gcMgr
}

//export otter_alloc
func otter_alloc(size int64) unsafe.Pointer {
	mgr := currentGCManager()
	if mgr == nil || size <= 0 {
		return nil
	}

	ptr, err := mgr.Alloc(uintptr(size))
	if err != nil {
		return nil
	}

	return ptr
}

//export otter_gc_add_root
func otter_gc_add_root(ptr unsafe.Pointer) {
	if mgr := currentGCManager(); mgr != nil {
		mgr.AddRoot(ptr)
	}
}

//export otter_gc_remove_root
func otter_gc_remove_root(ptr unsafe.Pointer) {
	if mgr := currentGCManager(); mgr != nil {
		mgr.RemoveRoot(ptr)
	}
}

//export otter_gc_enable
func otter_gc_enable() bool {
	mgr := currentGCManager()
	if mgr == nil {
		return false
	}

	mgr.Enable()

	return true
}

//export otter_gc_disable
func otter_gc_disable() bool {
	mgr := currentGCManager()
	if mgr == nil {
		return false
	}

	mgr.Disable()

	return true
}

//export otter_gc_is_enabled
func otter_gc_is_enabled() bool {
	mgr := currentGCManager()
	if mgr == nil {
		return false
	}

	return mgr.Enabled()
}
