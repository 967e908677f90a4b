// File: memory/system.go
// Author: momentics <momentics@gmail.com>
//
// Regular host memory: aligned Go heap slices held live until released.

package memory

import (
	"sync"
	"unsafe"

	"github.com/momentics/hioload-ring/api"
	"github.com/pkg/errors"
)

type systemAllocator struct {
	mu   sync.Mutex
	live map[uintptr][]byte // aligned base -> backing slice
	counters
}

func newSystemAllocator() *systemAllocator {
	return &systemAllocator{live: make(map[uintptr][]byte)}
}

func (a *systemAllocator) Space() api.Space { return api.SpaceSystem }

func (a *systemAllocator) Alloc(size int) (unsafe.Pointer, error) {
	raw := make([]byte, size+Alignment)
	base := unsafe.Pointer(&raw[0])
	off := int((Alignment - uintptr(base)%Alignment) % Alignment)
	ptr := unsafe.Add(base, off)
	a.mu.Lock()
	a.live[uintptr(ptr)] = raw[off : off+size]
	a.mu.Unlock()
	a.onAlloc(size)
	return ptr, nil
}

func (a *systemAllocator) Release(ptr unsafe.Pointer) error {
	a.mu.Lock()
	buf, ok := a.live[uintptr(ptr)]
	delete(a.live, uintptr(ptr))
	a.mu.Unlock()
	if !ok {
		return errors.Errorf("system: %p is not a live allocation", ptr)
	}
	a.onFree(len(buf))
	return nil
}

func (a *systemAllocator) Owns(ptr unsafe.Pointer) bool {
	p := uintptr(ptr)
	a.mu.Lock()
	defer a.mu.Unlock()
	for base, buf := range a.live {
		if p >= base && p < base+uintptr(len(buf)) {
			return true
		}
	}
	return false
}

func (a *systemAllocator) Stats() api.AllocatorStats { return a.stats() }
