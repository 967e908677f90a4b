//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

// File: memory/pinned_other.go
// Author: momentics <momentics@gmail.com>
//
// Without mlock, pinned host memory exists only through a registered device.

package memory

import (
	"sync"
	"unsafe"

	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/device"
	"github.com/pkg/errors"
)

type pinnedAllocator struct {
	mu   sync.Mutex
	live map[uintptr]int
	counters
}

func newPinnedAllocator() *pinnedAllocator {
	return &pinnedAllocator{live: make(map[uintptr]int)}
}

func (a *pinnedAllocator) Space() api.Space { return api.SpacePinnedHost }

func (a *pinnedAllocator) Alloc(size int) (unsafe.Pointer, error) {
	d := device.Current()
	if d == nil {
		return nil, errUnsupportedPinned
	}
	ptr, err := d.Malloc(size, api.SpacePinnedHost)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.live[uintptr(ptr)] = size
	a.mu.Unlock()
	a.onAlloc(size)
	return ptr, nil
}

func (a *pinnedAllocator) Release(ptr unsafe.Pointer) error {
	a.mu.Lock()
	size, ok := a.live[uintptr(ptr)]
	delete(a.live, uintptr(ptr))
	a.mu.Unlock()
	if !ok {
		return errors.Errorf("pinned: %p is not a live allocation", ptr)
	}
	a.onFree(size)
	if d := device.Current(); d != nil {
		return d.Free(ptr, api.SpacePinnedHost)
	}
	return nil
}

func (a *pinnedAllocator) Owns(ptr unsafe.Pointer) bool {
	p := uintptr(ptr)
	a.mu.Lock()
	defer a.mu.Unlock()
	for base, size := range a.live {
		if p >= base && p < base+uintptr(size) {
			return true
		}
	}
	return false
}

func (a *pinnedAllocator) Stats() api.AllocatorStats { return a.stats() }

var errUnsupportedPinned = api.NewError(api.StatusUnsupportedSpace, "memory.Malloc", "pinned host memory requires a registered device on this platform")
