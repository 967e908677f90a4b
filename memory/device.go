// File: memory/device.go
// Author: momentics <momentics@gmail.com>
//
// Device-resident spaces delegate to the registered device collaborator.

package memory

import (
	"sync"
	"unsafe"

	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/device"
)

type deviceAllocator struct {
	space api.Space
	mu    sync.Mutex
	sizes map[uintptr]int
	counters
}

func (a *deviceAllocator) Space() api.Space { return a.space }

func (a *deviceAllocator) current() (device.Device, error) {
	d := device.Current()
	if d == nil {
		return nil, api.Errorf(api.StatusUnsupportedSpace, "memory", "%s memory requires a registered device", a.space)
	}
	return d, nil
}

func (a *deviceAllocator) Alloc(size int) (unsafe.Pointer, error) {
	d, err := a.current()
	if err != nil {
		return nil, err
	}
	ptr, err := d.Malloc(size, a.space)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	if a.sizes == nil {
		a.sizes = make(map[uintptr]int)
	}
	a.sizes[uintptr(ptr)] = size
	a.mu.Unlock()
	a.onAlloc(size)
	return ptr, nil
}

func (a *deviceAllocator) Release(ptr unsafe.Pointer) error {
	d, err := a.current()
	if err != nil {
		return err
	}
	if err := d.Free(ptr, a.space); err != nil {
		return err
	}
	a.mu.Lock()
	size := a.sizes[uintptr(ptr)]
	delete(a.sizes, uintptr(ptr))
	a.mu.Unlock()
	a.onFree(size)
	return nil
}

func (a *deviceAllocator) Owns(ptr unsafe.Pointer) bool {
	d := device.Current()
	if d == nil {
		return false
	}
	space, ok := d.PointerSpace(ptr)
	return ok && space == a.space
}

func (a *deviceAllocator) Stats() api.AllocatorStats { return a.stats() }
