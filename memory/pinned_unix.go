//go:build linux || darwin || freebsd || netbsd || openbsd

// File: memory/pinned_unix.go
// Author: momentics <momentics@gmail.com>
//
// Page-locked host memory on unix: anonymous mmap plus mlock. When a device
// is registered the device runtime allocates pinned memory instead, so its
// transfers can use the fast path.

package memory

import (
	"sync"
	"unsafe"

	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/device"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

type pinnedMapping struct {
	mem    []byte
	size   int
	locked bool
	dev    device.Device // non-nil when the device runtime owns the memory
}

type pinnedAllocator struct {
	mu   sync.Mutex
	live map[uintptr]*pinnedMapping
	counters
}

func newPinnedAllocator() *pinnedAllocator {
	return &pinnedAllocator{live: make(map[uintptr]*pinnedMapping)}
}

func (a *pinnedAllocator) Space() api.Space { return api.SpacePinnedHost }

func (a *pinnedAllocator) Alloc(size int) (unsafe.Pointer, error) {
	var (
		ptr unsafe.Pointer
		m   = &pinnedMapping{size: size}
	)
	if d := device.Current(); d != nil {
		p, err := d.Malloc(size, api.SpacePinnedHost)
		if err != nil {
			return nil, err
		}
		ptr, m.dev, m.locked = p, d, true
	} else {
		mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			return nil, errors.Wrap(err, "pinned: mmap")
		}
		if err := unix.Mlock(mem); err != nil {
			// RLIMIT_MEMLOCK is often tiny; keep the mapping unlocked.
			klog.V(1).Infof("pinned: mlock of %d bytes failed, memory stays pageable: %v", size, err)
		} else {
			m.locked = true
		}
		m.mem = mem
		ptr = unsafe.Pointer(&mem[0])
	}
	a.mu.Lock()
	a.live[uintptr(ptr)] = m
	a.mu.Unlock()
	a.onAlloc(size)
	return ptr, nil
}

func (a *pinnedAllocator) Release(ptr unsafe.Pointer) error {
	a.mu.Lock()
	m, ok := a.live[uintptr(ptr)]
	delete(a.live, uintptr(ptr))
	a.mu.Unlock()
	if !ok {
		return errors.Errorf("pinned: %p is not a live allocation", ptr)
	}
	a.onFree(m.size)
	if m.dev != nil {
		return m.dev.Free(ptr, api.SpacePinnedHost)
	}
	if m.locked {
		_ = unix.Munlock(m.mem)
	}
	return errors.Wrap(unix.Munmap(m.mem), "pinned: munmap")
}

func (a *pinnedAllocator) Owns(ptr unsafe.Pointer) bool {
	p := uintptr(ptr)
	a.mu.Lock()
	defer a.mu.Unlock()
	for base, m := range a.live {
		if p >= base && p < base+uintptr(m.size) {
			return true
		}
	}
	return false
}

func (a *pinnedAllocator) Stats() api.AllocatorStats { return a.stats() }
