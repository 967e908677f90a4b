// File: memory/memory.go
// Author: momentics <momentics@gmail.com>
//
// Allocation, release and pointer introspection across memory spaces.

package memory

import (
	"unsafe"

	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/control"
	"github.com/momentics/hioload-ring/device"
)

// Malloc returns size bytes aligned to Alignment in space.
// A zero size yields a valid, non-nil pointer that owns no memory.
func Malloc(size int, space api.Space) (unsafe.Pointer, error) {
	var ptr unsafe.Pointer
	err := Guard("memory.Malloc", func() error {
		if size < 0 {
			return control.Failf(api.StatusInvalidArgument, "memory.Malloc", "negative size %d", size)
		}
		a, err := Lookup(space)
		if err != nil {
			control.Report(0, err)
			return err
		}
		if size == 0 {
			ptr = zeroPtr()
			return nil
		}
		p, err := a.Alloc(size)
		if err != nil {
			return allocError(err, space, size)
		}
		ptr = p
		control.Trace("memory.Malloc(%d, %s) = %p", size, space, p)
		return nil
	})
	return ptr, err
}

func allocError(err error, space api.Space, size int) error {
	if e, ok := err.(*api.Error); ok {
		control.Report(1, e)
		return e
	}
	e := api.Wrap(err, api.StatusMemAllocFailed, "memory.Malloc").
		WithContext("space", space.String()).
		WithContext("size", size)
	control.Report(1, e)
	return e
}

// Free releases ptr. SpaceAuto infers the space first. The zero-size
// sentinel is accepted and ignored. Freeing twice is undefined.
func Free(ptr unsafe.Pointer, space api.Space) error {
	return Guard("memory.Free", func() error {
		if ptr == nil {
			return control.Fail(api.StatusInvalidPointer, "memory.Free", "nil pointer")
		}
		if ptr == zeroPtr() {
			return nil
		}
		if space == api.SpaceAuto {
			s, err := DetectSpace(ptr)
			if err != nil {
				return err
			}
			space = s
		}
		a, err := Lookup(space)
		if err != nil {
			control.Report(0, err)
			return err
		}
		if err := a.Release(ptr); err != nil {
			if e, ok := err.(*api.Error); ok {
				return e
			}
			e := api.Wrap(err, api.StatusInvalidArgument, "memory.Free").WithContext("space", space.String())
			control.Report(0, e)
			return e
		}
		control.Trace("memory.Free(%p, %s)", ptr, space)
		return nil
	})
}

// DetectSpace inspects the provenance of ptr. Pointers unknown to the pinned
// allocator and to the registered device are reported as SpaceSystem, which
// is a best guess rather than a guarantee.
func DetectSpace(ptr unsafe.Pointer) (api.Space, error) {
	space := api.SpaceSystem
	err := Guard("memory.DetectSpace", func() error {
		if ptr == nil {
			return control.Fail(api.StatusInvalidPointer, "memory.DetectSpace", "nil pointer")
		}
		if ptr == zeroPtr() {
			return nil
		}
		if a, err := Lookup(api.SpacePinnedHost); err == nil && a.Owns(ptr) {
			space = api.SpacePinnedHost
			return nil
		}
		if d := device.Current(); d != nil {
			if s, ok := d.PointerSpace(ptr); ok {
				if !s.Concrete() || s == api.SpaceShared {
					return control.Failf(api.StatusInternalError, "memory.DetectSpace", "device reported space %s", s)
				}
				space = s
			}
		}
		return nil
	})
	return space, err
}

// resolve replaces SpaceAuto by the detected space of ptr.
func resolve(ptr unsafe.Pointer, space api.Space) (api.Space, error) {
	if space != api.SpaceAuto {
		return space, nil
	}
	return DetectSpace(ptr)
}

// Stats returns accounting for every space with an allocator.
func Stats() map[api.Space]api.AllocatorStats {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	out := make(map[api.Space]api.AllocatorStats, len(backends))
	for space, a := range backends {
		if s, ok := a.(statser); ok {
			out[space] = s.Stats()
		}
	}
	return out
}

// PublishStats copies Stats into mr under "memory.<space>.*".
func PublishStats(mr *control.MetricsRegistry) {
	for space, s := range Stats() {
		prefix := "memory." + space.String() + "."
		mr.Set(prefix+"allocs", s.TotalAlloc)
		mr.Set(prefix+"frees", s.TotalFree)
		mr.Set(prefix+"in_use", s.InUse)
		mr.Set(prefix+"live_bytes", s.LiveBytes)
	}
}
