// File: memory/backend.go
// Author: momentics <momentics@gmail.com>
//
// Per-space allocator selection. One api.Allocator per concrete space,
// chosen at runtime by tag; device support is a runtime capability.

package memory

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/hioload-ring/api"
)

// Alignment is the library-wide allocation alignment in bytes.
const Alignment = 512

var (
	backendsMu sync.RWMutex
	backends   = map[api.Space]api.Allocator{
		api.SpaceSystem:     newSystemAllocator(),
		api.SpacePinnedHost: newPinnedAllocator(),
		api.SpaceDevice:     &deviceAllocator{space: api.SpaceDevice},
		api.SpaceManaged:    &deviceAllocator{space: api.SpaceManaged},
	}
)

// zerobase backs every zero-length allocation.
var zerobase uint64

func zeroPtr() unsafe.Pointer { return unsafe.Pointer(&zerobase) }

// Lookup returns the allocator serving space.
func Lookup(space api.Space) (api.Allocator, error) {
	switch {
	case space == api.SpaceAuto:
		return nil, api.NewError(api.StatusInvalidSpace, "memory.Lookup", "auto must be resolved before allocation")
	case space == api.SpaceShared:
		return nil, api.NewError(api.StatusUnsupportedSpace, "memory.Lookup", "shared memory is not implemented")
	case !space.Valid():
		return nil, api.Errorf(api.StatusInvalidSpace, "memory.Lookup", "unknown space %d", int(space))
	}
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	a, ok := backends[space]
	if !ok {
		return nil, api.Errorf(api.StatusUnsupportedSpace, "memory.Lookup", "no allocator for %s", space)
	}
	return a, nil
}

// Register replaces the allocator for its space and returns the previous one.
func Register(a api.Allocator) api.Allocator {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	prev := backends[a.Space()]
	backends[a.Space()] = a
	return prev
}

// counters is the accounting embedded by every allocator.
type counters struct {
	allocs atomic.Int64
	frees  atomic.Int64
	live   atomic.Int64
}

func (c *counters) onAlloc(size int) {
	c.allocs.Add(1)
	c.live.Add(int64(size))
}

func (c *counters) onFree(size int) {
	c.frees.Add(1)
	c.live.Add(-int64(size))
}

func (c *counters) stats() api.AllocatorStats {
	a, f := c.allocs.Load(), c.frees.Load()
	return api.AllocatorStats{
		TotalAlloc: a,
		TotalFree:  f,
		InUse:      a - f,
		LiveBytes:  c.live.Load(),
	}
}

type statser interface {
	Stats() api.AllocatorStats
}
