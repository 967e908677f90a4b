// File: memory/allocation.go
// Author: momentics <momentics@gmail.com>
//
// Allocation is the owning handle over one Malloc result.

package memory

import (
	"context"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/control"
)

var _ api.Buffer = (*Allocation)(nil)

// Allocation owns size bytes in one concrete space and frees them exactly once.
type Allocation struct {
	ptr   unsafe.Pointer
	size  int
	space api.Space
	freed atomic.Bool
}

// Allocate returns a new owned allocation. SpaceAuto is rejected.
func Allocate(size int, space api.Space) (*Allocation, error) {
	if space == api.SpaceAuto {
		return nil, control.Fail(api.StatusInvalidSpace, "memory.Allocate", "auto space cannot be allocated")
	}
	ptr, err := Malloc(size, space)
	if err != nil {
		return nil, err
	}
	return &Allocation{ptr: ptr, size: size, space: space}, nil
}

func (a *Allocation) Ptr() unsafe.Pointer { return a.ptr }
func (a *Allocation) Len() int            { return a.size }
func (a *Allocation) Space() api.Space    { return a.space }

// Bytes returns a host view for host-accessible spaces, nil otherwise.
func (a *Allocation) Bytes() []byte {
	if !a.space.HostAccessible() || a.freed.Load() {
		return nil
	}
	if a.size == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(a.ptr), a.size)
}

// At returns the address offset bytes into the allocation.
func (a *Allocation) At(offset int) unsafe.Pointer {
	return unsafe.Add(a.ptr, offset)
}

// Fill sets every byte to value.
func (a *Allocation) Fill(ctx context.Context, value byte) error {
	return Fill(ctx, a.ptr, a.space, value, a.size)
}

// Freed reports whether Free has been called.
func (a *Allocation) Freed() bool { return a.freed.Load() }

// Free releases the memory; later calls are no-ops.
func (a *Allocation) Free() error {
	if !a.freed.CompareAndSwap(false, true) {
		return nil
	}
	return Free(a.ptr, a.space)
}

func (a *Allocation) String() string {
	return fmt.Sprintf("%s@%p[%s]", humanize.IBytes(uint64(a.size)), a.ptr, a.space)
}
