// File: ring/guarantee.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reader claims pinning a logical offset against reclamation.

package ring

import (
	"context"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/control"
	"k8s.io/klog/v2"
)

// noCopy makes go vet flag value copies of a Guarantee.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Guarantee pins a logical offset of a Ring. While live, the writer never
// reclaims bytes at or after that offset, and the Ring's allocation stays
// alive even after the owner closes it.
//
// A Guarantee belongs to one reader goroutine. It is released by Release,
// or by the garbage collector with a warning if the reader forgets.
type Guarantee struct {
	_ noCopy

	ring   *Ring
	id     uint64
	offset atomic.Uint64
	live   atomic.Bool
}

func newGuarantee(r *Ring, id, off uint64) *Guarantee {
	g := &Guarantee{ring: r, id: id}
	g.offset.Store(off)
	g.live.Store(true)
	runtime.SetFinalizer(g, leaked)
	return g
}

func leaked(g *Guarantee) {
	if !g.live.Load() {
		return
	}
	klog.Warningf("ring %s: guarantee at offset %d collected without Release", g.ring.id, g.Offset())
	g.release()
}

// Offset returns the pinned logical offset.
func (g *Guarantee) Offset() uint64 { return g.offset.Load() }

// Live reports whether g still holds its claim.
func (g *Guarantee) Live() bool { return g.live.Load() }

// Ring returns the guarded ring, or nil once g is inert.
func (g *Guarantee) Ring() *Ring {
	if !g.live.Load() {
		return nil
	}
	return g.ring
}

// moveNoLock relocates the claim; r.mu must be held.
func (g *Guarantee) moveNoLock(off uint64) error {
	const op = "ring.Guarantee.Move"
	r := g.ring
	cur := g.offset.Load()
	if off < cur {
		return control.Failf(api.StatusInvalidArgument, op, "offset %d behind current %d", off, cur)
	}
	if write := r.write.Load(); off > write {
		return control.Failf(api.StatusInvalidArgument, op, "offset %d beyond write offset %d", off, write)
	}
	if off == cur {
		return nil
	}
	r.claims[g.id] = off
	g.offset.Store(off)
	r.notifyLocked()
	return nil
}

// Move advances the claim to off, which must lie in [Offset(), write].
// A failed move leaves the claim unchanged.
func (g *Guarantee) Move(off uint64) error {
	if !g.live.Load() {
		return control.Fail(api.StatusInvalidHandle, "ring.Guarantee.Move", "guarantee released")
	}
	r := g.ring
	r.mu.Lock()
	defer r.mu.Unlock()
	return g.moveNoLock(off)
}

// Advance moves the claim forward by n bytes.
func (g *Guarantee) Advance(n int) error {
	if n < 0 {
		return control.Failf(api.StatusInvalidArgument, "ring.Guarantee.Advance", "negative step %d", n)
	}
	return g.Move(g.Offset() + uint64(n))
}

// Available returns how many committed bytes lie past the claim.
func (g *Guarantee) Available() int {
	if !g.live.Load() {
		return 0
	}
	return int(g.ring.write.Load() - g.Offset())
}

// Read copies n bytes at the claimed offset into dst without moving.
func (g *Guarantee) Read(ctx context.Context, dst unsafe.Pointer, dstSpace api.Space, n int) error {
	if !g.live.Load() {
		return control.Fail(api.StatusInvalidHandle, "ring.Guarantee.Read", "guarantee released")
	}
	return g.ring.Read(ctx, g.Offset(), dst, dstSpace, n)
}

// ReadBytes reads len(p) bytes at the claimed offset into system memory.
func (g *Guarantee) ReadBytes(ctx context.Context, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return g.Read(ctx, unsafe.Pointer(&p[0]), api.SpaceSystem, len(p))
}

// Take transfers the claim to a new handle and leaves g inert.
func (g *Guarantee) Take() (*Guarantee, error) {
	if !g.live.CompareAndSwap(true, false) {
		return nil, control.Fail(api.StatusInvalidHandle, "ring.Guarantee.Take", "guarantee released")
	}
	runtime.SetFinalizer(g, nil)
	return newGuarantee(g.ring, g.id, g.Offset()), nil
}

// Release drops the claim. Later calls are no-ops.
func (g *Guarantee) Release() {
	if g.release() {
		runtime.SetFinalizer(g, nil)
	}
}

func (g *Guarantee) release() bool {
	if !g.live.CompareAndSwap(true, false) {
		return false
	}
	g.ring.releaseClaim(g.id)
	return true
}
