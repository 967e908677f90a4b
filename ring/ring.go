// Package ring
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ring

import (
	"context"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/control"
	"github.com/momentics/hioload-ring/device"
	"github.com/momentics/hioload-ring/memory"
	"golang.org/x/sys/cpu"
	"k8s.io/klog/v2"
)

var _ api.ByteRing = (*Ring)(nil)

// Ring is a single-writer circular byte buffer guarded by reader claims.
type Ring struct {
	id    uuid.UUID
	name  string
	space api.Space

	// Offsets are mutated only under mu; atomics allow lock-free reads.
	write atomic.Uint64
	_     cpu.CacheLinePad
	tail  atomic.Uint64
	_     cpu.CacheLinePad

	mu       sync.Mutex
	buf      *memory.Allocation
	capacity int
	pending  *Reservation
	base     uint64            // tail before the pending reservation
	claims   map[uint64]uint64 // claim id -> pinned offset
	nextID   uint64
	changed  chan struct{} // closed and replaced on every state change
	closed   bool

	refs atomic.Int64
}

// New allocates a ring of opts.Capacity bytes in opts.Space.
func New(opts Options) (*Ring, error) {
	var r *Ring
	err := memory.Guard("ring.New", func() error {
		if err := opts.validate(); err != nil {
			return err
		}
		buf, err := memory.Allocate(opts.Capacity, opts.Space)
		if err != nil {
			return err
		}
		r = &Ring{
			id:       uuid.New(),
			name:     opts.Name,
			space:    opts.Space,
			buf:      buf,
			capacity: opts.Capacity,
			claims:   make(map[uint64]uint64),
			changed:  make(chan struct{}),
		}
		r.refs.Store(1)
		control.Trace("ring.New: %s", buf)
		return nil
	})
	return r, err
}

// NewWithConfig builds a ring from the ring.* configuration keys.
func NewWithConfig(cs *control.ConfigStore) (*Ring, error) {
	opts, err := OptionsFromConfig(cs)
	if err != nil {
		return nil, err
	}
	return New(opts)
}

func (r *Ring) ID() uuid.UUID       { return r.id }
func (r *Ring) Name() string        { return r.name }
func (r *Ring) Space() api.Space    { return r.space }
func (r *Ring) WriteOffset() uint64 { return r.write.Load() }
func (r *Ring) TailOffset() uint64  { return r.tail.Load() }

// Capacity returns the size of the backing allocation.
func (r *Ring) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capacity
}

// notifyLocked wakes every waiter of the current generation.
func (r *Ring) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *Ring) changes() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changed
}

// minClaimLocked returns the lowest pinned offset over the live set.
func (r *Ring) minClaimLocked() (uint64, bool) {
	var (
		lowest uint64
		found  bool
	)
	for _, off := range r.claims {
		if !found || off < lowest {
			lowest, found = off, true
		}
	}
	return lowest, found
}

// spansLocked maps [off, off+n) onto at most two physical ranges.
func (r *Ring) spansLocked(off uint64, n int) []api.Span {
	if n == 0 {
		return nil
	}
	pos := int(off % uint64(r.capacity))
	first := min(n, r.capacity-pos)
	spans := []api.Span{{Ptr: r.buf.At(pos), Len: first}}
	if n > first {
		spans = append(spans, api.Span{Ptr: r.buf.At(0), Len: n - first})
	}
	return spans
}

// Reserve claims n bytes at the write offset for the writer to fill.
//
// Overwriting starts at write+n-capacity; if a live guarantee sits below
// that mark the call fails with api.ErrWouldBlock and changes nothing.
// On success the tail advances to the new overwrite mark while the
// reservation is pending. Commit and Abandon settle it to the bytes the
// writer actually touched.
func (r *Ring) Reserve(n int) (*Reservation, error) {
	const op = "ring.Reserve"
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closed:
		return nil, control.Fail(api.StatusInvalidState, op, "ring closed")
	case n < 0 || n > r.capacity:
		return nil, control.Failf(api.StatusInvalidArgument, op, "size %d outside [0, %d]", n, r.capacity)
	case r.pending != nil:
		return nil, control.Fail(api.StatusInvalidState, op, "reservation already pending")
	}
	write := r.write.Load()
	var mark uint64
	if end := write + uint64(n); end > uint64(r.capacity) {
		mark = end - uint64(r.capacity)
	}
	if lowest, ok := r.minClaimLocked(); ok && mark > lowest {
		return nil, control.Failf(api.StatusWouldBlock, op, "reclaim to %d blocked by guarantee at %d", mark, lowest)
	}
	r.base = r.tail.Load()
	if mark > r.base {
		r.tail.Store(mark)
	}
	res := &Reservation{ring: r, offset: write, size: n, spans: r.spansLocked(write, n)}
	r.pending = res
	return res, nil
}

// ReserveWait is Reserve that waits for guarantees to move or release
// while the call would block. Cancellation of ctx yields a WouldBlock error
// wrapping ctx.Err().
func (r *Ring) ReserveWait(ctx context.Context, n int) (*Reservation, error) {
	for {
		ch := r.changes()
		res, err := r.Reserve(n)
		if !api.IsWouldBlock(err) {
			return res, err
		}
		select {
		case <-ctx.Done():
			return nil, api.Wrap(ctx.Err(), api.StatusWouldBlock, "ring.ReserveWait")
		case <-ch:
		}
	}
}

// Commit publishes n bytes of the pending reservation.
func (r *Ring) Commit(n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitLocked(r.pending, n)
}

func (r *Ring) commitLocked(res *Reservation, n int) error {
	const op = "ring.Commit"
	if res == nil || res != r.pending {
		return control.Fail(api.StatusInvalidState, op, "no reservation pending")
	}
	if n < 0 || n > res.size {
		return control.Failf(api.StatusInvalidArgument, op, "commit of %d bytes exceeds reservation of %d", n, res.size)
	}
	r.settleLocked(res, n)
	r.write.Add(uint64(n))
	r.pending = nil
	r.notifyLocked()
	return nil
}

// Abandon drops the pending reservation without publishing anything.
func (r *Ring) Abandon() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abandonLocked(r.pending)
}

func (r *Ring) abandonLocked(res *Reservation) error {
	if res == nil || res != r.pending {
		return control.Fail(api.StatusInvalidState, "ring.Abandon", "no reservation pending")
	}
	r.settleLocked(res, 0)
	r.pending = nil
	r.notifyLocked()
	return nil
}

// settleLocked pulls the tail back from the reservation's overwrite mark to
// the bytes that were published or may have been written.
func (r *Ring) settleLocked(res *Reservation, n int) {
	tail := r.base
	if end := res.offset + uint64(max(n, res.touched)); end > uint64(r.capacity) {
		tail = max(tail, end-uint64(r.capacity))
	}
	r.tail.Store(tail)
}

// Write copies n bytes from src into the ring and commits them.
func (r *Ring) Write(ctx context.Context, src unsafe.Pointer, srcSpace api.Space, n int) error {
	res, err := r.Reserve(n)
	if err != nil {
		return err
	}
	if err := res.CopyFrom(ctx, 0, src, srcSpace, n); err != nil {
		_ = res.Abandon()
		return err
	}
	return res.Commit(n)
}

// WriteBytes writes p from system memory.
func (r *Ring) WriteBytes(ctx context.Context, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return r.Write(ctx, unsafe.Pointer(&p[0]), api.SpaceSystem, len(p))
}

// Spans returns the physical ranges holding [off, off+n), which must lie in
// [tail, write). The ranges stay valid only while a guarantee covers them.
func (r *Ring) Spans(off uint64, n int) ([]api.Span, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkReadableLocked("ring.Spans", off, n); err != nil {
		return nil, err
	}
	return r.spansLocked(off, n), nil
}

func (r *Ring) checkReadableLocked(op string, off uint64, n int) error {
	if r.buf == nil {
		return control.Fail(api.StatusInvalidState, op, "backing buffer freed")
	}
	if n < 0 {
		return control.Failf(api.StatusInvalidArgument, op, "negative size %d", n)
	}
	tail, write := r.tail.Load(), r.write.Load()
	if off < tail || off > write || uint64(n) > write-off {
		return control.Failf(api.StatusInvalidArgument, op, "%d bytes at %d outside readable [%d, %d)", n, off, tail, write)
	}
	return nil
}

// Read copies n bytes starting at logical offset off into dst. Without a
// guarantee covering off the writer may overwrite the range concurrently.
func (r *Ring) Read(ctx context.Context, off uint64, dst unsafe.Pointer, dstSpace api.Space, n int) error {
	spans, err := r.Spans(off, n)
	if err != nil {
		return err
	}
	return memory.Guard("ring.Read", func() error {
		for _, s := range spans {
			if err := memory.Copy(ctx, dst, dstSpace, s.Ptr, r.space, s.Len); err != nil {
				return err
			}
			dst = unsafe.Add(dst, s.Len)
		}
		return nil
	})
}

// ReadBytes reads len(p) bytes at off into system memory.
func (r *Ring) ReadBytes(ctx context.Context, off uint64, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return r.Read(ctx, off, unsafe.Pointer(&p[0]), api.SpaceSystem, len(p))
}

// WaitFor blocks until the write offset reaches offset. A closed ring that
// will never get there yields api.StatusEndOfData.
func (r *Ring) WaitFor(ctx context.Context, offset uint64) error {
	for {
		r.mu.Lock()
		reached, closed, ch := r.write.Load() >= offset, r.closed, r.changed
		r.mu.Unlock()
		switch {
		case reached:
			return nil
		case closed:
			return api.NewError(api.StatusEndOfData, "ring.WaitFor", "ring closed")
		}
		select {
		case <-ctx.Done():
			return api.Wrap(ctx.Err(), api.StatusWouldBlock, "ring.WaitFor")
		case <-ch:
		}
	}
}

// OpenGuarantee pins the oldest readable byte.
func (r *Ring) OpenGuarantee() (*Guarantee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openLocked(r.tail.Load())
}

// OpenGuaranteeAt pins off, which must lie in [tail, write].
func (r *Ring) OpenGuaranteeAt(off uint64) (*Guarantee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openLocked(off)
}

func (r *Ring) openLocked(off uint64) (*Guarantee, error) {
	const op = "ring.OpenGuarantee"
	if r.closed {
		return nil, control.Fail(api.StatusInvalidState, op, "ring closed")
	}
	tail, write := r.tail.Load(), r.write.Load()
	if off < tail {
		return nil, control.Failf(api.StatusInvalidArgument, op, "offset %d already reclaimed (tail %d)", off, tail)
	}
	if off > write {
		return nil, control.Failf(api.StatusInvalidArgument, op, "offset %d not yet written (write %d)", off, write)
	}
	id := r.nextID
	r.nextID++
	r.claims[id] = off
	r.refs.Add(1)
	return newGuarantee(r, id, off), nil
}

// ReleaseGuarantee releases g, which must have been opened on r.
func (r *Ring) ReleaseGuarantee(g *Guarantee) error {
	if g == nil {
		return control.Fail(api.StatusInvalidPointer, "ring.ReleaseGuarantee", "nil guarantee")
	}
	if owner := g.Ring(); owner != nil && owner != r {
		return control.Fail(api.StatusInvalidArgument, "ring.ReleaseGuarantee", "guarantee opened on another ring")
	}
	g.Release()
	return nil
}

// releaseClaim removes a claim and drops its ring reference.
func (r *Ring) releaseClaim(id uint64) {
	r.mu.Lock()
	_, ok := r.claims[id]
	delete(r.claims, id)
	if ok {
		r.notifyLocked()
	}
	r.mu.Unlock()
	if ok {
		r.unref()
	}
}

// Guarantees returns the number of live claims.
func (r *Ring) Guarantees() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.claims)
}

// Resize moves the ring to a new allocation of newCap bytes, keeping the
// newest readable bytes at their logical offsets. It requires no live
// guarantee and no pending reservation, and must not race with other calls.
func (r *Ring) Resize(ctx context.Context, newCap int) error {
	const op = "ring.Resize"
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closed:
		return control.Fail(api.StatusInvalidState, op, "ring closed")
	case len(r.claims) > 0:
		return control.Failf(api.StatusInvalidState, op, "%d guarantees outstanding", len(r.claims))
	case r.pending != nil:
		return control.Fail(api.StatusInvalidState, op, "reservation pending")
	case newCap <= 0:
		return control.Failf(api.StatusInvalidArgument, op, "capacity must be positive, got %d", newCap)
	}
	next, err := memory.Allocate(newCap, r.space)
	if err != nil {
		return err
	}
	write, tail := r.write.Load(), r.tail.Load()
	keep := min(write-tail, uint64(newCap))
	start := write - keep
	err = memory.Guard(op, func() error {
		for off, left := start, int(keep); left > 0; {
			sp := int(off % uint64(r.capacity))
			dp := int(off % uint64(newCap))
			chunk := min(left, r.capacity-sp, newCap-dp)
			if err := memory.Copy(ctx, next.At(dp), r.space, r.buf.At(sp), r.space, chunk); err != nil {
				return err
			}
			off += uint64(chunk)
			left -= chunk
		}
		if !r.space.HostAccessible() {
			if err := device.Synchronize(ctx); err != nil {
				return api.Wrap(err, api.StatusDeviceError, op)
			}
		}
		return nil
	})
	if err != nil {
		_ = next.Free()
		return err
	}
	old := r.buf
	r.buf, r.capacity = next, newCap
	if start > tail {
		r.tail.Store(start)
	}
	r.notifyLocked()
	control.Trace("%s: %d -> %d bytes, kept %d", op, old.Len(), newCap, keep)
	return old.Free()
}

// Close drops the owner reference. Writer operations fail afterwards;
// the allocation is freed once every guarantee has been released.
func (r *Ring) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.pending = nil
	r.notifyLocked()
	r.mu.Unlock()
	return r.unref()
}

// Closed reports whether Close has been called.
func (r *Ring) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Refs returns the current reference count.
func (r *Ring) Refs() int64 { return r.refs.Load() }

func (r *Ring) unref() error {
	if r.refs.Add(-1) != 0 {
		return nil
	}
	r.mu.Lock()
	buf := r.buf
	r.buf = nil
	r.mu.Unlock()
	if buf == nil {
		return nil
	}
	if err := buf.Free(); err != nil {
		klog.Warningf("ring %s: free backing buffer: %v", r.id, err)
		return err
	}
	return nil
}
