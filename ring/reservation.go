// File: ring/reservation.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ring

import (
	"context"
	"unsafe"

	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/control"
	"github.com/momentics/hioload-ring/memory"
)

// Reservation is the writer's view of bytes claimed by Reserve but not yet
// published. It is consumed by exactly one Commit or Abandon; afterwards
// every method except Offset and Len fails or returns nothing.
type Reservation struct {
	ring    *Ring
	offset  uint64
	size    int
	spans   []api.Span
	touched int // high-water mark of bytes handed to the writer; r.mu
}

// Offset is the logical offset of the first reserved byte.
func (res *Reservation) Offset() uint64 { return res.offset }

// Len is the reserved size in bytes.
func (res *Reservation) Len() int { return res.size }

// Spans are the physical ranges to fill, in logical order. The second span
// exists only when the reservation wraps. Spans is nil once the
// reservation is no longer pending, and the writer must not use earlier
// results after Commit or Abandon.
func (res *Reservation) Spans() []api.Span {
	r := res.ring
	r.mu.Lock()
	defer r.mu.Unlock()
	if res != r.pending {
		return nil
	}
	res.touched = res.size
	return res.spans
}

// CopyFrom copies n bytes from src into the reservation starting at byte at.
// It fails with StatusInvalidState once the reservation has been committed,
// abandoned or dropped by Close.
func (res *Reservation) CopyFrom(ctx context.Context, at int, src unsafe.Pointer, srcSpace api.Space, n int) error {
	const op = "ring.Reservation.CopyFrom"
	if at < 0 || n < 0 || at > res.size || n > res.size-at {
		return control.Failf(api.StatusInvalidArgument, op, "%d bytes at %d outside reservation of %d", n, at, res.size)
	}
	r := res.ring
	r.mu.Lock()
	defer r.mu.Unlock()
	if res != r.pending {
		return control.Fail(api.StatusInvalidState, op, "reservation no longer pending")
	}
	res.touched = max(res.touched, at+n)
	return memory.Guard(op, func() error {
		for _, s := range res.spans {
			if n == 0 {
				break
			}
			if at >= s.Len {
				at -= s.Len
				continue
			}
			chunk := min(n, s.Len-at)
			if err := memory.Copy(ctx, unsafe.Add(s.Ptr, at), r.space, src, srcSpace, chunk); err != nil {
				return err
			}
			src = unsafe.Add(src, chunk)
			n -= chunk
			at = 0
		}
		return nil
	})
}

// Commit publishes the first n reserved bytes.
func (res *Reservation) Commit(n int) error {
	r := res.ring
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitLocked(res, n)
}

// Abandon releases the reservation without publishing.
func (res *Reservation) Abandon() error {
	r := res.ring
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abandonLocked(res)
}
