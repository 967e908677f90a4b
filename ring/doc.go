// Package ring
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Guarded circular byte buffer over any memory space.
//
// A Ring tracks two unbounded, monotonic byte offsets: the write offset
// (bytes ever committed) and the tail offset (bytes below which the writer
// may overwrite). Readers hold Guarantees, each pinning a logical offset;
// the writer can only reclaim space below the lowest live Guarantee.
//
// Writer protocol: Reserve, fill the returned spans, Commit (or Abandon).
// Reserve never blocks; it returns api.ErrWouldBlock when guarantees hold the
// space. ReserveWait is the blocking variant.
//
// Reader protocol: OpenGuarantee, Read, Move/Advance, Release.
//
// Copies into or out of device-backed rings are queued on the stream bound to
// the context (see device.WithStream) and complete at device.Synchronize.
//
// The backing allocation is reference counted: the owner holds one reference
// (dropped by Close) and every live Guarantee holds one.
package ring
