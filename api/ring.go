// Package api
// Author: momentics@gmail.com
//
// Byte ring contract for a single writer and guarded readers.

package api

import "context"

// ByteRing is the writer-side contract of a guarded circular byte buffer.
type ByteRing interface {
	// Capacity returns the size of the backing allocation.
	Capacity() int
	// Space returns the memory space backing the ring.
	Space() Space
	// WriteOffset is the logical count of bytes ever committed.
	WriteOffset() uint64
	// TailOffset is the logical offset below which bytes may be overwritten.
	TailOffset() uint64
	// WriteBytes reserves, copies and commits p, returning ErrWouldBlock if
	// guarantees hold the needed space.
	WriteBytes(ctx context.Context, p []byte) error
	// Close drops the owner reference.
	Close() error
}
