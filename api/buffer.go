// Package api
// Author: momentics
//
// Memory regions owned by a single memory space.
//
// Regions may be heap, mmap, page-locked, or device-backed memory.
// Device-backed regions expose no host view; data moves only through copy calls.

package api

import "unsafe"

// Buffer describes one contiguous allocation in a concrete memory space.
type Buffer interface {
	// Ptr returns the base address. Zero-length buffers return a non-nil sentinel.
	Ptr() unsafe.Pointer

	// Len returns the usable size in bytes.
	Len() int

	// Space returns the backing memory space.
	Space() Space

	// Bytes returns a host view, or nil when the space is not host accessible.
	Bytes() []byte

	// Free releases the region; later calls are no-ops.
	Free() error
}

// Span is a contiguous physical byte range inside a Buffer.
type Span struct {
	Ptr unsafe.Pointer
	Len int
}

// HostPtr returns the address of p's first byte, or nil for an empty slice.
func HostPtr(p []byte) unsafe.Pointer {
	if len(p) == 0 {
		return nil
	}
	return unsafe.Pointer(&p[0])
}
