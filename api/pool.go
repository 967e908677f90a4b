// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Defines abstract allocation APIs over memory spaces.

package api

import "unsafe"

// Allocator hands out raw aligned memory for a single concrete space.
type Allocator interface {
	// Space is the concrete space this allocator serves.
	Space() Space

	// Alloc returns size bytes, aligned to the library alignment.
	Alloc(size int) (unsafe.Pointer, error)

	// Release returns memory obtained from Alloc.
	Release(ptr unsafe.Pointer) error

	// Owns reports whether ptr lies inside a live allocation of this allocator.
	Owns(ptr unsafe.Pointer) bool
}

// AllocatorStats aggregates allocation accounting for observability.
type AllocatorStats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
	LiveBytes  int64
}
