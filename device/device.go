// Package device
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Contract for the accelerator collaborator: device memory, asynchronous
// transfers on streams, and pointer introspection. The memory package
// consumes it; bindings to a real runtime register themselves here.

package device

import (
	"fmt"
	"unsafe"

	"github.com/momentics/hioload-ring/api"
)

// CopyKind gives the direction of a device transfer.
type CopyKind int

const (
	CopyDefault CopyKind = iota // inferred by the device from the pointers
	CopyHostToDevice
	CopyDeviceToHost
	CopyDeviceToDevice
)

func (k CopyKind) String() string {
	switch k {
	case CopyDefault:
		return "default"
	case CopyHostToDevice:
		return "host-to-device"
	case CopyDeviceToHost:
		return "device-to-host"
	case CopyDeviceToDevice:
		return "device-to-device"
	}
	return fmt.Sprintf("copykind(%d)", int(k))
}

// Stream orders asynchronous device work.
type Stream interface {
	// ID identifies the stream within its device.
	ID() int
	// Synchronize blocks until all work queued on the stream has completed.
	Synchronize() error
}

// Device is an accelerator runtime able to hold memory in the device-backed
// spaces (SpaceDevice, SpacePinnedHost, SpaceManaged).
//
// Errors returned by a Device are raw runtime failures; the memory package
// maps them onto the api.Status taxonomy.
type Device interface {
	// Name is a short identifier, e.g. "emulator".
	Name() string

	// Malloc allocates size bytes in space.
	Malloc(size int, space api.Space) (unsafe.Pointer, error)
	// Free releases memory obtained from Malloc.
	Free(ptr unsafe.Pointer, space api.Space) error
	// PointerSpace reports the space of ptr if it belongs to this device.
	PointerSpace(ptr unsafe.Pointer) (api.Space, bool)

	// MemcpyAsync queues a linear copy on s.
	MemcpyAsync(s Stream, dst, src unsafe.Pointer, n int, kind CopyKind) error
	// Memcpy2DAsync queues a strided copy of height rows of width bytes on s.
	Memcpy2DAsync(s Stream, dst unsafe.Pointer, dstStride int, src unsafe.Pointer, srcStride int, width, height int, kind CopyKind) error
	// MemsetAsync queues a fill of n bytes on s.
	MemsetAsync(s Stream, ptr unsafe.Pointer, value byte, n int) error
	// Memset2DAsync queues a strided fill on s.
	Memset2DAsync(s Stream, ptr unsafe.Pointer, stride int, value byte, width, height int) error

	// DefaultStream is used when no stream is bound to the context.
	DefaultStream() Stream
	// NewStream creates an independent stream.
	NewStream() (Stream, error)
}
