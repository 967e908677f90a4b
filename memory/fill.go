// File: memory/fill.go
// Author: momentics <momentics@gmail.com>

package memory

import (
	"context"
	"unsafe"

	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/control"
	"github.com/momentics/hioload-ring/device"
)

// fillRoute reports whether ptr in space is filled in process.
func fillRoute(op string, ptr unsafe.Pointer, space api.Space) (bool, error) {
	space, err := resolve(ptr, space)
	if err != nil {
		return false, err
	}
	switch {
	case !space.Valid():
		return false, control.Failf(api.StatusInvalidSpace, op, "unknown space %d", int(space))
	case space == api.SpaceShared:
		return false, control.Fail(api.StatusUnsupportedSpace, op, "shared memory fill is not implemented")
	case space.HostAccessible():
		return true, nil
	case !device.Enabled():
		return false, control.Failf(api.StatusUnsupportedSpace, op, "%s fill requires a registered device", space)
	}
	return false, nil
}

func memset(b []byte, value byte) {
	for i := range b {
		b[i] = value
	}
}

// Fill sets n bytes at ptr to value. ptr must be non-nil even when n is zero.
func Fill(ctx context.Context, ptr unsafe.Pointer, space api.Space, value byte, n int) error {
	const op = "memory.Fill"
	return Guard(op, func() error {
		if ptr == nil {
			return control.Fail(api.StatusInvalidPointer, op, "nil pointer")
		}
		if n < 0 {
			return control.Failf(api.StatusInvalidArgument, op, "negative count %d", n)
		}
		if n == 0 {
			return nil
		}
		host, err := fillRoute(op, ptr, space)
		if err != nil {
			return err
		}
		if host {
			memset(hostBytes(ptr, n), value)
			return nil
		}
		if err := device.Current().MemsetAsync(device.StreamFrom(ctx), ptr, value, n); err != nil {
			return opError(op, err, device.CopyDefault)
		}
		return nil
	})
}

// Fill2D sets height rows of width bytes, rows starting every stride bytes.
func Fill2D(ctx context.Context, ptr unsafe.Pointer, stride int, space api.Space, value byte, width, height int) error {
	const op = "memory.Fill2D"
	return Guard(op, func() error {
		if ptr == nil {
			return control.Fail(api.StatusInvalidPointer, op, "nil pointer")
		}
		if width < 0 || height < 0 {
			return control.Failf(api.StatusInvalidArgument, op, "negative extent %dx%d", width, height)
		}
		if width*height == 0 {
			return nil
		}
		if height > 1 && stride < width {
			return control.Failf(api.StatusInvalidArgument, op, "width %d exceeds stride %d", width, stride)
		}
		host, err := fillRoute(op, ptr, space)
		if err != nil {
			return err
		}
		if host {
			for row := 0; row < height; row++ {
				memset(hostBytes(unsafe.Add(ptr, row*stride), width), value)
			}
			return nil
		}
		if err := device.Current().Memset2DAsync(device.StreamFrom(ctx), ptr, stride, value, width, height); err != nil {
			return opError(op, err, device.CopyDefault)
		}
		return nil
	})
}
