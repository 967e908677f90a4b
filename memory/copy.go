// File: memory/copy.go
// Author: momentics <momentics@gmail.com>
//
// Space-pair dispatch for linear and strided copies.

package memory

import (
	"context"
	"unsafe"

	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/control"
	"github.com/momentics/hioload-ring/device"
)

// route is the resolved plan for moving bytes between two spaces.
type route struct {
	host bool // both ends host accessible: plain memmove
	kind device.CopyKind
}

// plan resolves Auto on both ends and picks host copy or device transfer.
func plan(op string, dst unsafe.Pointer, dstSpace api.Space, src unsafe.Pointer, srcSpace api.Space) (route, error) {
	var err error
	if srcSpace, err = resolve(src, srcSpace); err != nil {
		return route{}, err
	}
	if dstSpace, err = resolve(dst, dstSpace); err != nil {
		return route{}, err
	}
	for _, s := range [...]api.Space{srcSpace, dstSpace} {
		switch {
		case !s.Valid():
			return route{}, control.Failf(api.StatusInvalidSpace, op, "unknown space %d", int(s))
		case s == api.SpaceShared:
			return route{}, control.Fail(api.StatusUnsupportedSpace, op, "shared memory transfers are not implemented")
		}
	}
	if srcSpace.HostAccessible() && dstSpace.HostAccessible() {
		return route{host: true}, nil
	}
	if !device.Enabled() {
		return route{}, control.Failf(api.StatusUnsupportedSpace, op, "%s -> %s transfer requires a registered device", srcSpace, dstSpace)
	}
	r := route{kind: device.CopyDefault}
	switch {
	case srcSpace == api.SpaceManaged || dstSpace == api.SpaceManaged:
		r.kind = device.CopyDefault
	case srcSpace.HostAccessible() && dstSpace == api.SpaceDevice:
		r.kind = device.CopyHostToDevice
	case srcSpace == api.SpaceDevice && dstSpace.HostAccessible():
		r.kind = device.CopyDeviceToHost
	case srcSpace == api.SpaceDevice && dstSpace == api.SpaceDevice:
		r.kind = device.CopyDeviceToDevice
	default:
		return route{}, control.Failf(api.StatusInvalidArgument, op, "no transfer from %s to %s", srcSpace, dstSpace)
	}
	return r, nil
}

func hostBytes(p unsafe.Pointer, n int) []byte {
	return unsafe.Slice((*byte)(p), n)
}

// Copy moves n bytes from src to dst. A zero-byte copy succeeds without
// looking at the pointers. Device transfers are queued on the stream bound
// to ctx and complete only after device.Synchronize.
func Copy(ctx context.Context, dst unsafe.Pointer, dstSpace api.Space, src unsafe.Pointer, srcSpace api.Space, n int) error {
	const op = "memory.Copy"
	return Guard(op, func() error {
		if n < 0 {
			return control.Failf(api.StatusInvalidArgument, op, "negative count %d", n)
		}
		if n == 0 {
			return nil
		}
		if dst == nil {
			return control.Fail(api.StatusInvalidPointer, op, "nil destination pointer")
		}
		if src == nil {
			return control.Fail(api.StatusInvalidPointer, op, "nil source pointer")
		}
		r, err := plan(op, dst, dstSpace, src, srcSpace)
		if err != nil {
			return err
		}
		if r.host {
			copy(hostBytes(dst, n), hostBytes(src, n))
			return nil
		}
		d := device.Current()
		if err := d.MemcpyAsync(device.StreamFrom(ctx), dst, src, n, r.kind); err != nil {
			return opError(op, err, r.kind)
		}
		control.Trace("%s: queued %d bytes %s", op, n, r.kind)
		return nil
	})
}

// Copy2D copies height rows of width bytes; rows start every dstStride bytes
// in dst and every srcStride bytes in src.
func Copy2D(ctx context.Context,
	dst unsafe.Pointer, dstStride int, dstSpace api.Space,
	src unsafe.Pointer, srcStride int, srcSpace api.Space,
	width, height int) error {
	const op = "memory.Copy2D"
	return Guard(op, func() error {
		if width < 0 || height < 0 {
			return control.Failf(api.StatusInvalidArgument, op, "negative extent %dx%d", width, height)
		}
		if width*height == 0 {
			return nil
		}
		if dst == nil {
			return control.Fail(api.StatusInvalidPointer, op, "nil destination pointer")
		}
		if src == nil {
			return control.Fail(api.StatusInvalidPointer, op, "nil source pointer")
		}
		if height > 1 && (dstStride < width || srcStride < width) {
			return control.Failf(api.StatusInvalidArgument, op, "width %d exceeds stride (dst %d, src %d)", width, dstStride, srcStride)
		}
		r, err := plan(op, dst, dstSpace, src, srcSpace)
		if err != nil {
			return err
		}
		if r.host {
			for row := 0; row < height; row++ {
				copy(hostBytes(unsafe.Add(dst, row*dstStride), width),
					hostBytes(unsafe.Add(src, row*srcStride), width))
			}
			return nil
		}
		d := device.Current()
		if err := d.Memcpy2DAsync(device.StreamFrom(ctx), dst, dstStride, src, srcStride, width, height, r.kind); err != nil {
			return opError(op, err, r.kind)
		}
		return nil
	})
}

func opError(op string, err error, kind device.CopyKind) error {
	if e, ok := err.(*api.Error); ok {
		return e
	}
	e := api.Wrap(err, api.StatusMemOpFailed, op).WithContext("kind", kind.String())
	control.Report(1, e)
	return e
}
