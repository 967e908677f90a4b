// Package emulator
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Software implementation of device.Device. Device-resident memory lives
// off the Go heap and is only touched by queued stream operations, so
// transfers keep real asynchronous semantics: data becomes visible after
// the stream is synchronized.

package emulator

import (
	"sort"
	"sync"
	"unsafe"

	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/device"
	"github.com/pkg/errors"
)

// Op names an emulator entry point for fault injection.
type Op int

const (
	OpMalloc Op = iota
	OpCopy
	OpSet
	OpSync
)

// ErrInjected is returned by operations failed through InjectFault.
var ErrInjected = errors.New("emulator: injected fault")

type region struct {
	base  uintptr
	mem   []byte
	space api.Space
}

func (r *region) contains(p uintptr) bool {
	return p >= r.base && p < r.base+uintptr(len(r.mem))
}

// Emulator is a software device. The zero value is not usable; call New.
type Emulator struct {
	mu      sync.Mutex
	regions []*region // sorted by base
	used    int
	limit   int
	faults  map[Op]int
	streams []*Stream
	nextID  int
	def     *Stream
}

// Option configures an Emulator.
type Option func(*Emulator)

// WithMemoryLimit caps the bytes the emulator will hand out.
func WithMemoryLimit(bytes int) Option {
	return func(e *Emulator) { e.limit = bytes }
}

var _ device.Device = (*Emulator)(nil)

// New creates an emulator with one default stream.
func New(opts ...Option) *Emulator {
	e := &Emulator{faults: make(map[Op]int)}
	for _, o := range opts {
		o(e)
	}
	e.def = e.newStream()
	return e
}

func (e *Emulator) Name() string { return "emulator" }

// InjectFault makes the next count calls of op fail with ErrInjected.
func (e *Emulator) InjectFault(op Op, count int) {
	e.mu.Lock()
	e.faults[op] += count
	e.mu.Unlock()
}

func (e *Emulator) fault(op Op) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.faults[op] > 0 {
		e.faults[op]--
		return ErrInjected
	}
	return nil
}

// Used returns the bytes currently allocated.
func (e *Emulator) Used() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.used
}

// Malloc allocates device, pinned or managed memory.
func (e *Emulator) Malloc(size int, space api.Space) (unsafe.Pointer, error) {
	switch space {
	case api.SpaceDevice, api.SpacePinnedHost, api.SpaceManaged:
	default:
		return nil, errors.Errorf("emulator: cannot allocate in space %s", space)
	}
	if size <= 0 {
		return nil, errors.Errorf("emulator: invalid allocation size %d", size)
	}
	if err := e.fault(OpMalloc); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.limit > 0 && e.used+size > e.limit {
		return nil, errors.Errorf("emulator: out of memory (%d of %d bytes used, %d requested)", e.used, e.limit, size)
	}
	mem, err := mapMemory(size)
	if err != nil {
		return nil, errors.Wrap(err, "emulator: map device memory")
	}
	r := &region{base: uintptr(unsafe.Pointer(&mem[0])), mem: mem, space: space}
	i := sort.Search(len(e.regions), func(i int) bool { return e.regions[i].base >= r.base })
	e.regions = append(e.regions, nil)
	copy(e.regions[i+1:], e.regions[i:])
	e.regions[i] = r
	e.used += size
	return unsafe.Pointer(&mem[0]), nil
}

// Free releases memory; space must match the allocation unless it is SpaceAuto.
func (e *Emulator) Free(ptr unsafe.Pointer, space api.Space) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, r := e.lookup(uintptr(ptr))
	if r == nil || r.base != uintptr(ptr) {
		return errors.Errorf("emulator: %p is not an allocation base", ptr)
	}
	if space != api.SpaceAuto && space != r.space {
		return errors.Errorf("emulator: %p allocated in %s, freed as %s", ptr, r.space, space)
	}
	e.regions = append(e.regions[:i], e.regions[i+1:]...)
	e.used -= len(r.mem)
	return unmapMemory(r.mem)
}

// lookup finds the region containing p; callers hold e.mu.
func (e *Emulator) lookup(p uintptr) (int, *region) {
	i := sort.Search(len(e.regions), func(i int) bool { return e.regions[i].base > p }) - 1
	if i < 0 || !e.regions[i].contains(p) {
		return -1, nil
	}
	return i, e.regions[i]
}

// PointerSpace reports the space of ptr when it lies in an emulator allocation.
func (e *Emulator) PointerSpace(ptr unsafe.Pointer) (api.Space, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, r := e.lookup(uintptr(ptr))
	if r == nil {
		return api.SpaceAuto, false
	}
	return r.space, true
}

// checkRange verifies that [p, p+n) is inside one region; deviceSide selects
// whether it must be device-resident (device or managed) or must not be.
func (e *Emulator) checkRange(p unsafe.Pointer, n int, deviceSide bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, r := e.lookup(uintptr(p))
	if !deviceSide {
		if r != nil && r.space == api.SpaceDevice {
			return errors.Errorf("emulator: %p is device memory, host pointer expected", p)
		}
		return nil
	}
	if r == nil || r.space == api.SpacePinnedHost {
		return errors.Errorf("emulator: %p is not device memory", p)
	}
	if uintptr(p)+uintptr(n) > r.base+uintptr(len(r.mem)) {
		return errors.Errorf("emulator: range %p+%d exceeds allocation", p, n)
	}
	return nil
}

func (e *Emulator) checkKind(dst unsafe.Pointer, dstLen int, src unsafe.Pointer, srcLen int, kind device.CopyKind) error {
	var dstDevice, srcDevice bool
	switch kind {
	case device.CopyDefault:
		return nil
	case device.CopyHostToDevice:
		dstDevice = true
	case device.CopyDeviceToHost:
		srcDevice = true
	case device.CopyDeviceToDevice:
		dstDevice, srcDevice = true, true
	default:
		return errors.Errorf("emulator: unknown copy kind %d", int(kind))
	}
	if err := e.checkRange(src, srcLen, srcDevice); err != nil {
		return err
	}
	return e.checkRange(dst, dstLen, dstDevice)
}

func (e *Emulator) stream(s device.Stream) (*Stream, error) {
	if s == nil {
		return e.def, nil
	}
	es, ok := s.(*Stream)
	if !ok || es.dev != e {
		return nil, errors.Errorf("emulator: foreign stream %T", s)
	}
	return es, nil
}

// MemcpyAsync queues a linear copy.
func (e *Emulator) MemcpyAsync(s device.Stream, dst, src unsafe.Pointer, n int, kind device.CopyKind) error {
	return e.Memcpy2DAsync(s, dst, n, src, n, n, 1, kind)
}

// Memcpy2DAsync queues a strided copy.
func (e *Emulator) Memcpy2DAsync(s device.Stream, dst unsafe.Pointer, dstStride int, src unsafe.Pointer, srcStride int, width, height int, kind device.CopyKind) error {
	es, err := e.stream(s)
	if err != nil {
		return err
	}
	if err := e.fault(OpCopy); err != nil {
		return err
	}
	if width == 0 || height == 0 {
		return nil
	}
	span := func(stride int) int { return stride*(height-1) + width }
	if err := e.checkKind(dst, span(dstStride), src, span(srcStride), kind); err != nil {
		return err
	}
	es.enqueue(func() error {
		for row := 0; row < height; row++ {
			d := unsafe.Slice((*byte)(unsafe.Add(dst, row*dstStride)), width)
			s := unsafe.Slice((*byte)(unsafe.Add(src, row*srcStride)), width)
			copy(d, s)
		}
		return nil
	})
	return nil
}

// MemsetAsync queues a fill.
func (e *Emulator) MemsetAsync(s device.Stream, ptr unsafe.Pointer, value byte, n int) error {
	return e.Memset2DAsync(s, ptr, n, value, n, 1)
}

// Memset2DAsync queues a strided fill.
func (e *Emulator) Memset2DAsync(s device.Stream, ptr unsafe.Pointer, stride int, value byte, width, height int) error {
	es, err := e.stream(s)
	if err != nil {
		return err
	}
	if err := e.fault(OpSet); err != nil {
		return err
	}
	if width == 0 || height == 0 {
		return nil
	}
	if err := e.checkRange(ptr, stride*(height-1)+width, true); err != nil {
		return err
	}
	es.enqueue(func() error {
		for row := 0; row < height; row++ {
			d := unsafe.Slice((*byte)(unsafe.Add(ptr, row*stride)), width)
			for i := range d {
				d[i] = value
			}
		}
		return nil
	})
	return nil
}

// DefaultStream returns the stream used when none is bound.
func (e *Emulator) DefaultStream() device.Stream { return e.def }

// NewStream creates an independent stream.
func (e *Emulator) NewStream() (device.Stream, error) {
	return e.newStream(), nil
}

func (e *Emulator) newStream() *Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := newStream(e, e.nextID)
	e.nextID++
	e.streams = append(e.streams, s)
	return s
}

// Pending returns the number of queued, not yet executed, operations.
func (e *Emulator) Pending() int {
	e.mu.Lock()
	streams := append([]*Stream{}, e.streams...)
	e.mu.Unlock()
	n := 0
	for _, s := range streams {
		n += s.Len()
	}
	return n
}

// SynchronizeAll drains every stream.
func (e *Emulator) SynchronizeAll() error {
	e.mu.Lock()
	streams := append([]*Stream{}, e.streams...)
	e.mu.Unlock()
	var first error
	for _, s := range streams {
		if err := s.Synchronize(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
