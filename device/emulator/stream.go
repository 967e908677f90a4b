// Package emulator
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package emulator

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-ring/device"
	"github.com/pkg/errors"
)

var _ device.Stream = (*Stream)(nil)

// Stream is a FIFO of pending operations executed on Synchronize.
type Stream struct {
	id  int
	dev *Emulator

	mu  sync.Mutex
	ops *queue.Queue // of func() error
}

func newStream(e *Emulator, id int) *Stream {
	return &Stream{id: id, dev: e, ops: queue.New()}
}

func (s *Stream) ID() int { return s.id }

func (s *Stream) enqueue(op func() error) {
	s.mu.Lock()
	s.ops.Add(op)
	s.mu.Unlock()
}

// Len returns the number of queued operations.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.Length()
}

// Synchronize runs queued operations in order. Every operation runs even if
// one fails; the first failure is returned.
func (s *Stream) Synchronize() error {
	if err := s.dev.fault(OpSync); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for s.ops.Length() > 0 {
		op := s.ops.Remove().(func() error)
		if err := op(); err != nil && first == nil {
			first = errors.WithMessagef(err, "stream %d", s.id)
		}
	}
	return first
}
