// Package device
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Binding of streams to a context, replacing per-thread stream state.

package device

import (
	"context"

	"github.com/pkg/errors"
)

type streamKey struct{}

// WithStream returns a context whose device operations are issued on s.
func WithStream(ctx context.Context, s Stream) context.Context {
	return context.WithValue(ctx, streamKey{}, s)
}

// StreamFrom returns the stream bound to ctx, else the default stream of
// the current device, else nil.
func StreamFrom(ctx context.Context) Stream {
	if ctx != nil {
		if s, ok := ctx.Value(streamKey{}).(Stream); ok && s != nil {
			return s
		}
	}
	if d := Current(); d != nil {
		return d.DefaultStream()
	}
	return nil
}

// Synchronize waits for work queued on the stream selected by ctx.
// Without a device it returns immediately.
func Synchronize(ctx context.Context) error {
	s := StreamFrom(ctx)
	if s == nil {
		return nil
	}
	if err := s.Synchronize(); err != nil {
		return errors.Wrapf(err, "synchronize stream %d", s.ID())
	}
	return nil
}
