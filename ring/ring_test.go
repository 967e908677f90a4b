// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package ring

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/momentics/hioload-ring/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRing(t *testing.T, capacity int) *Ring {
	t.Helper()
	r, err := New(Options{Capacity: capacity, Space: api.SpaceSystem})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func seq(off uint64, n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte((off + uint64(i)) % 251)
	}
	return p
}

func requireStatus(t *testing.T, want api.Status, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, api.StatusOf(err), "error: %v", err)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Capacity: 0, Space: api.SpaceSystem})
	requireStatus(t, api.StatusInvalidArgument, err)

	_, err = New(Options{Capacity: 64, Space: api.SpaceAuto})
	requireStatus(t, api.StatusInvalidSpace, err)

	_, err = New(Options{Capacity: 64, Space: api.SpaceShared})
	requireStatus(t, api.StatusUnsupportedSpace, err)

	r := newRing(t, 64)
	assert.Equal(t, 64, r.Capacity())
	assert.Equal(t, api.SpaceSystem, r.Space())
	assert.Zero(t, r.WriteOffset())
	assert.Zero(t, r.TailOffset())
}

func TestReserveWrapsWithoutGuarantees(t *testing.T) {
	r := newRing(t, 1024)
	require.NoError(t, r.WriteBytes(context.Background(), seq(0, 600)))
	assert.Equal(t, uint64(600), r.WriteOffset())
	assert.Zero(t, r.TailOffset())

	res, err := r.Reserve(600)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), res.Offset())
	assert.Equal(t, uint64(176), r.TailOffset())
	require.NoError(t, r.Commit(600))
	assert.Equal(t, uint64(1200), r.WriteOffset())
	assert.Equal(t, uint64(176), r.TailOffset())
}

func TestGuaranteeBlocksReclaim(t *testing.T) {
	r := newRing(t, 1024)
	require.NoError(t, r.WriteBytes(context.Background(), seq(0, 600)))

	g, err := r.OpenGuaranteeAt(0)
	require.NoError(t, err)

	// Fits without reclaiming anything.
	res, err := r.Reserve(424)
	require.NoError(t, err)
	require.NoError(t, res.Abandon())

	_, err = r.Reserve(600)
	requireStatus(t, api.StatusWouldBlock, err)
	assert.True(t, errors.Is(err, api.ErrWouldBlock))
	assert.Equal(t, uint64(600), r.WriteOffset())
	assert.Zero(t, r.TailOffset())
	assert.Zero(t, r.State().Reserved)

	g.Release()
	_, err = r.Reserve(600)
	require.NoError(t, err)
	assert.Equal(t, uint64(176), r.TailOffset())
	require.NoError(t, r.Commit(600))
	assert.Equal(t, uint64(1200), r.WriteOffset())
}

func TestReclaimLimitIsMinimumOfLiveSet(t *testing.T) {
	r := newRing(t, 1024)
	require.NoError(t, r.WriteBytes(context.Background(), seq(0, 600)))

	a, err := r.OpenGuaranteeAt(100)
	require.NoError(t, err)
	b, err := r.OpenGuaranteeAt(100)
	require.NoError(t, err)
	c, err := r.OpenGuaranteeAt(300)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Guarantees())
	assert.Equal(t, uint64(100), r.State().MinGuarantee)

	// Needs offsets below 200 reclaimed.
	_, err = r.Reserve(624)
	requireStatus(t, api.StatusWouldBlock, err)

	a.Release()
	_, err = r.Reserve(624)
	requireStatus(t, api.StatusWouldBlock, err)

	require.NoError(t, b.Move(250))
	res, err := r.Reserve(624)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), r.TailOffset())
	require.NoError(t, res.Commit(624))

	b.Release()
	c.Release()
	assert.Zero(t, r.Guarantees())
}

func TestGuaranteeMoveIsMonotonic(t *testing.T) {
	r := newRing(t, 256)
	require.NoError(t, r.WriteBytes(context.Background(), seq(0, 200)))

	g, err := r.OpenGuaranteeAt(50)
	require.NoError(t, err)
	defer g.Release()

	requireStatus(t, api.StatusInvalidArgument, g.Move(49))
	assert.Equal(t, uint64(50), g.Offset())
	requireStatus(t, api.StatusInvalidArgument, g.Move(201))
	assert.Equal(t, uint64(50), g.Offset())

	require.NoError(t, g.Move(50))
	require.NoError(t, g.Move(120))
	require.NoError(t, g.Advance(30))
	assert.Equal(t, uint64(150), g.Offset())
	assert.Equal(t, 50, g.Available())
	require.NoError(t, g.Move(200))
	assert.Zero(t, g.Available())
	requireStatus(t, api.StatusInvalidArgument, g.Advance(-1))
}

func TestOpenGuaranteeBounds(t *testing.T) {
	r := newRing(t, 64)
	require.NoError(t, r.WriteBytes(context.Background(), seq(0, 48)))
	require.NoError(t, r.WriteBytes(context.Background(), seq(48, 48)))
	require.Equal(t, uint64(32), r.TailOffset())

	_, err := r.OpenGuaranteeAt(31)
	requireStatus(t, api.StatusInvalidArgument, err)
	_, err = r.OpenGuaranteeAt(97)
	requireStatus(t, api.StatusInvalidArgument, err)

	g, err := r.OpenGuarantee()
	require.NoError(t, err)
	assert.Equal(t, uint64(32), g.Offset())
	g.Release()

	g, err = r.OpenGuaranteeAt(96)
	require.NoError(t, err)
	assert.Zero(t, g.Available())
	g.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := newRing(t, 64)
	g, err := r.OpenGuarantee()
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Refs())
	assert.Same(t, r, g.Ring())

	g.Release()
	assert.False(t, g.Live())
	assert.Nil(t, g.Ring())
	assert.Equal(t, int64(1), r.Refs())

	g.Release()
	assert.Equal(t, int64(1), r.Refs())
	assert.Zero(t, r.Guarantees())

	requireStatus(t, api.StatusInvalidHandle, g.Move(0))
	require.NoError(t, r.ReleaseGuarantee(g))
	requireStatus(t, api.StatusInvalidPointer, r.ReleaseGuarantee(nil))
}

func TestReleaseGuaranteeChecksOwner(t *testing.T) {
	r1 := newRing(t, 64)
	r2 := newRing(t, 64)
	g, err := r1.OpenGuarantee()
	require.NoError(t, err)
	requireStatus(t, api.StatusInvalidArgument, r2.ReleaseGuarantee(g))
	assert.True(t, g.Live())
	require.NoError(t, r1.ReleaseGuarantee(g))
	assert.False(t, g.Live())
}

func TestTakeTransfersClaim(t *testing.T) {
	r := newRing(t, 64)
	require.NoError(t, r.WriteBytes(context.Background(), seq(0, 10)))
	g, err := r.OpenGuaranteeAt(4)
	require.NoError(t, err)

	moved, err := g.Take()
	require.NoError(t, err)
	assert.False(t, g.Live())
	assert.True(t, moved.Live())
	assert.Equal(t, uint64(4), moved.Offset())
	assert.Equal(t, 1, r.Guarantees())
	assert.Equal(t, int64(2), r.Refs())

	g.Release()
	assert.Equal(t, 1, r.Guarantees())

	_, err = g.Take()
	requireStatus(t, api.StatusInvalidHandle, err)

	moved.Release()
	assert.Zero(t, r.Guarantees())
	assert.Equal(t, int64(1), r.Refs())
}

func TestLeakedGuaranteeIsReleased(t *testing.T) {
	r := newRing(t, 64)
	g, err := r.OpenGuarantee()
	require.NoError(t, err)
	leaked(g)
	assert.False(t, g.Live())
	assert.Zero(t, r.Guarantees())
	assert.Equal(t, int64(1), r.Refs())
}

func TestReservationRules(t *testing.T) {
	r := newRing(t, 64)

	requireStatus(t, api.StatusInvalidState, r.Commit(0))
	requireStatus(t, api.StatusInvalidState, r.Abandon())

	_, err := r.Reserve(65)
	requireStatus(t, api.StatusInvalidArgument, err)
	_, err = r.Reserve(-1)
	requireStatus(t, api.StatusInvalidArgument, err)

	res, err := r.Reserve(10)
	require.NoError(t, err)
	assert.Equal(t, 10, r.State().Reserved)

	_, err = r.Reserve(1)
	requireStatus(t, api.StatusInvalidState, err)
	requireStatus(t, api.StatusInvalidArgument, r.Commit(11))

	require.NoError(t, res.Commit(5))
	assert.Equal(t, uint64(5), r.WriteOffset())
	requireStatus(t, api.StatusInvalidState, res.Commit(5))
	requireStatus(t, api.StatusInvalidState, res.Abandon())

	res, err = r.Reserve(8)
	require.NoError(t, err)
	require.NoError(t, r.Abandon())
	assert.Equal(t, uint64(5), r.WriteOffset())
	requireStatus(t, api.StatusInvalidState, res.Commit(8))
}

func TestReservationSpansSplitOnWrap(t *testing.T) {
	ctx := context.Background()
	r := newRing(t, 16)
	require.NoError(t, r.WriteBytes(ctx, seq(0, 10)))

	res, err := r.Reserve(10)
	require.NoError(t, err)
	spans := res.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, 6, spans[0].Len)
	assert.Equal(t, 4, spans[1].Len)
	assert.Equal(t, r.buf.At(10), spans[0].Ptr)
	assert.Equal(t, r.buf.At(0), spans[1].Ptr)

	src := seq(10, 10)
	requireStatus(t, api.StatusInvalidArgument, res.CopyFrom(ctx, 5, api.HostPtr(src), api.SpaceSystem, 6))
	require.NoError(t, res.CopyFrom(ctx, 0, api.HostPtr(src[:3]), api.SpaceSystem, 3))
	require.NoError(t, res.CopyFrom(ctx, 3, api.HostPtr(src[3:]), api.SpaceSystem, 7))
	require.NoError(t, res.Commit(10))

	got := make([]byte, 10)
	require.NoError(t, r.ReadBytes(ctx, 10, got))
	assert.Equal(t, src, got)

	spans, err = r.Spans(10, 6)
	require.NoError(t, err)
	assert.Len(t, spans, 1)
}

func TestReadRange(t *testing.T) {
	ctx := context.Background()
	r := newRing(t, 32)
	require.NoError(t, r.WriteBytes(ctx, seq(0, 32)))
	require.NoError(t, r.WriteBytes(ctx, seq(32, 8)))
	require.Equal(t, uint64(8), r.TailOffset())

	got := make([]byte, 4)
	requireStatus(t, api.StatusInvalidArgument, r.ReadBytes(ctx, 7, got))
	requireStatus(t, api.StatusInvalidArgument, r.ReadBytes(ctx, 37, got))
	require.NoError(t, r.ReadBytes(ctx, 36, got))
	assert.Equal(t, seq(36, 4), got)

	g, err := r.OpenGuaranteeAt(30)
	require.NoError(t, err)
	defer g.Release()
	got = make([]byte, 6)
	require.NoError(t, g.ReadBytes(ctx, got))
	assert.Equal(t, seq(30, 6), got)
	assert.Equal(t, uint64(30), g.Offset())
}

func TestCloseKeepsBufferForGuarantees(t *testing.T) {
	ctx := context.Background()
	r, err := New(Options{Capacity: 64, Space: api.SpaceSystem})
	require.NoError(t, err)
	require.NoError(t, r.WriteBytes(ctx, seq(0, 20)))
	g, err := r.OpenGuarantee()
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.True(t, r.Closed())
	_, err = r.Reserve(1)
	requireStatus(t, api.StatusInvalidState, err)
	_, err = r.OpenGuarantee()
	requireStatus(t, api.StatusInvalidState, err)

	got := make([]byte, 20)
	require.NoError(t, g.ReadBytes(ctx, got))
	assert.Equal(t, seq(0, 20), got)
	require.NoError(t, g.Advance(20))
	assert.Equal(t, int64(1), r.Refs())

	g.Release()
	assert.Zero(t, r.Refs())
	assert.Nil(t, r.buf)
}

func TestReserveWaitUnblocksOnRelease(t *testing.T) {
	r := newRing(t, 1024)
	require.NoError(t, r.WriteBytes(context.Background(), seq(0, 600)))
	g, err := r.OpenGuaranteeAt(0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		res, err := r.ReserveWait(ctx, 600)
		if err == nil {
			err = res.Commit(600)
		}
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("ReserveWait returned before release: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	require.NoError(t, g.Advance(100))
	select {
	case err := <-done:
		t.Fatalf("ReserveWait returned while still blocked: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	g.Release()
	require.NoError(t, <-done)
	assert.Equal(t, uint64(1200), r.WriteOffset())
}

func TestReserveWaitHonoursContext(t *testing.T) {
	r := newRing(t, 64)
	require.NoError(t, r.WriteBytes(context.Background(), seq(0, 64)))
	g, err := r.OpenGuaranteeAt(0)
	require.NoError(t, err)
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.ReserveWait(ctx, 1)
	requireStatus(t, api.StatusWouldBlock, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	_, err = r.ReserveWait(context.Background(), 65)
	requireStatus(t, api.StatusInvalidArgument, err)
}

func TestWaitFor(t *testing.T) {
	r, err := New(Options{Capacity: 64, Space: api.SpaceSystem})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.WaitFor(context.Background(), 10) }()
	require.NoError(t, r.WriteBytes(context.Background(), seq(0, 10)))
	require.NoError(t, <-done)

	go func() { done <- r.WaitFor(context.Background(), 11) }()
	require.NoError(t, r.Close())
	requireStatus(t, api.StatusEndOfData, <-done)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r2 := newRing(t, 8)
	requireStatus(t, api.StatusWouldBlock, r2.WaitFor(ctx, 1))
}

func TestResizeKeepsNewestBytes(t *testing.T) {
	ctx := context.Background()
	r := newRing(t, 16)
	for off := uint64(0); off < 24; off += 8 {
		require.NoError(t, r.WriteBytes(ctx, seq(off, 8)))
	}
	require.Equal(t, uint64(8), r.TailOffset())

	require.NoError(t, r.Resize(ctx, 32))
	assert.Equal(t, 32, r.Capacity())
	assert.Equal(t, uint64(24), r.WriteOffset())
	assert.Equal(t, uint64(8), r.TailOffset())
	got := make([]byte, 16)
	require.NoError(t, r.ReadBytes(ctx, 8, got))
	assert.Equal(t, seq(8, 16), got)

	// Wrapping writes land correctly in the new layout.
	require.NoError(t, r.WriteBytes(ctx, seq(24, 20)))
	got = make([]byte, 32)
	require.NoError(t, r.ReadBytes(ctx, 12, got))
	assert.Equal(t, seq(12, 32), got)

	require.NoError(t, r.Resize(ctx, 5))
	assert.Equal(t, uint64(39), r.TailOffset())
	got = make([]byte, 5)
	require.NoError(t, r.ReadBytes(ctx, 39, got))
	assert.Equal(t, seq(39, 5), got)

	g, err := r.OpenGuarantee()
	require.NoError(t, err)
	requireStatus(t, api.StatusInvalidState, r.Resize(ctx, 64))
	g.Release()

	_, err = r.Reserve(1)
	require.NoError(t, err)
	requireStatus(t, api.StatusInvalidState, r.Resize(ctx, 64))
	require.NoError(t, r.Abandon())
	requireStatus(t, api.StatusInvalidArgument, r.Resize(ctx, 0))
}

func TestStateString(t *testing.T) {
	r, err := New(Options{Capacity: 2048, Space: api.SpaceSystem, Name: "events"})
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.WriteBytes(context.Background(), seq(0, 1024)))

	s := r.State()
	assert.Equal(t, "events", s.Name)
	assert.Equal(t, uint64(1024), s.Readable())
	assert.Equal(t, int64(1), s.Refs)
	assert.Contains(t, r.String(), "ring events [2.0 KiB system]")
	assert.Contains(t, r.String(), "readable=1.0 KiB")
}

func TestStaleReservationRejectsWrites(t *testing.T) {
	ctx := context.Background()
	r := newRing(t, 16)
	first := seq(0, 8)
	junk := bytes.Repeat([]byte{'B'}, 8)

	res, err := r.Reserve(8)
	require.NoError(t, err)
	require.NoError(t, res.CopyFrom(ctx, 0, api.HostPtr(first), api.SpaceSystem, 8))
	require.NoError(t, res.Commit(8))
	g, err := r.OpenGuaranteeAt(0)
	require.NoError(t, err)
	defer g.Release()

	requireStatus(t, api.StatusInvalidState, res.CopyFrom(ctx, 0, api.HostPtr(junk), api.SpaceSystem, 8))
	assert.Nil(t, res.Spans())
	got := make([]byte, 8)
	require.NoError(t, g.ReadBytes(ctx, got))
	assert.Equal(t, first, got)

	res, err = r.Reserve(4)
	require.NoError(t, err)
	require.NoError(t, res.Abandon())
	requireStatus(t, api.StatusInvalidState, res.CopyFrom(ctx, 0, api.HostPtr(junk), api.SpaceSystem, 4))

	res, err = r.Reserve(4)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	requireStatus(t, api.StatusInvalidState, res.CopyFrom(ctx, 0, api.HostPtr(junk), api.SpaceSystem, 4))
	assert.Nil(t, res.Spans())
	require.NoError(t, g.ReadBytes(ctx, got))
	assert.Equal(t, first, got)
}

func TestClosedPinnedReservationRejectsWrites(t *testing.T) {
	r, err := New(Options{Capacity: 4096, Space: api.SpacePinnedHost})
	if api.StatusOf(err) == api.StatusUnsupportedSpace {
		t.Skip("pinned host memory needs a device on this platform")
	}
	require.NoError(t, err)
	res, err := r.Reserve(8)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Nil(t, r.buf)

	src := seq(0, 8)
	requireStatus(t, api.StatusInvalidState, res.CopyFrom(context.Background(), 0, api.HostPtr(src), api.SpaceSystem, 8))
}

func TestReadRejectsOverflowingRange(t *testing.T) {
	ctx := context.Background()
	r := newRing(t, 16)
	require.NoError(t, r.WriteBytes(ctx, seq(0, 8)))

	got := make([]byte, 4)
	requireStatus(t, api.StatusInvalidArgument, r.ReadBytes(ctx, math.MaxUint64-1, got))
	_, err := r.Spans(math.MaxUint64-1, 4)
	requireStatus(t, api.StatusInvalidArgument, err)
	_, err = r.Spans(9, 0)
	requireStatus(t, api.StatusInvalidArgument, err)
	requireStatus(t, api.StatusInvalidArgument, r.ReadBytes(ctx, 6, got))

	spans, err := r.Spans(8, 0)
	require.NoError(t, err)
	assert.Empty(t, spans)
	require.NoError(t, r.ReadBytes(ctx, 4, got))
	assert.Equal(t, seq(4, 4), got)
}

func TestAbandonSettlesTail(t *testing.T) {
	ctx := context.Background()
	r := newRing(t, 16)
	require.NoError(t, r.WriteBytes(ctx, seq(0, 16)))

	// Bytes under a pending reservation are not readable.
	res, err := r.Reserve(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), r.TailOffset())
	_, err = r.OpenGuaranteeAt(4)
	requireStatus(t, api.StatusInvalidArgument, err)
	require.NoError(t, res.Abandon())
	assert.Zero(t, r.TailOffset())

	require.NoError(t, r.WriteBytes(ctx, seq(16, 2)))
	assert.Equal(t, uint64(18), r.WriteOffset())
	assert.Equal(t, uint64(2), r.TailOffset())
	g, err := r.OpenGuaranteeAt(4)
	require.NoError(t, err)
	got := make([]byte, 4)
	require.NoError(t, g.ReadBytes(ctx, got))
	assert.Equal(t, seq(4, 4), got)
	g.Release()

	// A partial commit reclaims only what it published.
	res, err = r.Reserve(10)
	require.NoError(t, err)
	require.NoError(t, res.CopyFrom(ctx, 0, api.HostPtr(seq(18, 3)), api.SpaceSystem, 3))
	require.NoError(t, res.Commit(3))
	assert.Equal(t, uint64(21), r.WriteOffset())
	assert.Equal(t, uint64(5), r.TailOffset())

	// Bytes already handed to the writer stay reclaimed.
	res, err = r.Reserve(6)
	require.NoError(t, err)
	require.NoError(t, res.CopyFrom(ctx, 0, api.HostPtr(seq(21, 4)), api.SpaceSystem, 4))
	require.NoError(t, res.Abandon())
	assert.Equal(t, uint64(9), r.TailOffset())

	res, err = r.Reserve(6)
	require.NoError(t, err)
	require.Len(t, res.Spans(), 1)
	require.NoError(t, r.Abandon())
	assert.Equal(t, uint64(11), r.TailOffset())
	assert.Equal(t, uint64(21), r.WriteOffset())
}
