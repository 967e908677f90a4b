// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

package ring

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-ring/api"
	"github.com/stretchr/testify/require"
)

// Without guarantees the writer wraps freely and the tail trails the write
// offset by exactly one capacity.
func TestRingPropertyFreeWrap(t *testing.T) {
	for seed := int64(0); seed < 10; seed++ {
		rnd := rand.New(rand.NewSource(seed))
		capacity := 1 + rnd.Intn(4096)
		r := newRing(t, capacity)
		for i := 0; i < 2000; i++ {
			n := rnd.Intn(capacity + 1)
			res, err := r.Reserve(n)
			require.NoError(t, err)
			require.NoError(t, res.Commit(n))
			write, tail := r.WriteOffset(), r.TailOffset()
			var want uint64
			if write > uint64(capacity) {
				want = write - uint64(capacity)
			}
			require.Equal(t, want, tail, "seed %d op %d", seed, i)
			require.LessOrEqual(t, tail, write)
		}
	}
}

// A writer never reclaims bytes at or above the lowest live guarantee.
func TestRingPropertyGuaranteesHold(t *testing.T) {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	r := newRing(t, 512)
	var live []*Guarantee
	for i := 0; i < 5000; i++ {
		switch rnd.Intn(4) {
		case 0:
			g, err := r.OpenGuarantee()
			require.NoError(t, err)
			live = append(live, g)
		case 1:
			if len(live) > 0 {
				k := rnd.Intn(len(live))
				live[k].Release()
				live = append(live[:k], live[k+1:]...)
			}
		case 2:
			if len(live) > 0 {
				g := live[rnd.Intn(len(live))]
				_ = g.Advance(rnd.Intn(g.Available() + 1))
			}
		default:
			n := rnd.Intn(513)
			if res, err := r.Reserve(n); err == nil {
				require.NoError(t, res.Commit(n))
			} else {
				require.Equal(t, api.StatusWouldBlock, api.StatusOf(err))
			}
		}
		for _, g := range live {
			require.LessOrEqual(t, r.TailOffset(), g.Offset())
			require.LessOrEqual(t, g.Offset(), r.WriteOffset())
		}
	}
	for _, g := range live {
		g.Release()
	}
}

func TestRingConcurrentReaders(t *testing.T) {
	const (
		capacity = 1000
		chunk    = 97
		total    = 50_000
		readers  = 3
	)
	r, err := New(Options{Capacity: capacity, Space: api.SpaceSystem})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	guards := make([]*Guarantee, readers)
	for i := range guards {
		guards[i], err = r.OpenGuaranteeAt(0)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make([]error, readers)
	for i, g := range guards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer g.Release()
			buf := make([]byte, chunk)
			for {
				err := r.WaitFor(ctx, g.Offset()+1)
				if api.StatusOf(err) == api.StatusEndOfData {
					return
				}
				if err != nil {
					results[i] = err
					return
				}
				n := min(chunk, g.Available())
				if err := g.ReadBytes(ctx, buf[:n]); err != nil {
					results[i] = err
					return
				}
				want := seq(g.Offset(), n)
				for j := range want {
					if buf[j] != want[j] {
						t.Errorf("reader %d: byte at %d is %d, want %d", i, g.Offset()+uint64(j), buf[j], want[j])
						return
					}
				}
				if err := g.Advance(n); err != nil {
					results[i] = err
					return
				}
			}
		}()
	}

	for written := 0; written < total; {
		n := min(chunk, total-written)
		res, err := r.ReserveWait(ctx, n)
		require.NoError(t, err)
		src := seq(res.Offset(), n)
		require.NoError(t, res.CopyFrom(ctx, 0, api.HostPtr(src), api.SpaceSystem, n))
		require.NoError(t, res.Commit(n))
		written += n
	}
	require.NoError(t, r.Close())
	wg.Wait()
	for i, err := range results {
		require.NoError(t, err, "reader %d", i)
	}
	require.Equal(t, uint64(total), r.WriteOffset())
	require.Zero(t, r.Refs())
}
