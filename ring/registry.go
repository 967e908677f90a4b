// File: ring/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Registry tracks live rings by id and exposes them through the control plane.

package ring

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/momentics/hioload-ring/api"
	"github.com/pkg/errors"
)

// Registry is a concurrency-safe set of rings. Each registered ring gets a
// debug probe named "ring.<id>" on the control plane, when one is attached.
type Registry struct {
	mu    sync.RWMutex
	rings map[uuid.UUID]*Ring
	ctl   api.Control
}

// NewRegistry creates a registry reporting to ctl, which may be nil.
func NewRegistry(ctl api.Control) *Registry {
	return &Registry{rings: make(map[uuid.UUID]*Ring), ctl: ctl}
}

func probeName(id uuid.UUID) string { return "ring." + id.String() }

// Create builds a ring from opts and registers it.
func (g *Registry) Create(opts Options) (*Ring, error) {
	r, err := New(opts)
	if err != nil {
		return nil, err
	}
	g.Add(r)
	return r, nil
}

// Add registers r.
func (g *Registry) Add(r *Ring) {
	g.mu.Lock()
	g.rings[r.id] = r
	g.mu.Unlock()
	if g.ctl != nil {
		g.ctl.RegisterDebugProbe(probeName(r.id), func() any { return r.State() })
	}
}

// Get returns the ring registered under id.
func (g *Registry) Get(id uuid.UUID) (*Ring, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rings[id]
	return r, ok
}

// Remove unregisters id without closing the ring.
func (g *Registry) Remove(id uuid.UUID) bool {
	g.mu.Lock()
	_, ok := g.rings[id]
	delete(g.rings, id)
	g.mu.Unlock()
	if ok && g.ctl != nil {
		g.ctl.UnregisterDebugProbe(probeName(id))
	}
	return ok
}

// Len returns the number of registered rings.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rings)
}

// Range calls fn for each ring in id order until fn returns false.
func (g *Registry) Range(fn func(*Ring) bool) {
	g.mu.RLock()
	rings := make([]*Ring, 0, len(g.rings))
	for _, r := range g.rings {
		rings = append(rings, r)
	}
	g.mu.RUnlock()
	sort.Slice(rings, func(i, j int) bool { return rings[i].id.String() < rings[j].id.String() })
	for _, r := range rings {
		if !fn(r) {
			return
		}
	}
}

// Collect publishes aggregate ring metrics to the control plane.
func (g *Registry) Collect() {
	if g.ctl == nil {
		return
	}
	var (
		count, open, guarantees int
		capacity                int64
		written, readable       uint64
	)
	g.Range(func(r *Ring) bool {
		s := r.State()
		count++
		if !s.Closed {
			open++
		}
		guarantees += s.Guarantees
		capacity += int64(s.Capacity)
		written += s.WriteOffset
		readable += s.Readable()
		return true
	})
	g.ctl.SetMetric("ring.count", count)
	g.ctl.SetMetric("ring.open", open)
	g.ctl.SetMetric("ring.guarantees", guarantees)
	g.ctl.SetMetric("ring.capacity_bytes", capacity)
	g.ctl.SetMetric("ring.written_bytes", written)
	g.ctl.SetMetric("ring.readable_bytes", readable)
}

// Close closes and unregisters every ring, returning the first error.
func (g *Registry) Close() error {
	var first error
	g.Range(func(r *Ring) bool {
		if err := r.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close ring %s", r.id)
		}
		g.Remove(r.id)
		return true
	})
	return first
}
