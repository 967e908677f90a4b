// File: ring/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ring

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/momentics/hioload-ring/api"
)

// State is a point-in-time snapshot of a ring, used by probes and logs.
type State struct {
	ID           string
	Name         string
	Space        api.Space
	Capacity     int
	WriteOffset  uint64
	TailOffset   uint64
	// MinGuarantee is meaningful only when Guarantees > 0.
	MinGuarantee uint64
	Guarantees   int
	Reserved     int
	Refs         int64
	Closed       bool
}

// Readable is the number of bytes in [tail, write).
func (s State) Readable() uint64 { return s.WriteOffset - s.TailOffset }

func (s State) String() string {
	name := s.Name
	if name == "" {
		name = s.ID
	}
	return fmt.Sprintf("ring %s [%s %s] write=%d tail=%d readable=%s guarantees=%d refs=%d closed=%t",
		name, humanize.IBytes(uint64(s.Capacity)), s.Space, s.WriteOffset, s.TailOffset,
		humanize.IBytes(s.Readable()), s.Guarantees, s.Refs, s.Closed)
}

// State captures the current ring state.
func (r *Ring) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := State{
		ID:          r.id.String(),
		Name:        r.name,
		Space:       r.space,
		Capacity:    r.capacity,
		WriteOffset: r.write.Load(),
		TailOffset:  r.tail.Load(),
		Guarantees:  len(r.claims),
		Refs:        r.refs.Load(),
		Closed:      r.closed,
	}
	s.MinGuarantee, _ = r.minClaimLocked()
	if r.pending != nil {
		s.Reserved = r.pending.size
	}
	return s
}

func (r *Ring) String() string { return r.State().String() }
