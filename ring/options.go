// Package ring
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ring

import (
	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/control"
)

// DefaultCapacity is used when configuration does not name one.
const DefaultCapacity = 4 << 20

// Options configure a new Ring.
type Options struct {
	// Capacity is the size of the backing allocation in bytes.
	Capacity int
	// Space backs the allocation; it must be concrete.
	Space api.Space
	// Name is a free-form label shown in State and probes.
	Name string
}

// OptionsFromConfig reads ring.capacity and ring.space, defaulting to
// DefaultCapacity bytes of system memory.
func OptionsFromConfig(cs *control.ConfigStore) (Options, error) {
	capacity, err := cs.Size(control.KeyRingCapacity, DefaultCapacity)
	if err != nil {
		return Options{}, err
	}
	space, err := cs.Space(control.KeyRingSpace, api.SpaceSystem)
	if err != nil {
		return Options{}, err
	}
	return Options{Capacity: capacity, Space: space}, nil
}

func (o Options) validate() error {
	if o.Capacity <= 0 {
		return control.Failf(api.StatusInvalidArgument, "ring.New", "capacity must be positive, got %d", o.Capacity)
	}
	if !o.Space.Concrete() {
		return control.Failf(api.StatusInvalidSpace, "ring.New", "space %s is not a backing space", o.Space)
	}
	return nil
}
