// Package api
// Author: momentics <momentics@gmail.com>
//
// Memory space tags identifying which physical memory domain backs a pointer.

package api

import (
	"fmt"
	"strings"
)

// Space selects the memory domain used for allocation, copy and fill calls.
type Space int

const (
	// SpaceAuto asks for the space to be inferred from the pointer. Never a backing space.
	SpaceAuto Space = iota
	// SpaceSystem is regular host memory.
	SpaceSystem
	// SpaceDevice is accelerator device memory, not addressable from the host.
	SpaceDevice
	// SpacePinnedHost is page-locked host memory usable for fast device transfers.
	SpacePinnedHost
	// SpaceManaged is unified memory migrated between host and device on demand.
	SpaceManaged
	// SpaceShared is reserved for process-shared memory; no operation supports it yet.
	SpaceShared
)

var spaceNames = [...]string{
	SpaceAuto:       "auto",
	SpaceSystem:     "system",
	SpaceDevice:     "device",
	SpacePinnedHost: "pinned",
	SpaceManaged:    "managed",
	SpaceShared:     "shared",
}

func (s Space) String() string {
	if s < 0 || int(s) >= len(spaceNames) {
		return fmt.Sprintf("space(%d)", int(s))
	}
	return spaceNames[s]
}

// Valid reports whether s is one of the declared tags.
func (s Space) Valid() bool {
	return s >= SpaceAuto && s <= SpaceShared
}

// Concrete reports whether s names a real backing space.
func (s Space) Concrete() bool {
	return s.Valid() && s != SpaceAuto
}

// HostAccessible reports whether host code may dereference pointers in s directly.
func (s Space) HostAccessible() bool {
	return s == SpaceSystem || s == SpacePinnedHost
}

// ParseSpace converts a name produced by String back into a Space.
func ParseSpace(name string) (Space, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range spaceNames {
		if n == name {
			return Space(i), nil
		}
	}
	return SpaceAuto, Errorf(StatusInvalidSpace, "ParseSpace", "unknown memory space %q", name)
}
