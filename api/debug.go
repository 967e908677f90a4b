// Package api
// Author: momentics
//
// Named state probes consulted when diagnosing a running process.

package api

// Debug is a registry of named probes. Each probe returns a snapshot value,
// for example a ring State, evaluated on every DumpState call.
type Debug interface {
	// DumpState evaluates every probe and returns the results by name.
	DumpState() map[string]any

	// RegisterProbe adds or replaces the probe called name.
	RegisterProbe(name string, fn func() any)

	// UnregisterProbe removes the probe called name, if present.
	UnregisterProbe(name string)
}
