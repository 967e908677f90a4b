// Package control
// Author: momentics <momentics@gmail.com>
//
// Diagnostics, configuration, metrics and debug introspection for hioload-ring.
//
// Provides concurrent-safe state handling primitives including:
//   - The process-wide debug flag and per-status report filter (klog backed)
//   - Snapshot config reads, env loading and hot-reload observers
//   - Metrics registry and debug probe registration
//   - Plane, the api.Control bundle handed to ring registries
package control
