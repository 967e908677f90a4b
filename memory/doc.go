// Package memory
// Author: momentics <momentics@gmail.com>
//
// Memory-space aware allocation, copy and fill.
//
// Every operation takes an api.Space tag. Host spaces (system, pinned) are
// served in process; device-backed spaces (device, managed, and pinned when a
// device is registered) are delegated to the device package collaborator and
// run asynchronously on the stream bound to the context. SpaceShared is a
// recognised tag without support; every operation on it fails with
// StatusUnsupportedSpace.
//
// All exported functions return nil or an *api.Error and never panic.
package memory
