//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

// Package emulator
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package emulator

// mapMemory falls back to the Go heap; regions stay referenced until freed.
func mapMemory(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapMemory([]byte) error { return nil }
