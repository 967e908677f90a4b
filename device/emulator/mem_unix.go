//go:build linux || darwin || freebsd || netbsd || openbsd

// Package emulator
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package emulator

import "golang.org/x/sys/unix"

// mapMemory reserves size bytes outside the Go heap.
func mapMemory(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func unmapMemory(mem []byte) error {
	return unix.Munmap(mem)
}
