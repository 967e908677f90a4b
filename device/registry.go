// Package device
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package device

import (
	"sync"

	"k8s.io/klog/v2"
)

var (
	mu      sync.RWMutex
	current Device
)

// Register installs d as the process device. A previous device is replaced.
func Register(d Device) {
	mu.Lock()
	defer mu.Unlock()
	if current != nil && d != nil && current.Name() != d.Name() {
		klog.Warningf("device: replacing registered device %q with %q", current.Name(), d.Name())
	}
	current = d
}

// Unregister removes the process device if it is d.
func Unregister(d Device) {
	mu.Lock()
	defer mu.Unlock()
	if current == d {
		current = nil
	}
}

// Current returns the registered device or nil.
func Current() Device {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Enabled reports whether device-backed spaces are available.
func Enabled() bool {
	return Current() != nil
}
