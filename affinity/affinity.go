// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// CPU pinning for ring producers and readers. Platform-specific
// implementations live in separate files guarded by build tags.

package affinity

import (
	"runtime"

	"github.com/momentics/hioload-ring/api"
)

// Pin locks the calling goroutine to its OS thread and binds that thread to
// cpu. The returned function restores the previous mask and unlocks the
// thread; it must be called from the same goroutine.
func Pin(cpu int) (unpin func(), err error) {
	if cpu < 0 {
		return nil, api.Errorf(api.StatusInvalidArgument, "affinity.Pin", "negative cpu %d", cpu)
	}
	runtime.LockOSThread()
	restore, err := pinPlatform(cpu)
	if err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return func() {
		restore()
		runtime.UnlockOSThread()
	}, nil
}

// Allowed lists the CPUs the calling thread may run on.
func Allowed() ([]int, error) {
	return allowedPlatform()
}

// Spread returns the i-th CPU of allowed, wrapping around.
func Spread(allowed []int, i int) int {
	if len(allowed) == 0 {
		return 0
	}
	return allowed[i%len(allowed)]
}
