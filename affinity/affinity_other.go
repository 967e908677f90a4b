//go:build !linux

// File: affinity/affinity_other.go
// Author: momentics <momentics@gmail.com>

package affinity

import (
	"runtime"

	"github.com/momentics/hioload-ring/api"
)

func pinPlatform(int) (func(), error) {
	return nil, api.NewError(api.StatusUnsupported, "affinity.Pin", "thread affinity is not supported on "+runtime.GOOS)
}

func allowedPlatform() ([]int, error) {
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}
