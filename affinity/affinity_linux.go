//go:build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux thread affinity through sched_setaffinity(2).

package affinity

import (
	"github.com/momentics/hioload-ring/api"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

func pinPlatform(cpu int) (func(), error) {
	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		return nil, api.Wrap(err, api.StatusInternalError, "affinity.Pin")
	}
	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return nil, api.Wrap(err, api.StatusInvalidArgument, "affinity.Pin").WithContext("cpu", cpu)
	}
	return func() {
		if err := unix.SchedSetaffinity(0, &prev); err != nil {
			klog.Warningf("affinity: restore mask after cpu %d: %v", cpu, err)
		}
	}, nil
}

func allowedPlatform() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, api.Wrap(err, api.StatusInternalError, "affinity.Allowed")
	}
	cpus := make([]int, 0, set.Count())
	for cpu := 0; len(cpus) < set.Count(); cpu++ {
		if set.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	return cpus, nil
}
