// control/report.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide diagnostics switch and status reporting through klog.

package control

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-ring/api"
	"k8s.io/klog/v2"
)

var (
	debugEnabled atomic.Bool

	filterMu sync.RWMutex
	// Statuses excluded from reporting; routine outcomes by default.
	quiet = map[api.Status]bool{
		api.StatusWouldBlock: true,
		api.StatusEndOfData:  true,
	}
)

// DebugEnabled returns the process-wide diagnostics flag.
func DebugEnabled() bool { return debugEnabled.Load() }

// SetDebugEnabled toggles diagnostics for every component.
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// SetReportFilter marks status as reported (true) or suppressed (false).
func SetReportFilter(status api.Status, report bool) {
	filterMu.Lock()
	defer filterMu.Unlock()
	if report {
		delete(quiet, status)
	} else {
		quiet[status] = true
	}
}

// ShouldReport reports whether a failure with status would be logged.
func ShouldReport(status api.Status) bool {
	if !DebugEnabled() {
		return false
	}
	filterMu.RLock()
	defer filterMu.RUnlock()
	return !quiet[status]
}

// Report logs err at the caller's file:line when diagnostics are on.
// depth counts frames above the caller of Report.
func Report(depth int, err error) {
	if err == nil {
		return
	}
	status := api.StatusOf(err)
	if !ShouldReport(status) {
		return
	}
	klog.ErrorDepth(depth+1, fmt.Sprintf("error %d: %v", int(status), err))
}

// Fail builds an *api.Error describing the offending state and reports it.
func Fail(status api.Status, op, what string) *api.Error {
	err := api.NewError(status, op, what)
	Report(1, err)
	return err
}

// Failf is Fail with a formatted message.
func Failf(status api.Status, op, format string, args ...any) *api.Error {
	err := api.Errorf(status, op, format, args...)
	Report(1, err)
	return err
}

// Trace logs a successful operation of interest at verbosity 2 when diagnostics are on.
func Trace(format string, args ...any) {
	if !DebugEnabled() {
		return
	}
	if klog.V(2).Enabled() {
		klog.InfoDepth(1, fmt.Sprintf(format, args...))
	}
}
