// File: memory/guard.go
// Author: momentics <momentics@gmail.com>
//
// Boundary translation of internal panics into the status taxonomy.

package memory

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/control"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Guard runs fn and converts any panic raised inside it into an *api.Error.
// An *api.Error panic keeps its status; allocation panics become
// StatusMemAllocFailed; anything else becomes StatusInternalError.
func Guard(op string, fn func() error) (err error) {
	exception := exceptions.Try(func() {
		err = fn()
	})
	if exception == nil {
		return err
	}
	err = fromPanic(op, exception)
	control.Report(1, err)
	return err
}

// fromPanic classifies a recovered panic. exceptions.Try hands runtime
// panics back wrapped, so the runtime.Error type is not visible here and
// allocation failures are recognized by message.
func fromPanic(op string, exception any) *api.Error {
	e, ok := exception.(error)
	if !ok {
		klog.Errorf("%s: foreign panic: %v", op, exception)
		return api.Errorf(api.StatusInternalError, op, "panic: %v", fmt.Sprint(exception))
	}
	var apiErr *api.Error
	if errors.As(e, &apiErr) {
		return apiErr
	}
	if isAllocPanic(e.Error()) {
		return api.Wrap(e, api.StatusMemAllocFailed, op)
	}
	klog.Errorf("%s: internal error: %+v", op, e)
	return api.Wrap(e, api.StatusInternalError, op)
}

func isAllocPanic(msg string) bool {
	return strings.Contains(msg, "makeslice") || strings.Contains(msg, "out of memory")
}
