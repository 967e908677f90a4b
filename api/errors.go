// Package api
// Author: momentics <momentics@gmail.com>
//
// Status taxonomy and structured error type shared by every hioload-ring package.
// Exported operations return nil or an *Error; StatusOf maps any error onto the
// closed Status set so embedders never see an unmapped fault.

package api

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Status is the closed result taxonomy of every public operation.
type Status int

const (
	StatusSuccess          Status = 0
	StatusEndOfData        Status = 1
	StatusWouldBlock       Status = 2
	StatusInvalidPointer   Status = 8
	StatusInvalidHandle    Status = 9
	StatusInvalidArgument  Status = 10
	StatusInvalidState     Status = 11
	StatusInvalidSpace     Status = 12
	StatusMemAllocFailed   Status = 32
	StatusMemOpFailed      Status = 33
	StatusUnsupported      Status = 48
	StatusUnsupportedSpace Status = 49
	StatusDeviceError      Status = 66
	StatusInternalError    Status = 99
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusEndOfData:
		return "end of data"
	case StatusWouldBlock:
		return "operation would block"
	case StatusInvalidPointer:
		return "invalid pointer"
	case StatusInvalidHandle:
		return "invalid handle"
	case StatusInvalidArgument:
		return "invalid argument"
	case StatusInvalidState:
		return "invalid state"
	case StatusInvalidSpace:
		return "invalid memory space"
	case StatusMemAllocFailed:
		return "memory allocation failed"
	case StatusMemOpFailed:
		return "memory operation failed"
	case StatusUnsupported:
		return "unsupported"
	case StatusUnsupportedSpace:
		return "unsupported memory space"
	case StatusDeviceError:
		return "device error"
	case StatusInternalError:
		return "internal error"
	default:
		return fmt.Sprintf("unknown status %d", int(s))
	}
}

// Failed reports whether s denotes a hard failure. WouldBlock and EndOfData are not failures.
func (s Status) Failed() bool {
	return s != StatusSuccess && s != StatusWouldBlock && s != StatusEndOfData
}

// Sentinels usable with errors.Is; comparison is by Status only.
var (
	ErrWouldBlock       = &Error{Status: StatusWouldBlock}
	ErrInvalidPointer   = &Error{Status: StatusInvalidPointer}
	ErrInvalidArgument  = &Error{Status: StatusInvalidArgument}
	ErrInvalidState     = &Error{Status: StatusInvalidState}
	ErrInvalidSpace     = &Error{Status: StatusInvalidSpace}
	ErrAllocFailed      = &Error{Status: StatusMemAllocFailed}
	ErrOperationFailed  = &Error{Status: StatusMemOpFailed}
	ErrUnsupported      = &Error{Status: StatusUnsupported}
	ErrUnsupportedSpace = &Error{Status: StatusUnsupportedSpace}
	ErrDeviceError      = &Error{Status: StatusDeviceError}
	ErrInternal         = &Error{Status: StatusInternalError}
)

// Error represents a structured error with status, operation and context.
type Error struct {
	Status  Status
	Op      string
	Message string
	Context map[string]any

	cause error
	trace error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Status.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if len(e.Context) > 0 {
		msg = fmt.Sprintf("%s (context: %+v)", msg, e.Context)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error carrying the same Status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Status == e.Status
}

// Format supports %+v printing of the cause stack captured by pkg/errors.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		switch {
		case e.cause != nil:
			fmt.Fprintf(s, "%s\n%+v", e.Error(), e.cause)
			return
		case e.trace != nil:
			fmt.Fprintf(s, "%s\n%+v", e.Error(), e.trace)
			return
		}
	}
	fmt.Fprint(s, e.Error())
}

// NewError creates a new structured error.
func NewError(status Status, op, message string) *Error {
	return &Error{
		Status:  status,
		Op:      op,
		Message: message,
	}
}

// Errorf creates an error with a formatted message, recording the stack for %+v.
func Errorf(status Status, op, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{
		Status:  status,
		Op:      op,
		Message: msg,
		trace:   errors.New(msg),
	}
}

// Wrap attaches status and op to an underlying error.
func Wrap(cause error, status Status, op string) *Error {
	e := &Error{Status: status, Op: op}
	if cause != nil {
		e.cause = errors.WithStack(cause)
	}
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// StatusOf maps err onto the Status taxonomy. nil is StatusSuccess and any
// error that does not carry an *Error is StatusInternalError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Status
	}
	return StatusInternalError
}

// IsWouldBlock is shorthand for StatusOf(err) == StatusWouldBlock.
func IsWouldBlock(err error) bool {
	return StatusOf(err) == StatusWouldBlock
}
