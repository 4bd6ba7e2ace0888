package automation

import (
	"errors"
	"fmt"
)

// Kind classifies why an action failed.
type Kind int

const (
	// KindTargetNotFound means no window reached the target's confidence.
	KindTargetNotFound Kind = iota + 1
	// KindCapture means the host could not read the screen or persist a capture.
	KindCapture
	// KindInput means the host rejected a pointer or keyboard event.
	KindInput
	// KindInvalidArgument means the caller passed out-of-range or malformed parameters.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindTargetNotFound:
		return "target-not-found"
	case KindCapture:
		return "capture-error"
	case KindInput:
		return "input-injection-error"
	case KindInvalidArgument:
		return "invalid-argument"
	default:
		return "unknown"
	}
}

// ErrNoDisplay is wrapped by New when the host exposes no screen surface.
var ErrNoDisplay = errors.New("automation: no display available")

// Error is the failure outcome of a single action.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("automation: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("automation: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// NotFound converts a negative Locate outcome into an error for callers
// that treat absence as a failure.
func NotFound(target Target) error {
	return &Error{Op: "locate", Kind: KindTargetNotFound, Err: fmt.Errorf("%s not visible at confidence %.2f", target.label(), target.threshold())}
}

func invalid(op, format string, args ...any) *Error {
	return &Error{Op: op, Kind: KindInvalidArgument, Err: fmt.Errorf(format, args...)}
}
