package device

import (
	"errors"
	"fmt"
)

// ErrorKind classifies device failures. Every kind is also an error value,
// so callers can write errors.Is(err, device.FrameTimeout).
type ErrorKind int

const (
	Unknown ErrorKind = iota
	NoDevice
	ConfigurationRejected
	FrameTimeout
	DeviceDisconnected
)

func (k ErrorKind) String() string {
	switch k {
	case NoDevice:
		return "no device"
	case ConfigurationRejected:
		return "configuration rejected"
	case FrameTimeout:
		return "frame timeout"
	case DeviceDisconnected:
		return "device disconnected"
	}
	return "unknown device error"
}

func (k ErrorKind) Error() string { return k.String() }

// Error is returned by every device call site. Op and Args name the SDK
// call that failed and the arguments it was invoked with.
type Error struct {
	Kind ErrorKind
	Op   string
	Args string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s(%s): %s", e.Op, e.Args, e.Message())
}

// Message is the human readable part of the error.
func (e *Error) Message() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return Unknown
}

func newError(kind ErrorKind, op, args string, err error) *Error {
	return &Error{Kind: kind, Op: op, Args: args, Err: err}
}
