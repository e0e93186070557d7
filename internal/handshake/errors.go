package handshake

import (
	"errors"
	"fmt"
)

// Rejection kinds. Match them with errors.Is on the *Error returned by
// Negotiate.
var (
	ErrMissingParameter    = errors.New("missing parameter")
	ErrMalformedVersion    = errors.New("malformed version")
	ErrUnknownFormat       = errors.New("unknown format")
	ErrIncompatibleVersion = errors.New("incompatible version")
	ErrTimeout             = errors.New("handshake timed out")
)

// Error is the reason a connection attempt was rejected.
type Error struct {
	// Kind is one of the Err* sentinels above.
	Kind error
	// Param is the offending query parameter, if any.
	Param string
	// Cause is the underlying parse error, if any.
	Cause error
}

func (e *Error) Error() string {
	switch {
	case e.Param != "" && e.Cause != nil:
		return fmt.Sprintf("invalid %s: %v", e.Param, e.Cause)
	case e.Param != "":
		return fmt.Sprintf("%v %q", e.Kind, e.Param)
	case e.Cause != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
