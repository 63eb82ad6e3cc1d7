package supervisor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a session ended. All kinds are currently retried
// the same way.
type ErrorKind int

const (
	// KindOpen covers DNS, connect and request failures, and empty bodies.
	KindOpen ErrorKind = iota + 1

	// KindStatus is a non-2xx HTTP response.
	KindStatus

	// KindStall means no bytes arrived within the stall timeout.
	KindStall

	// KindStream is a read error on an established stream.
	KindStream

	// KindDecoder is a decoder start failure or non-zero exit.
	KindDecoder
)

// String returns the kind as used in log fields.
func (k ErrorKind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindStatus:
		return "status"
	case KindStall:
		return "stall"
	case KindStream:
		return "stream"
	case KindDecoder:
		return "decoder"
	default:
		return "unknown"
	}
}

// ErrStalled is the cancellation cause set by the watchdog.
var ErrStalled = errors.New("stream stalled")

// SessionError describes how a session failed.
type SessionError struct {
	Kind ErrorKind
	Err  error

	// StatusCode is set for KindStatus.
	StatusCode int

	// ExitCode and Stderr are set for KindDecoder when the process ran.
	ExitCode int
	Stderr   []string
}

func (e *SessionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	if e.Kind == KindDecoder && len(e.Stderr) > 0 {
		fmt.Fprintf(&b, " (last output: %s)", e.Stderr[len(e.Stderr)-1])
	}
	return b.String()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err if it is (or wraps) a SessionError.
func KindOf(err error) (ErrorKind, bool) {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}
