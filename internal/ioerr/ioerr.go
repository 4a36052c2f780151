// Package ioerr defines the error kinds of spec.md §7 and the exit-code
// table of §6. It is grounded on the teacher's newSystemErrorWithCause /
// newSystemErrorWithCausef helpers in libcontainer/process_linux.go, but
// generalised into a typed Kind rather than a single "system error" bucket,
// since the launcher must distinguish kinds across the handshake pipe.
package ioerr

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Kind is one of the error kinds spec.md §7 requires the core to
// distinguish. It is not a Go type name: it is a stable wire identifier
// that crosses the parent/child handshake pipe as JSON.
type Kind string

const (
	KindConfigInvalid        Kind = "config.invalid"
	KindStateConflict        Kind = "state.conflict"
	KindResourceKernel       Kind = "resource.kernel"
	KindResourceCgroup       Kind = "resource.cgroup"
	KindFSBindMissing        Kind = "fs.bind-missing"
	KindNetBridgeUnavailable Kind = "net.bridge-unavailable"
	KindLaunchHandshake      Kind = "launch.handshake-broken"
	KindUserExit             Kind = "user.exit"
	KindSignalKilled         Kind = "signal.killed"
)

// Error wraps an underlying cause with a Kind and, where applicable, the
// symbolic errno the kernel returned. Errno is compared by value so a
// caller can test "was this ENOTSUP" without string-matching messages.
type Error struct {
	Kind    Kind
	Errno   unix.Errno
	Signal  unix.Signal
	Code    int // ExitCode for KindUserExit
	cause   error
	message string
}

func (e *Error) Error() string {
	if e.Errno != 0 {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.message, e.Errno)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.message)
}

func (e *Error) Unwrap() error { return e.cause }
func (e *Error) Cause() error  { return e.cause }

// New builds a bare Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, message: msg}
}

// Wrap attaches a Kind to an arbitrary error, preserving it as the Cause
// the way github.com/pkg/errors.Wrap does.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, cause: errors.Wrap(cause, msg), message: msg}
}

// WrapErrno is for the syscall surface: every failed syscall is reported
// with its symbolic errno per §4.1 ("reports the underlying errno
// symbolically").
func WrapErrno(msg string, errno unix.Errno) *Error {
	return &Error{Kind: KindResourceKernel, Errno: errno, message: msg}
}

// Killed reports that the user process died on signal S (§7 signal.killed).
func Killed(sig unix.Signal) *Error {
	return &Error{Kind: KindSignalKilled, Signal: sig, message: "killed by signal"}
}

// UserExited reports a normal (possibly non-zero) user process exit.
func UserExited(code int) *Error {
	return &Error{Kind: KindUserExit, Code: code, message: "user process exited"}
}

// As reports whether err (or something it wraps) is an *Error of the given
// kind, mirroring errors.As.
func As(err error, kind Kind) (*Error, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return nil, false
	}
	return e, e.Kind == kind
}

// ExitCode maps an error (or nil, for success) to the process exit code
// table in spec.md §6.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	e, ok := err.(*Error)
	if !ok {
		var ptr *Error
		if errors.As(err, &ptr) {
			e = ptr
			ok = true
		}
	}
	if !ok {
		return 1
	}
	switch e.Kind {
	case KindConfigInvalid:
		return 2
	case KindStateConflict:
		return 1
	case KindResourceKernel, KindResourceCgroup, KindFSBindMissing,
		KindNetBridgeUnavailable, KindLaunchHandshake:
		return 125
	case KindUserExit:
		return e.Code
	case KindSignalKilled:
		return 128 + int(e.Signal)
	default:
		return 1
	}
}
