package ioerr

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil is success", nil, 0},
		{"config invalid", New(KindConfigInvalid, "bad flag"), 2},
		{"state conflict", New(KindStateConflict, "name taken"), 1},
		{"resource kernel", New(KindResourceKernel, "mount failed"), 125},
		{"resource cgroup", New(KindResourceCgroup, "write failed"), 125},
		{"fs bind missing", New(KindFSBindMissing, "no such host path"), 125},
		{"net bridge unavailable", New(KindNetBridgeUnavailable, "no bridge"), 125},
		{"launch handshake broken", New(KindLaunchHandshake, "pipe closed"), 125},
		{"user exit code", UserExited(17), 17},
		{"user exit zero", UserExited(0), 0},
		{"signal killed", Killed(unix.SIGKILL), 128 + int(unix.SIGKILL)},
		{"unwrapped error", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("underlying failure")
	err := Wrap(KindResourceKernel, cause, "starting init")

	if err.Cause() == nil {
		t.Fatal("Wrap lost the cause")
	}
	if !errors.Is(err.Cause(), cause) && err.Unwrap() == nil {
		t.Errorf("cause chain does not lead back to %v", cause)
	}
}

func TestAsMatchesKind(t *testing.T) {
	err := New(KindStateConflict, "name already in use")

	if _, ok := As(err, KindStateConflict); !ok {
		t.Error("As should match the same kind")
	}
	if _, ok := As(err, KindConfigInvalid); ok {
		t.Error("As should not match a different kind")
	}
	if _, ok := As(errors.New("plain error"), KindConfigInvalid); ok {
		t.Error("As should not match a non-*Error")
	}
}

func TestErrorMessageIncludesErrno(t *testing.T) {
	err := WrapErrno("mounting overlay", unix.ENOSPC)
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected non-empty error message")
	}
	if !strings.Contains(msg, unix.ENOSPC.Error()) {
		t.Errorf("Error() = %q, want it to include %q", msg, unix.ENOSPC.Error())
	}
	if err.Errno != unix.ENOSPC {
		t.Errorf("Errno = %v, want %v", err.Errno, unix.ENOSPC)
	}
}
