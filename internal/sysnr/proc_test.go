package sysnr

import (
	"os"
	"testing"
)

func TestProcessAliveSelf(t *testing.T) {
	if !ProcessAlive(os.Getpid()) {
		t.Error("the current process should report itself as alive")
	}
}

func TestProcessAlivePidZeroOrNegative(t *testing.T) {
	if ProcessAlive(-1) {
		t.Error("pid -1 should not be reported alive")
	}
	if ProcessAlive(0) {
		t.Error("pid 0 should not be reported alive")
	}
}

func TestReadProcStartTimeSelfIsStable(t *testing.T) {
	a, err := ReadProcStartTime(os.Getpid())
	if err != nil {
		t.Fatalf("ReadProcStartTime: %v", err)
	}
	b, err := ReadProcStartTime(os.Getpid())
	if err != nil {
		t.Fatalf("ReadProcStartTime: %v", err)
	}
	if a != b {
		t.Errorf("start time should be stable across reads: %d != %d", a, b)
	}
}

func TestReadStartTimeUnknownPid(t *testing.T) {
	// PID 1 always exists on Linux (init/systemd); a clearly bogus huge pid
	// should not.
	if _, err := readStartTime(1 << 30); err == nil {
		t.Error("expected an error reading /proc/<huge pid>/stat")
	}
}
