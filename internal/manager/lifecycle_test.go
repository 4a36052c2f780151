package manager

import (
	"os/exec"
	"testing"
)

func TestExitCodeFromWait(t *testing.T) {
	if err := exec.Command("/bin/true").Run(); err != nil {
		t.Skip("no /bin/true on this system")
	}

	tests := []struct {
		name string
		argv []string
		want int
	}{
		{"clean exit zero", []string{"/bin/true"}, 0},
		{"exit code seven", []string{"/bin/sh", "-c", "exit 7"}, 7},
		{"killed by sigkill", []string{"/bin/sh", "-c", "kill -9 $$"}, 128 + 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := exec.Command(tt.argv[0], tt.argv[1:]...).Run()
			if got := exitCodeFromWait(err); got != tt.want {
				t.Errorf("exitCodeFromWait(%v) = %d, want %d", err, got, tt.want)
			}
		})
	}
}

func TestExitCodeFromWaitNilIsZero(t *testing.T) {
	if got := exitCodeFromWait(nil); got != 0 {
		t.Errorf("exitCodeFromWait(nil) = %d, want 0", got)
	}
}

func TestExitCodeFromWaitNonExitError(t *testing.T) {
	_, err := exec.LookPath("definitely-not-a-real-binary-xyz")
	if err == nil {
		t.Skip("unexpected binary found on PATH")
	}
	if got := exitCodeFromWait(err); got != 1 {
		t.Errorf("exitCodeFromWait(non-ExitError) = %d, want 1", got)
	}
}
